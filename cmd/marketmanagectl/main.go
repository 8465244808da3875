// Command marketmanagectl is the admin CLI (spec §6.2): exchange CRUD
// subcommands talk to Postgres directly (the same split the original
// Django management commands used, bypassing the HTTP API); fetch/daemon
// subcommands instead call the running daemon's HTTP API.
package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"marketmanager/internal/config"
	"marketmanager/internal/models"
	"marketmanager/internal/repository"
	"marketmanager/internal/upstream"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var apiURL string

	root := &cobra.Command{
		Use:   "marketmanagectl",
		Short: "Admin CLI for the MarketManager daemon",
	}
	root.PersistentFlags().StringVar(&apiURL, "api-url", "", "base URL of the running marketmanaged HTTP API (defaults to SERVER_HOST:SERVER_PORT from config)")

	root.AddCommand(newAddExchangeCmd())
	root.AddCommand(newEnableExchangesCmd(true))
	root.AddCommand(newEnableExchangesCmd(false))
	root.AddCommand(newGetExchangesCmd())
	root.AddCommand(newFetchExchangeDataCmd(&apiURL))
	root.AddCommand(newDaemonCmd(&apiURL))
	root.AddCommand(newGCMarketsCmd())

	return root
}

// openDB connects to the same Postgres instance marketmanaged uses,
// reading connection settings from the shared config.Load().
func openDB() (*sql.DB, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.SSLMode,
	)
	db, err := sql.Open(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	return db, cfg, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func resolveAPIURL(flagValue string, cfg *config.Config) string {
	if flagValue != "" {
		return flagValue
	}
	host := cfg.Server.Host
	if host == "0.0.0.0" {
		host = "localhost"
	}
	scheme := "http"
	if cfg.Server.UseHTTPS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, cfg.Server.Port)
}

func newAddExchangeCmd() *cobra.Command {
	var name string
	var all bool
	var interval int

	cmd := &cobra.Command{
		Use:   "add_exchange",
		Short: "Register one exchange, or every exchange the upstream library knows, in the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" && !all {
				return fmt.Errorf("one of --name or --all is required")
			}

			db, cfg, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			exchanges := repository.NewExchangeRepository(db, []byte(cfg.Security.EncryptionKey))

			if interval <= 0 {
				interval = int(cfg.Scheduler.DefaultFetchInterval.Seconds())
			}

			names := []string{name}
			if all {
				names = upstream.SupportedExchanges
			}

			for _, n := range names {
				if _, err := exchanges.GetByName(n); err == nil {
					fmt.Printf("skip %s: already exists\n", n)
					continue
				} else if err != repository.ErrExchangeNotFound {
					return fmt.Errorf("look up %s: %w", n, err)
				}

				e := &models.Exchange{Name: n, Interval: interval, Enabled: true}
				if err := exchanges.Create(e); err != nil {
					return fmt.Errorf("create %s: %w", n, err)
				}
				fmt.Printf("created %s (id=%d, interval=%ds)\n", n, e.ID, interval)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "exchange name to create")
	cmd.Flags().BoolVar(&all, "all", false, "create every exchange upstream/ has an adapter for")
	cmd.Flags().IntVar(&interval, "interval", 0, "fetch interval in seconds (defaults to EXCHANGE_DEFAULT_FETCH_INTERVAL)")
	return cmd
}

func newEnableExchangesCmd(enable bool) *cobra.Command {
	var id int
	var all bool

	use := "disable_exchanges"
	short := "Disable one exchange, or every exchange, so the Scheduler stops dispatching it"
	if enable {
		use = "enable_exchanges"
		short = "Enable one exchange, or every exchange, so the Scheduler starts dispatching it"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 && !all {
				return fmt.Errorf("one of --id or --all is required")
			}

			db, cfg, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			exchanges := repository.NewExchangeRepository(db, []byte(cfg.Security.EncryptionKey))

			ids := []int{id}
			if all {
				all, err := exchanges.GetAll()
				if err != nil {
					return fmt.Errorf("list exchanges: %w", err)
				}
				ids = ids[:0]
				for _, e := range all {
					ids = append(ids, e.ID)
				}
			}

			for _, i := range ids {
				if err := exchanges.SetEnabled(i, enable); err != nil {
					return fmt.Errorf("set enabled=%v for exchange %d: %w", enable, i, err)
				}
				fmt.Printf("exchange %d enabled=%v\n", i, enable)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&id, "id", 0, "exchange id")
	cmd.Flags().BoolVar(&all, "all", false, "apply to every exchange")
	return cmd
}

func newGetExchangesCmd() *cobra.Command {
	var available, enabledOnly, disabledOnly, asJSON bool

	cmd := &cobra.Command{
		Use:   "get_exchanges",
		Short: "List exchanges known to the store, or known to the upstream library",
		RunE: func(cmd *cobra.Command, args []string) error {
			if available {
				return printAvailable(asJSON)
			}

			db, cfg, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			all, err := repository.NewExchangeRepository(db, []byte(cfg.Security.EncryptionKey)).GetAll()
			if err != nil {
				return fmt.Errorf("list exchanges: %w", err)
			}

			filtered := make([]*models.Exchange, 0, len(all))
			for _, e := range all {
				if enabledOnly && !e.Enabled {
					continue
				}
				if disabledOnly && e.Enabled {
					continue
				}
				filtered = append(filtered, e)
			}

			if asJSON {
				return printJSON(filtered)
			}
			for _, e := range filtered {
				fmt.Printf("%-4d %-12s enabled=%-5v interval=%-5ds volume=%.2f\n", e.ID, e.Name, e.Enabled, e.Interval, e.Volume)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&available, "available", false, "list exchanges the upstream library has an adapter for, instead of the store's contents")
	cmd.Flags().BoolVar(&enabledOnly, "enabled", false, "only show enabled exchanges")
	cmd.Flags().BoolVar(&disabledOnly, "disabled", false, "only show disabled exchanges")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON instead of a table")
	return cmd
}

func printAvailable(asJSON bool) error {
	if asJSON {
		return printJSON(upstream.SupportedExchanges)
	}
	for _, n := range upstream.SupportedExchanges {
		fmt.Println(n)
	}
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newFetchExchangeDataCmd(apiURL *string) *cobra.Command {
	var background bool

	cmd := &cobra.Command{
		Use:   "fetch_exchange_data ID",
		Short: "Trigger an immediate fetch for one exchange via the running daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			base := resolveAPIURL(*apiURL, cfg)

			var exchangeID int
			if _, err := fmt.Sscanf(args[0], "%d", &exchangeID); err != nil {
				return fmt.Errorf("invalid exchange id %q", args[0])
			}

			body, _ := json.Marshal(map[string]int{"exchange_id": exchangeID})
			resp, err := http.Post(base+"/run_exchange", "application/json", bytes.NewReader(body))
			if err != nil {
				return fmt.Errorf("call daemon: %w", err)
			}
			defer resp.Body.Close()

			var result map[string]interface{}
			_ = json.NewDecoder(resp.Body).Decode(&result)

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("daemon returned %d: %v", resp.StatusCode, result)
			}

			jobID, _ := result["job_id"].(string)
			fmt.Printf("enqueued job %s for exchange %d\n", jobID, exchangeID)
			if background {
				return nil
			}

			return waitForCompletion(base, exchangeID)
		},
	}
	cmd.Flags().BoolVar(&background, "background", false, "return immediately instead of waiting for the fetch to finish")
	return cmd
}

// waitForCompletion polls GET /exchange_statuses until the exchange is no
// longer running, the foreground behavior for fetch_exchange_data.
func waitForCompletion(baseURL string, exchangeID int) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	deadline := time.After(5 * time.Minute)

	for {
		select {
		case <-deadline:
			return fmt.Errorf("timed out waiting for exchange %d to finish", exchangeID)
		case <-ticker.C:
			resp, err := http.Get(fmt.Sprintf("%s/exchange_statuses?exchange=%d", baseURL, exchangeID))
			if err != nil {
				return fmt.Errorf("poll status: %w", err)
			}
			var payload struct {
				Results []models.ExchangeStatus `json:"results"`
			}
			err = json.NewDecoder(resp.Body).Decode(&payload)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("decode status: %w", err)
			}
			if len(payload.Results) == 0 || !payload.Results[0].Running {
				fmt.Println("fetch complete")
				return nil
			}
		}
	}
}

// newGCMarketsCmd deletes Market rows untouched since before
// MARKET_STALE_DAYS (spec §9 open question 2: stale rows persist between
// fetches and are only cleared by an explicit sweep, not wiped per-batch).
func newGCMarketsCmd() *cobra.Command {
	var staleDays int

	cmd := &cobra.Command{
		Use:   "gc-markets",
		Short: "Delete Market rows not updated in the last N days (default MARKET_STALE_DAYS)",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			days := staleDays
			if days <= 0 {
				days = cfg.Scheduler.MarketStaleDays
			}
			cutoff := time.Now().AddDate(0, 0, -days)

			n, err := repository.NewMarketRepository(db).DeleteStale(cutoff)
			if err != nil {
				return fmt.Errorf("delete stale markets: %w", err)
			}
			fmt.Printf("deleted %d market rows untouched since before %s\n", n, cutoff.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().IntVar(&staleDays, "days", 0, "override MARKET_STALE_DAYS for this run")
	return cmd
}

func newDaemonCmd(apiURL *string) *cobra.Command {
	daemon := &cobra.Command{
		Use:   "daemon",
		Short: "Query the running daemon process",
	}
	daemon.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report whether the Scheduler and Poller loops are alive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			base := resolveAPIURL(*apiURL, cfg)

			resp, err := http.Get(base + "/daemon_status")
			if err != nil {
				return fmt.Errorf("call daemon: %w", err)
			}
			defer resp.Body.Close()

			var status map[string]bool
			_ = json.NewDecoder(resp.Body).Decode(&status)

			if resp.StatusCode != http.StatusOK {
				fmt.Printf("daemon unhealthy: %v\n", status)
				os.Exit(1)
			}
			fmt.Printf("daemon healthy: %v\n", status)
			return nil
		},
	})
	for _, use := range []string{"start", "stop", "restart"} {
		daemon.AddCommand(&cobra.Command{
			Use:   use,
			Short: "Not supported: manage the marketmanaged process with the OS process manager",
			RunE: func(cmd *cobra.Command, args []string) error {
				return fmt.Errorf("daemon %s is not supported by this CLI; use the operating system's process manager (systemd, supervisord, ...) to %s marketmanaged", cmd.Use, cmd.Use)
			},
		})
	}
	return daemon
}
