// Command marketmanaged is the daemon entrypoint: it wires the Scheduler,
// Poller, Fetch Worker pool, and read API together against one Postgres
// connection and one timeseries backend, then runs until a termination
// signal arrives.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketmanager/internal/api"
	"marketmanager/internal/config"
	"marketmanager/internal/currencyrate"
	"marketmanager/internal/fiatrate"
	"marketmanager/internal/poller"
	"marketmanager/internal/queue"
	"marketmanager/internal/repository"
	"marketmanager/internal/scheduler"
	"marketmanager/internal/snapshot"
	"marketmanager/internal/statusstore"
	"marketmanager/internal/timeseries"
	"marketmanager/internal/upstream"
	"marketmanager/internal/worker"
	"marketmanager/internal/wsbroadcast"
	"marketmanager/pkg/utils"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	utils.InitGlobalLogger(utils.LogConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log := utils.L().WithComponent("daemon")

	db, err := initDatabase(cfg)
	if err != nil {
		log.Error("failed to connect to relational store", utils.Err(err))
		os.Exit(1)
	}
	defer db.Close()
	log.Info("connected to relational store")

	store := statusstore.New(
		repository.NewExchangeRepository(db, []byte(cfg.Security.EncryptionKey)),
		repository.NewExchangeStatusRepository(db),
		repository.NewMarketRepository(db),
		repository.NewFiatPriceRepository(db),
	)

	currencyClient := currencyrate.New(cfg.CurrencyRate.URL, cfg.CurrencyRate.Timeout)
	fiatResolver := fiatrate.New(store, currencyClient, cfg.Scheduler.FiatSymbols)

	snapshotUpdater := snapshot.New(
		db,
		repository.NewMarketRepository(db),
		repository.NewFiatPriceRepository(db),
		repository.NewExchangeRepository(db, []byte(cfg.Security.EncryptionKey)),
		cfg.Scheduler.FiatSymbols,
	)

	tsBackend := timeseries.NewHTTPBackend(cfg.Timeseries.URL, cfg.Timeseries.Database)
	tsQuerier := timeseries.NewHTTPQuerier(cfg.Timeseries.URL, cfg.Timeseries.Database)
	tsWriter := timeseries.New(tsBackend, cfg.Scheduler.TimeseriesWriteFanout, cfg.Timeseries.WriteTimeout)

	jobQueue := queue.New(cfg.Queue.Capacity)

	hub := wsbroadcast.NewHub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)

	nextJobID := func() string { return uuid.New().String() }

	sched := scheduler.New(store, jobQueue, hub, cfg.Scheduler.TickInterval, int(cfg.Scheduler.DefaultFetchInterval.Seconds()), cfg.Scheduler.EnabledExchanges, nextJobID)
	go sched.Run(ctx)

	poll := poller.New(store, jobQueue, hub, cfg.Scheduler.TickInterval, cfg.Scheduler.DefaultTimeout)
	go poll.Run(ctx)

	pool := worker.NewPool(worker.Dependencies{
		Store:       store,
		Factory:     upstream.New,
		FiatRate:    fiatResolver,
		Snapshot:    snapshotUpdater,
		Timeseries:  tsWriter,
		Queue:       jobQueue,
		Broadcaster: hub,
		FiatSymbols: cfg.Scheduler.FiatSymbols,
	}, cfg.Scheduler.WorkerConcurrency)
	go pool.Run(ctx, jobQueue.Jobs())

	heartbeatMaxAge := 3 * cfg.Scheduler.TickInterval
	deps := &api.Dependencies{
		Store:           store,
		Queue:           jobQueue,
		Querier:         tsQuerier,
		Hub:             hub,
		NextJobID:       nextJobID,
		Scheduler:       sched,
		Poller:          poll,
		HeartbeatMaxAge: heartbeatMaxAge,
		PingRelational:  func() error { return db.Ping() },
		PingTimeseries:  func() error { return pingTimeseries(cfg.Timeseries.URL) },
	}

	router := api.SetupRoutes(deps)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting HTTP server", utils.String("addr", server.Addr))
		var serveErr error
		if cfg.Server.UseHTTPS {
			serveErr = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			serveErr = server.ListenAndServe()
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			log.Error("HTTP server failed", utils.Err(serveErr))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	cancel() // stop scheduler, poller, worker pool, and the broadcast hub

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", utils.Err(err))
		os.Exit(1)
	}

	log.Info("shutdown complete")
}

func initDatabase(cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.SSLMode,
	)

	db, err := sql.Open(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// pingTimeseries probes the timeseries backend's own health endpoint,
// since HTTPBackend/HTTPQuerier expose no ping of their own (they speak
// only write and query, respectively).
func pingTimeseries(baseURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/ping", nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("timeseries backend returned %d", resp.StatusCode)
	}
	return nil
}
