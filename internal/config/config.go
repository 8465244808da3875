package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the whole application configuration.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Security     SecurityConfig
	Scheduler    SchedulerConfig
	Queue        QueueConfig
	Timeseries   TimeseriesConfig
	CurrencyRate CurrencyRateConfig
	Logging      LoggingConfig
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig holds the relational store connection settings.
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig holds the upstream-credential encryption key.
type SecurityConfig struct {
	EncryptionKey string
}

// SchedulerConfig holds the Scheduler/Poller/Fetch Worker parameters.
type SchedulerConfig struct {
	TickInterval          time.Duration // scheduler/poller poll frequency (10s per spec)
	DefaultFetchInterval  time.Duration // EXCHANGE_DEFAULT_FETCH_INTERVAL
	DefaultTimeout        time.Duration // EXCHANGE_TIMEOUT
	WorkerConcurrency     int           // Fetch Worker pool size
	MarketStaleDays       int           // MARKET_STALE_DAYS
	FiatSymbols           []string      // FIAT_SYMBOLS, first element is canonical
	EnabledExchanges      []string      // ENABLED_EXCHANGES, auto-created at startup
	TimeseriesWriteFanout int           // bounded parallelism for the Timeseries Writer
}

// QueueConfig holds the job queue settings.
type QueueConfig struct {
	URL      string // reserved for an external broker (see DESIGN.md)
	Capacity int    // channel buffer size for the in-process implementation
}

// TimeseriesConfig holds the timeseries store settings.
type TimeseriesConfig struct {
	URL          string
	Database     string
	WriteTimeout time.Duration
}

// CurrencyRateConfig holds the external currency-rate service settings.
type CurrencyRateConfig struct {
	URL     string
	Timeout time.Duration
}

// LoggingConfig holds the logging settings.
type LoggingConfig struct {
	Level  string
	Format string
}

// CanonicalFiat returns the canonical fiat currency (first element of FIAT_SYMBOLS).
func (c SchedulerConfig) CanonicalFiat() string {
	if len(c.FiatSymbols) == 0 {
		return "USD"
	}
	return c.FiatSymbols[0]
}

// IsFiat reports whether symbol is one of FIAT_SYMBOLS.
func (c SchedulerConfig) IsFiat(symbol string) bool {
	for _, s := range c.FiatSymbols {
		if strings.EqualFold(s, symbol) {
			return true
		}
	}
	return false
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "marketmanager"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		},
		Scheduler: SchedulerConfig{
			TickInterval:          getEnvAsDuration("SCHEDULER_TICK_INTERVAL", 10*time.Second),
			DefaultFetchInterval:  getEnvAsDuration("EXCHANGE_DEFAULT_FETCH_INTERVAL", 300*time.Second),
			DefaultTimeout:        getEnvAsDuration("EXCHANGE_TIMEOUT", 30*time.Second),
			WorkerConcurrency:     getEnvAsInt("WORKER_CONCURRENCY", 4),
			MarketStaleDays:       getEnvAsInt("MARKET_STALE_DAYS", 30),
			FiatSymbols:           getEnvAsList("FIAT_SYMBOLS", []string{"USD", "EUR"}),
			EnabledExchanges:      getEnvAsList("ENABLED_EXCHANGES", nil),
			TimeseriesWriteFanout: getEnvAsInt("TIMESERIES_WRITE_FANOUT", 5),
		},
		Queue: QueueConfig{
			URL:      getEnv("QUEUE_URL", ""),
			Capacity: getEnvAsInt("QUEUE_CAPACITY", 256),
		},
		Timeseries: TimeseriesConfig{
			URL:          getEnv("TIMESERIES_URL", "http://localhost:8086"),
			Database:     getEnv("TIMESERIES_DB", "marketmanager"),
			WriteTimeout: getEnvAsDuration("TIMESERIES_WRITE_TIMEOUT", 5*time.Second),
		},
		CurrencyRate: CurrencyRateConfig{
			URL:     getEnv("CURRENCY_SERVICE_URL", ""),
			Timeout: getEnvAsDuration("CURRENCY_SERVICE_TIMEOUT", 5*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	if cfg.Security.EncryptionKey != "" && len(cfg.Security.EncryptionKey) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	if len(cfg.Scheduler.FiatSymbols) == 0 {
		return nil, fmt.Errorf("FIAT_SYMBOLS is required and must name at least one currency")
	}

	return cfg, nil
}

// Helpers for reading typed environment variables.

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList parses an environment variable as a comma-separated list,
// preserving order (FIAT_SYMBOLS relies on this: the first element is canonical).
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, strings.ToUpper(p))
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
