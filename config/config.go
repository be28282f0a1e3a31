package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"cryptoKline/internal/adapters/logger"
	"cryptoKline/internal/domain"
	"cryptoKline/internal/downloader"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	// Binance API. Keys are optional, klines and exchange info are public.
	APIKey      string
	SecretKey   string
	BaseURL     string
	ProxyURL    string
	HTTPTimeout time.Duration

	// Downloader
	Workers         int
	PageLimit       int
	MaxRetries      int
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	RequestInterval time.Duration

	// Storage
	StorageDriver string
	DBPath        string
	PostgresDSN   string
	KlineTable    string
	DataDir       string // Root of the CSV file store, empty disables it

	// Market selection
	Symbols    []string
	Interval   domain.Interval
	QuoteAsset string

	// Scheduling
	UpdateSchedule    string
	IntegritySchedule string
	BootstrapLookback time.Duration

	// Notifications
	DingTalkAccessToken string
	DingTalkSecret      string

	MetricsAddr string // Empty disables the /metrics endpoint

	// Logging
	LogLevel      string
	LogFormat     string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	if (cfg.APIKey == "") != (cfg.SecretKey == "") {
		errs = append(errs, "BINANCE_API_KEY and BINANCE_API_SECRET must be set together")
	}
	cfg.BaseURL = getEnv("BINANCE_BASE_URL", "")
	cfg.ProxyURL = getEnv("HTTP_PROXY_URL", "")

	timeoutSeconds, err := getEnvAsIntRequired("HTTP_TIMEOUT_SECONDS", 30)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid HTTP_TIMEOUT_SECONDS: %v", err))
	} else if timeoutSeconds <= 0 {
		errs = append(errs, "HTTP_TIMEOUT_SECONDS must be positive")
	}
	cfg.HTTPTimeout = time.Duration(timeoutSeconds) * time.Second

	// Downloader
	defaults := downloader.DefaultConfig()
	cfg.Workers, err = getEnvAsIntRequired("WORKERS", defaults.Workers)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid WORKERS: %v", err))
	} else if cfg.Workers <= 0 {
		errs = append(errs, "WORKERS must be positive")
	}

	cfg.PageLimit, err = getEnvAsIntRequired("PAGE_LIMIT", defaults.PageLimit)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PAGE_LIMIT: %v", err))
	} else if cfg.PageLimit <= 0 || cfg.PageLimit > 1000 {
		errs = append(errs, "PAGE_LIMIT must be between 1 and 1000")
	}

	cfg.MaxRetries, err = getEnvAsIntRequired("MAX_RETRIES", defaults.MaxRetries)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_RETRIES: %v", err))
	} else if cfg.MaxRetries < 0 {
		errs = append(errs, "MAX_RETRIES cannot be negative")
	}

	baseSeconds, err := getEnvAsFloatRequired("BACKOFF_BASE_SECONDS", defaults.BaseDelay.Seconds())
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BACKOFF_BASE_SECONDS: %v", err))
	} else if baseSeconds <= 0 {
		errs = append(errs, "BACKOFF_BASE_SECONDS must be positive")
	}
	cfg.BackoffBase = seconds(baseSeconds)

	maxSeconds, err := getEnvAsFloatRequired("BACKOFF_MAX_SECONDS", defaults.MaxDelay.Seconds())
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BACKOFF_MAX_SECONDS: %v", err))
	} else if maxSeconds < baseSeconds {
		errs = append(errs, "BACKOFF_MAX_SECONDS must not be below BACKOFF_BASE_SECONDS")
	}
	cfg.BackoffMax = seconds(maxSeconds)

	intervalSeconds, err := getEnvAsFloatRequired("REQUEST_INTERVAL_SECONDS", defaults.RequestInterval.Seconds())
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid REQUEST_INTERVAL_SECONDS: %v", err))
	} else if intervalSeconds < 0 {
		errs = append(errs, "REQUEST_INTERVAL_SECONDS cannot be negative")
	}
	cfg.RequestInterval = seconds(intervalSeconds)

	// Storage
	cfg.StorageDriver = strings.ToLower(getEnv("STORAGE_DRIVER", DriverSQLite))
	cfg.DBPath = getEnv("DB_PATH", "./data/klines.db")
	cfg.PostgresDSN = getEnv("POSTGRES_DSN", "")
	switch cfg.StorageDriver {
	case DriverSQLite:
		if cfg.DBPath == "" {
			errs = append(errs, "DB_PATH must be set for the sqlite driver")
		}
	case DriverPostgres:
		if cfg.PostgresDSN == "" {
			errs = append(errs, "POSTGRES_DSN must be set for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown STORAGE_DRIVER %q (want sqlite or postgres)", cfg.StorageDriver))
	}
	cfg.KlineTable = getEnv("KLINE_TABLE", "kline_1min")
	cfg.DataDir = getEnv("DATA_DIR", "")

	// Market selection
	cfg.Symbols = getEnvAsList("SYMBOLS", []string{"BTCUSDT", "ETHUSDT"})
	if len(cfg.Symbols) == 0 {
		errs = append(errs, "SYMBOLS must list at least one symbol")
	}
	cfg.Interval, err = domain.ParseInterval(getEnv("INTERVAL", string(domain.Interval1m)))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid INTERVAL: %v", err))
	}
	cfg.QuoteAsset = strings.ToUpper(getEnv("QUOTE_ASSET", "USDT"))

	// Scheduling, cron specs with a leading seconds field
	cfg.UpdateSchedule = getEnv("UPDATE_SCHEDULE", "1 * * * * *")
	cfg.IntegritySchedule = getEnv("INTEGRITY_SCHEDULE", "10 * * * * *")
	lookbackHours, err := getEnvAsIntRequired("BOOTSTRAP_LOOKBACK_HOURS", 24)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BOOTSTRAP_LOOKBACK_HOURS: %v", err))
	} else if lookbackHours <= 0 {
		errs = append(errs, "BOOTSTRAP_LOOKBACK_HOURS must be positive")
	}
	cfg.BootstrapLookback = time.Duration(lookbackHours) * time.Hour

	// Notifications
	cfg.DingTalkAccessToken = getEnv("DINGTALK_ACCESS_TOKEN", "")
	cfg.DingTalkSecret = getEnv("DINGTALK_SECRET", "")
	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")

	// Logging
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, "LOG_FORMAT must be text or json")
	}
	cfg.LogFile = getEnv("LOG_FILE", "")
	cfg.LogMaxSizeMB = getEnvAsInt("LOG_MAX_SIZE_MB", 100)
	cfg.LogMaxBackups = getEnvAsInt("LOG_MAX_BACKUPS", 5)
	cfg.LogMaxAgeDays = getEnvAsInt("LOG_MAX_AGE_DAYS", 30)

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// Downloader returns the worker pool settings.
func (c *Config) Downloader() downloader.Config {
	return downloader.Config{
		Workers:         c.Workers,
		PageLimit:       c.PageLimit,
		MaxRetries:      c.MaxRetries,
		BaseDelay:       c.BackoffBase,
		MaxDelay:        c.BackoffMax,
		RequestInterval: c.RequestInterval,
	}
}

// Logger returns the log output settings.
func (c *Config) Logger() logger.Config {
	return logger.Config{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		File:       c.LogFile,
		MaxSizeMB:  c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
		MaxAgeDays: c.LogMaxAgeDays,
		Compress:   true,
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
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

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}
