package config

import (
	"os"
	"testing"
	"time"

	"cryptoKline/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	chdir(t, t.TempDir()) // No .env

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Workers)
	assert.Equal(t, 1000, cfg.PageLimit)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, time.Minute, cfg.BackoffBase)
	assert.Equal(t, time.Hour, cfg.BackoffMax)
	assert.Equal(t, time.Second, cfg.RequestInterval)
	assert.Equal(t, DriverSQLite, cfg.StorageDriver)
	assert.Equal(t, "kline_1min", cfg.KlineTable)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Symbols)
	assert.Equal(t, domain.Interval1m, cfg.Interval)
	assert.Equal(t, "1 * * * * *", cfg.UpdateSchedule)
	assert.Equal(t, 24*time.Hour, cfg.BootstrapLookback)

	d := cfg.Downloader()
	assert.Equal(t, cfg.Workers, d.Workers)
	assert.Equal(t, cfg.BackoffBase, d.BaseDelay)
	assert.Equal(t, "info", cfg.Logger().Level)
}

func TestLoadConfig_Overrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("WORKERS", "4")
	t.Setenv("BACKOFF_BASE_SECONDS", "0.5")
	t.Setenv("BACKOFF_MAX_SECONDS", "30")
	t.Setenv("REQUEST_INTERVAL_SECONDS", "0")
	t.Setenv("SYMBOLS", " solusdt, ,bnbusdt ")
	t.Setenv("INTERVAL", "1h")
	t.Setenv("STORAGE_DRIVER", "Postgres")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/klines")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 500*time.Millisecond, cfg.BackoffBase)
	assert.Equal(t, 30*time.Second, cfg.BackoffMax)
	assert.Equal(t, time.Duration(0), cfg.RequestInterval)
	assert.Equal(t, []string{"SOLUSDT", "BNBUSDT"}, cfg.Symbols)
	assert.Equal(t, domain.Interval1h, cfg.Interval)
	assert.Equal(t, DriverPostgres, cfg.StorageDriver)
}

func TestLoadConfig_AccumulatesErrors(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("WORKERS", "zero")
	t.Setenv("PAGE_LIMIT", "5000")
	t.Setenv("INTERVAL", "7m")
	t.Setenv("STORAGE_DRIVER", "mysql")
	t.Setenv("BINANCE_API_KEY", "key-only")

	_, err := LoadConfig()
	require.Error(t, err)
	for _, want := range []string{"WORKERS", "PAGE_LIMIT", "INTERVAL", "STORAGE_DRIVER", "BINANCE_API_SECRET"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(dir+"/.env", []byte("WORKERS=3\nKLINE_TABLE=kline_test\n"), 0o600))
	// godotenv only fills variables that are unset, and leaves them set afterwards
	for _, key := range []string{"WORKERS", "KLINE_TABLE"} {
		require.NoError(t, os.Unsetenv(key))
		t.Cleanup(func() { os.Unsetenv(key) })
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "kline_test", cfg.KlineTable)
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
