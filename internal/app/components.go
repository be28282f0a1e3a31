package app

import (
	"context"
	"fmt"
	"os"

	"cryptoKline/config"
	"cryptoKline/internal/adapters/binanceclient"
	"cryptoKline/internal/adapters/logger"
	"cryptoKline/internal/adapters/notifier"
	"cryptoKline/internal/adapters/postgres"
	"cryptoKline/internal/adapters/sqlite"
	"cryptoKline/internal/adapters/sqlstore"
	"cryptoKline/internal/metrics"
	"cryptoKline/internal/ports"
)

// NewLogger builds the application logger from cfg.
func NewLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(cfg.Logger())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return l, nil
}

// NewExchange creates the Binance client.
func NewExchange(cfg *config.Config, log ports.Logger) (*binanceclient.Client, error) {
	return binanceclient.New(binanceclient.Config{
		APIKey:      cfg.APIKey,
		SecretKey:   cfg.SecretKey,
		BaseURL:     cfg.BaseURL,
		ProxyURL:    cfg.ProxyURL,
		HTTPTimeout: cfg.HTTPTimeout,
		Logger:      log,
	})
}

// OpenRepository opens the kline store selected by STORAGE_DRIVER.
func OpenRepository(cfg *config.Config, log ports.Logger) (*sqlstore.Store, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		return postgres.NewRepository(postgres.Config{DSN: cfg.PostgresDSN, Logger: log})
	default:
		return sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: log})
	}
}

// NewNotifier sends alerts to DingTalk when a token is configured and
// always records them in the log.
func NewNotifier(cfg *config.Config, log ports.Logger) (ports.Notifier, error) {
	notifiers := notifier.Multi{notifier.NewLog(log)}
	if cfg.DingTalkAccessToken == "" {
		return notifiers, nil
	}
	host, _ := os.Hostname()
	ding, err := notifier.NewDingTalk(notifier.DingTalkConfig{
		AccessToken: cfg.DingTalkAccessToken,
		Secret:      cfg.DingTalkSecret,
		Prefix:      host,
	})
	if err != nil {
		return nil, err
	}
	return append(notifiers, ding), nil
}

// ServeMetrics exposes m on METRICS_ADDR until ctx is done. It does nothing
// when no address is configured.
func ServeMetrics(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log ports.Logger) {
	if cfg.MetricsAddr == "" {
		return
	}
	go func() {
		log.Info(ctx, "Serving metrics", map[string]interface{}{"addr": cfg.MetricsAddr})
		if err := m.Serve(ctx, cfg.MetricsAddr); err != nil {
			log.Error(ctx, err, "Metrics server stopped")
		}
	}()
}
