package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"cryptoKline/config"
	"cryptoKline/internal/app"
	"cryptoKline/internal/downloader"
	"cryptoKline/internal/metrics"
	"cryptoKline/internal/updater"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, err := app.NewLogger(cfg)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel})

	// 3. Initialize Repository (Database Adapter)
	repo, err := app.OpenRepository(cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()
	appLogger.Info(ctx, "Database repository initialized", map[string]interface{}{"driver": cfg.StorageDriver})

	// 4. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := app.NewExchange(cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	if err := binanceClient.Ping(ctx); err != nil {
		appLogger.Warn(ctx, "Binance ping failed, continuing", map[string]interface{}{"error": err.Error()})
	}
	appLogger.Info(ctx, "Binance client initialized")

	// 5. Notifications and metrics
	notify, err := app.NewNotifier(cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize notifier")
		log.Fatalf("FATAL: Failed to initialize notifier: %v", err)
	}
	m := metrics.New()
	metricsCtx, stopMetrics := context.WithCancel(ctx)
	defer stopMetrics()
	app.ServeMetrics(metricsCtx, cfg, m, appLogger)

	// 6. Updater and integrity checker share one fetcher
	fetcher := downloader.NewRangeFetcher(binanceClient, cfg.Downloader(), appLogger,
		downloader.WithMetrics(m), downloader.WithNotifier(notify))
	updCfg := updater.Config{
		Table:             cfg.KlineTable,
		Symbols:           cfg.Symbols,
		Interval:          cfg.Interval,
		BootstrapLookback: cfg.BootstrapLookback,
	}
	upd, err := updater.New(repo, fetcher, appLogger, updCfg)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize updater: %v", err)
	}
	checker, err := updater.NewChecker(repo, fetcher, appLogger, updCfg)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize integrity checker: %v", err)
	}

	// 7. Initialize Application Service
	svc, err := app.NewUpdaterService(app.ServiceConfig{
		UpdateSchedule:    cfg.UpdateSchedule,
		IntegritySchedule: cfg.IntegritySchedule,
	}, appLogger, upd, checker, notify)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize updater service")
		log.Fatalf("FATAL: Failed to initialize updater service: %v", err)
	}

	// 8. Start the Service
	if err := svc.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "Updater service exited with error")
		log.Fatalf("FATAL: Updater service exited with error: %v", err)
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}
