package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"cryptoKline/config"
	"cryptoKline/internal/app"
	"cryptoKline/internal/domain"
	"cryptoKline/internal/downloader"
	"cryptoKline/internal/updater"
)

// repair checks stored row counts day by day and refetches incomplete days.
func main() {
	from := flag.String("from", "", "first day to check, YYYY-MM-DD (required)")
	to := flag.String("to", "", "last day to check, YYYY-MM-DD (default: yesterday)")
	flag.Parse()

	start, err := time.ParseInLocation(domain.DateLayout, *from, time.UTC)
	if err != nil {
		log.Fatalf("FATAL: invalid -from: %v", err)
	}
	end := time.Now().UTC().AddDate(0, 0, -1)
	if *to != "" {
		if end, err = time.ParseInLocation(domain.DateLayout, *to, time.UTC); err != nil {
			log.Fatalf("FATAL: invalid -to: %v", err)
		}
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger, err := app.NewLogger(cfg)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := app.OpenRepository(cfg, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	client, err := app.NewExchange(cfg, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	fetcher := downloader.NewRangeFetcher(client, cfg.Downloader(), appLogger)
	checker, err := updater.NewChecker(repo, fetcher, appLogger, updater.Config{
		Table:             cfg.KlineTable,
		Symbols:           cfg.Symbols,
		Interval:          cfg.Interval,
		BootstrapLookback: cfg.BootstrapLookback,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize integrity checker: %v", err)
	}

	repairs, err := checker.RepairDays(ctx, start, end)
	for _, r := range repairs {
		fmt.Printf("%s %s: found %d of %d, fetched %d\n",
			r.Symbol, r.Start.Format(domain.DateLayout), r.Found, r.Expected, r.Fetched)
	}
	if err != nil {
		appLogger.Error(ctx, err, "Repair finished with errors")
		log.Fatalf("FATAL: %v", err)
	}
	fmt.Printf("%d windows repaired\n", len(repairs))
}
