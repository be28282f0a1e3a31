package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"cryptoKline/config"
	"cryptoKline/internal/adapters/csvfile"
	"cryptoKline/internal/app"
	"cryptoKline/internal/domain"
	"cryptoKline/internal/downloader"
)

func main() {
	symbol := flag.String("symbol", "ETHUSDT", "symbol to fetch")
	intervalFlag := flag.String("interval", "1m", "kline interval")
	months := flag.Int("months", 3, "how many months back from now")
	out := flag.String("out", "data", "output directory")
	flag.Parse()

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

	// 3. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := app.NewExchange(cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(ctx, "Binance client initialized")

	interval, err := domain.ParseInterval(*intervalFlag)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	end := interval.Truncate(time.Now())
	start := end.AddDate(0, -*months, 0)
	task, err := domain.NewFetchTask(*symbol, interval, start, end)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	fmt.Printf("Fetching klines for %s...\n", task)
	fetcher := downloader.NewRangeFetcher(binanceClient, cfg.Downloader(), appLogger)
	batch, err := fetcher.Fetch(ctx, task)
	if err != nil {
		appLogger.Error(ctx, err, "Error fetching klines")
		log.Fatalf("Error fetching klines: %v", err)
	}
	appLogger.Info(ctx, "Fetched klines", map[string]interface{}{
		"count":   batch.Len(),
		"outcome": string(batch.Outcome),
		"gaps":    len(batch.Gaps),
	})

	if err := os.MkdirAll(*out, 0o755); err != nil {
		log.Fatalf("Error creating %s: %v", *out, err)
	}
	filename := filepath.Join(*out, fmt.Sprintf("%s_%s_%s_to_%s.csv", task.Symbol, interval, start.Format("20060102"), end.Format("20060102")))
	if err := csvfile.WriteKlines(filename, batch.Klines); err != nil {
		appLogger.Error(ctx, err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": filename})
}
