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
	"cryptoKline/internal/ports"
)

// import_range fills the database with every kline of the configured
// symbols opening in [start, end), one task per day.
func main() {
	startDate := flag.String("start", "", "first day, YYYYMMDD or YYYY-MM-DD (required)")
	endDate := flag.String("end", "", "day after the last one imported, same format (required)")
	flag.Parse()

	start, err := parseDay(*startDate)
	if err != nil {
		log.Fatalf("FATAL: invalid -start: %v", err)
	}
	end, err := parseDay(*endDate)
	if err != nil {
		log.Fatalf("FATAL: invalid -end: %v", err)
	}
	if !start.Before(end) {
		log.Fatalf("FATAL: -start must be before -end")
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
	sink, err := repo.Sink(cfg.KlineTable)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	client, err := app.NewExchange(cfg, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	notify, err := app.NewNotifier(cfg, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize notifier: %v", err)
	}

	pool, err := downloader.New(ctx, cfg.Downloader(), client, appLogger, []ports.Sink{sink}, downloader.WithNotifier(notify))
	if err != nil {
		log.Fatalf("FATAL: Failed to start worker pool: %v", err)
	}
	for _, symbol := range cfg.Symbols {
		for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
			if _, err := pool.SubmitRange(symbol, cfg.Interval, day, minTime(day.AddDate(0, 0, 1), end)); err != nil {
				appLogger.Error(ctx, err, "Failed to submit task", map[string]interface{}{"symbol": symbol})
			}
		}
	}
	pool.Shutdown()

	for _, u := range pool.DrainResults() {
		fmt.Printf("%s %s: %v\n", u.Task, u.Reason, u.Err)
	}
	s := pool.Stats()
	fmt.Printf("imported %d tasks into %s (%d empty, %d failed)\n", s.Delivered, sink.Name(), s.Empty, s.Failed+s.SinkFailed)
}

func parseDay(s string) (time.Time, error) {
	for _, layout := range []string{"20060102", domain.DateLayout} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a date", s)
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
