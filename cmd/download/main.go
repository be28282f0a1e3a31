package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cryptoKline/config"
	"cryptoKline/internal/adapters/csvfile"
	"cryptoKline/internal/app"
	"cryptoKline/internal/domain"
	"cryptoKline/internal/downloader"
	"cryptoKline/internal/metrics"
	"cryptoKline/internal/ports"
)

// reportEntry is one unrouted task in the JSON report.
type reportEntry struct {
	TaskID   string `json:"taskId"`
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Reason   string `json:"reason"`
	Error    string `json:"error,omitempty"`
	Rows     int    `json:"rows,omitempty"`
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
}

func run() error {
	startDate := flag.String("start", "", "first day to download, YYYY-MM-DD (required)")
	endDate := flag.String("end", "", "last day to download, YYYY-MM-DD (default: yesterday)")
	symbolsFlag := flag.String("symbols", "", "comma separated symbols (default: SYMBOLS)")
	all := flag.Bool("all", false, "download every spot symbol with margin trading for QUOTE_ASSET")
	dataDir := flag.String("data", "", "CSV root directory (default: DATA_DIR)")
	toDB := flag.Bool("db", false, "also upsert into the configured database")
	skipExisting := flag.Bool("skip-existing", true, "skip days whose CSV file already exists")
	reportPath := flag.String("report", "download_report.json", "where to write tasks that did not reach every sink")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	appLogger, err := app.NewLogger(cfg)
	if err != nil {
		return err
	}

	// Ctrl-C aborts in-flight requests and backoffs
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *startDate == "" {
		return fmt.Errorf("-start is required")
	}
	start, err := time.ParseInLocation(domain.DateLayout, *startDate, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid -start: %w", err)
	}
	end := time.Now().UTC().AddDate(0, 0, -1)
	if *endDate != "" {
		if end, err = time.ParseInLocation(domain.DateLayout, *endDate, time.UTC); err != nil {
			return fmt.Errorf("invalid -end: %w", err)
		}
	}

	// 2. Exchange client and symbol list
	client, err := app.NewExchange(cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize Binance client: %w", err)
	}
	symbols := cfg.Symbols
	switch {
	case *all:
		if symbols, err = client.ListSymbols(ctx, cfg.QuoteAsset); err != nil {
			return fmt.Errorf("failed to list symbols: %w", err)
		}
	case *symbolsFlag != "":
		symbols = nil
		for _, sym := range strings.Split(*symbolsFlag, ",") {
			if sym = strings.ToUpper(strings.TrimSpace(sym)); sym != "" {
				symbols = append(symbols, sym)
			}
		}
	}
	appLogger.Info(ctx, "Symbols selected", map[string]interface{}{"count": len(symbols)})

	// 3. Sinks
	var sinks []ports.Sink
	root := *dataDir
	if root == "" {
		root = cfg.DataDir
	}
	var files *csvfile.Store
	if root != "" {
		if files, err = csvfile.New(csvfile.Config{Root: root, Logger: appLogger}); err != nil {
			return fmt.Errorf("failed to open CSV store: %w", err)
		}
		sinks = append(sinks, files)
	}
	if *toDB {
		repo, err := app.OpenRepository(cfg, appLogger)
		if err != nil {
			return fmt.Errorf("failed to initialize database repository: %w", err)
		}
		defer repo.Close()
		dbSink, err := repo.Sink(cfg.KlineTable)
		if err != nil {
			return err
		}
		sinks = append(sinks, dbSink)
	}
	if len(sinks) == 0 {
		return fmt.Errorf("nothing to write to, set -data/DATA_DIR or -db")
	}

	notify, err := app.NewNotifier(cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize notifier: %w", err)
	}
	m := metrics.New()
	app.ServeMetrics(ctx, cfg, m, appLogger)

	// 4. Pool
	pool, err := downloader.New(ctx, cfg.Downloader(), client, appLogger, sinks,
		downloader.WithNotifier(notify), downloader.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	skipped := 0
	for _, symbol := range symbols {
		for _, day := range domain.DateRange(start, end) {
			if *skipExisting && files != nil && files.Exists(symbol, day) {
				skipped++
				continue
			}
			if _, err := pool.SubmitRange(symbol, cfg.Interval, day, day.AddDate(0, 0, 1)); err != nil {
				appLogger.Error(ctx, err, "Failed to submit task", map[string]interface{}{
					"symbol": symbol,
					"day":    day.Format(domain.DateLayout),
				})
			}
		}
	}
	appLogger.Info(ctx, "Tasks submitted", map[string]interface{}{
		"submitted": pool.Stats().Submitted,
		"skipped":   skipped,
	})

	pool.Shutdown()

	// 5. Report
	unrouted := pool.DrainResults()
	if err := writeReport(*reportPath, unrouted); err != nil {
		appLogger.Error(ctx, err, "Failed to write report", map[string]interface{}{"path": *reportPath})
	}
	stats := pool.Stats()
	fmt.Printf("delivered %d, partial %d, empty %d, failed %d, sink failures %d, backoffs %d, unrouted %d (%s)\n",
		stats.Delivered, stats.Partial, stats.Empty, stats.Failed, stats.SinkFailed, stats.Backoffs, len(unrouted), *reportPath)
	if stats.Failed > 0 || stats.SinkFailed > 0 {
		return fmt.Errorf("%d tasks failed, see %s", stats.Failed+stats.SinkFailed, *reportPath)
	}
	return nil
}

func writeReport(path string, unrouted []downloader.Unrouted) error {
	entries := make([]reportEntry, 0, len(unrouted))
	for _, u := range unrouted {
		e := reportEntry{
			TaskID:   u.Task.ID,
			Symbol:   u.Task.Symbol,
			Interval: string(u.Task.Interval),
			Start:    u.Task.Start.Format(time.RFC3339),
			End:      u.Task.End.Format(time.RFC3339),
			Reason:   string(u.Reason),
			Rows:     u.Rows,
		}
		if u.Err != nil {
			e.Error = u.Err.Error()
		}
		entries = append(entries, e)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
