package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"cryptoKline/config"
	"cryptoKline/internal/adapters/csvfile"
	"cryptoKline/internal/app"
	"cryptoKline/internal/backtest"
	"cryptoKline/internal/domain"
)

func main() {
	symbol := flag.String("symbol", "BTCUSDT", "symbol to test")
	start := flag.String("start", "2021-01-01", "first day, YYYY-MM-DD")
	end := flag.String("end", "2021-01-02", "day after the last one, YYYY-MM-DD")
	csvPath := flag.String("csv", "", "read klines from this file instead of the database")
	compression := flag.Int("compression", 1440, "bars merged into one before testing")
	period := flag.Int("period", 12, "RSI period")
	upper := flag.Float64("upper", 70, "RSI sell level")
	lower := flag.Float64("lower", 30, "RSI buy level")
	stopLoss := flag.Float64("stop-loss", 0, "stop loss fraction, 0 disables")
	commission := flag.Float64("commission", 0.0075, "commission percent per side")
	cash := flag.Float64("cash", 100000, "starting portfolio")
	stake := flag.Float64("stake", 1, "units bought per entry")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger, err := app.NewLogger(cfg)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	ctx := context.Background()

	// 2. Load klines
	task, err := domain.NewDateTask(*symbol, cfg.Interval, *start, *end)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	var klines []*domain.Kline
	if *csvPath != "" {
		klines, err = csvfile.ReadKlines(*csvPath, cfg.Interval)
	} else {
		repo, rerr := app.OpenRepository(cfg, appLogger)
		if rerr != nil {
			log.Fatalf("FATAL: Failed to initialize database repository: %v", rerr)
		}
		defer repo.Close()
		klines, err = repo.FindRange(ctx, cfg.KlineTable, task.Symbol, task.Interval, task.Start, task.End)
	}
	if err != nil {
		appLogger.Error(ctx, err, "Error loading klines", task.Fields())
		log.Fatalf("Error loading klines: %v", err)
	}
	appLogger.Info(ctx, "Loaded klines", map[string]interface{}{"count": len(klines)})

	bars, err := backtest.Resample(klines, *compression)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	// 3. Run
	params := backtest.Params{
		Period:            *period,
		Upper:             *upper,
		Lower:             *lower,
		StopLoss:          *stopLoss,
		CommissionPercent: *commission,
		Cash:              *cash,
		Stake:             *stake,
	}
	started := time.Now()
	var engine backtest.Engine = backtest.RSIEngine{}
	res, err := engine.Run(ctx, bars, params)
	if err != nil {
		appLogger.Error(ctx, err, "Backtest failed")
		log.Fatalf("Backtest failed: %v", err)
	}
	appLogger.Info(ctx, "Backtest finished", map[string]interface{}{
		"bars":     len(bars),
		"trades":   len(res.Trades),
		"duration": time.Since(started).String(),
	})

	fmt.Printf("%s %s..%s RSI (Pd %d) (SL %.1f%%) (U%.0f L%.0f) Net $%.2f (%.2f%%) WL %d/%d SQN %.2f\n",
		task.Symbol, *start, *end, *period, *stopLoss*100, *upper, *lower,
		res.NetProfit(), res.NetProfitPercent(), res.Won, res.Lost, res.SQN)
}
