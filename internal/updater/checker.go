package updater

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cryptoKline/internal/domain"
	"cryptoKline/internal/ports"
)

// Repair reports one window whose stored row count was wrong.
type Repair struct {
	Symbol   string
	Start    time.Time
	End      time.Time
	Found    int
	Expected int
	Fetched  int
}

// Checker compares stored row counts with the number of bars a window
// should hold and refetches the windows that fall short.
type Checker struct {
	syncer
}

// NewChecker creates a Checker.
func NewChecker(repo ports.KlineRepository, fetcher Fetcher, logger ports.Logger, cfg Config) (*Checker, error) {
	s, err := newSyncer(repo, fetcher, logger, cfg)
	if err != nil {
		return nil, err
	}
	return &Checker{syncer: s}, nil
}

// CheckPreviousHour verifies the last full UTC hour of every symbol.
func (c *Checker) CheckPreviousHour(ctx context.Context) ([]Repair, error) {
	end := c.now().UTC().Truncate(time.Hour)
	return c.checkWindow(ctx, end.Add(-time.Hour), end)
}

// CheckToday counts today's closed bars and falls back to CheckPreviousHour
// when any symbol is off.
func (c *Checker) CheckToday(ctx context.Context) ([]Repair, error) {
	end := c.closedEnd()
	start := domain.Interval1d.Truncate(end)
	expected := c.cfg.Interval.BarsBetween(start, end)

	complete := true
	for _, symbol := range c.cfg.Symbols {
		found, err := c.repo.CountRange(ctx, c.cfg.Table, symbol, c.cfg.Interval, start, end)
		if err != nil {
			return nil, fmt.Errorf("count %s today: %w", symbol, err)
		}
		if found != expected {
			c.logger.Warn(ctx, "Today's klines are incomplete", map[string]interface{}{
				"symbol":   symbol,
				"found":    found,
				"expected": expected,
			})
			complete = false
		}
	}
	if complete {
		c.logger.Debug(ctx, "Today's klines are complete", map[string]interface{}{"expected": expected})
		return nil, nil
	}
	return c.CheckPreviousHour(ctx)
}

// RepairDays checks every UTC day in [from, to] and refetches incomplete
// ones. The current day is skipped because it is still filling.
func (c *Checker) RepairDays(ctx context.Context, from, to time.Time) ([]Repair, error) {
	today := domain.Interval1d.Truncate(c.now())
	var (
		repairs []Repair
		errs    []error
	)
	for _, day := range domain.DateRange(from, to) {
		if !day.Before(today) {
			break
		}
		if err := ctx.Err(); err != nil {
			return repairs, errors.Join(append(errs, err)...)
		}
		r, err := c.checkWindow(ctx, day, day.AddDate(0, 0, 1))
		repairs = append(repairs, r...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return repairs, errors.Join(errs...)
}

func (c *Checker) checkWindow(ctx context.Context, start, end time.Time) ([]Repair, error) {
	expected := c.cfg.Interval.BarsBetween(start, end)
	if expected == 0 {
		return nil, nil
	}

	var (
		repairs []Repair
		errs    []error
	)
	for _, symbol := range c.cfg.Symbols {
		fields := map[string]interface{}{
			"symbol": symbol,
			"start":  start.Format(time.RFC3339),
			"end":    end.Format(time.RFC3339),
		}
		found, err := c.repo.CountRange(ctx, c.cfg.Table, symbol, c.cfg.Interval, start, end)
		if err != nil {
			errs = append(errs, fmt.Errorf("count %s: %w", symbol, err))
			continue
		}
		if found == expected {
			continue
		}

		fields["found"] = found
		fields["expected"] = expected
		c.logger.Warn(ctx, "Refetching incomplete window", fields)

		fetched, err := c.refill(ctx, symbol, start, end)
		repairs = append(repairs, Repair{
			Symbol:   symbol,
			Start:    start,
			End:      end,
			Found:    found,
			Expected: expected,
			Fetched:  fetched,
		})
		if err != nil {
			c.logger.Error(ctx, err, "Repair failed", fields)
			errs = append(errs, fmt.Errorf("repair %s: %w", symbol, err))
			continue
		}
		fields["fetched"] = fetched
		c.logger.Info(ctx, "Window repaired", fields)
	}
	return repairs, errors.Join(errs...)
}
