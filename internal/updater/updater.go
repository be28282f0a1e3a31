package updater

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cryptoKline/internal/domain"
	"cryptoKline/internal/ports"
)

// Fetcher fetches every kline of a task. *downloader.RangeFetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, task domain.FetchTask) (*domain.KlineBatch, error)
}

// Config selects what the updater keeps fresh.
type Config struct {
	Table             string
	Symbols           []string
	Interval          domain.Interval
	BootstrapLookback time.Duration // Window fetched when a symbol has no rows yet
}

func (c Config) validate() error {
	var errs []string
	if c.Table == "" {
		errs = append(errs, "table is required")
	}
	if len(c.Symbols) == 0 {
		errs = append(errs, "at least one symbol is required")
	}
	if !c.Interval.IsValid() {
		errs = append(errs, fmt.Sprintf("unsupported interval %q", c.Interval))
	}
	if c.BootstrapLookback <= 0 {
		errs = append(errs, "bootstrap lookback must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ports.ErrConfigurationError, strings.Join(errs, "; "))
	}
	return nil
}

// syncer holds what the updater and the checker share: refetching a range
// and upserting it.
type syncer struct {
	repo    ports.KlineRepository
	fetcher Fetcher
	logger  ports.Logger
	cfg     Config
	now     func() time.Time
}

func newSyncer(repo ports.KlineRepository, fetcher Fetcher, logger ports.Logger, cfg Config) (syncer, error) {
	if repo == nil || fetcher == nil || logger == nil {
		return syncer{}, fmt.Errorf("missing required dependencies: %w", ports.ErrConfigurationError)
	}
	if err := cfg.validate(); err != nil {
		return syncer{}, err
	}
	return syncer{repo: repo, fetcher: fetcher, logger: logger, cfg: cfg, now: time.Now}, nil
}

// closedEnd is the open time of the bar still in progress. Everything before it is final.
func (s *syncer) closedEnd() time.Time {
	return s.cfg.Interval.Truncate(s.now())
}

// refill fetches [start, end) for symbol and upserts the result.
func (s *syncer) refill(ctx context.Context, symbol string, start, end time.Time) (int, error) {
	task, err := domain.NewFetchTask(symbol, s.cfg.Interval, start, end)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ports.ErrInvalidRequest, err)
	}

	batch, err := s.fetcher.Fetch(ctx, task)
	if err != nil {
		return 0, err
	}
	if !batch.IsEmpty() {
		if err := s.repo.AppendKlines(ctx, s.cfg.Table, batch.Klines); err != nil {
			return 0, fmt.Errorf("append %s: %w", task, err)
		}
	}
	if batch.IsPartial() {
		return batch.Len(), fmt.Errorf("fetch %s stopped after %d backoffs with %d rows: %w",
			task, batch.Attempts, batch.Len(), ports.ErrRetryExhausted)
	}
	return batch.Len(), nil
}

// Updater appends the bars closed since the last stored one.
type Updater struct {
	syncer
}

// New creates an Updater.
func New(repo ports.KlineRepository, fetcher Fetcher, logger ports.Logger, cfg Config) (*Updater, error) {
	s, err := newSyncer(repo, fetcher, logger, cfg)
	if err != nil {
		return nil, err
	}
	return &Updater{syncer: s}, nil
}

// Tick brings every symbol up to the last closed bar. A failing symbol does
// not stop the others; all failures are returned joined.
func (u *Updater) Tick(ctx context.Context) error {
	end := u.closedEnd()
	var errs []error
	for _, symbol := range u.cfg.Symbols {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := u.updateSymbol(ctx, symbol, end); err != nil {
			u.logger.Error(ctx, err, "Incremental update failed", map[string]interface{}{"symbol": symbol})
			errs = append(errs, fmt.Errorf("update %s: %w", symbol, err))
		}
	}
	return errors.Join(errs...)
}

func (u *Updater) updateSymbol(ctx context.Context, symbol string, end time.Time) error {
	latest, err := u.repo.LatestOpenTime(ctx, u.cfg.Table, symbol, u.cfg.Interval)
	if err != nil {
		return err
	}

	start := u.cfg.Interval.Next(latest)
	if latest.IsZero() {
		start = u.cfg.Interval.Truncate(end.Add(-u.cfg.BootstrapLookback))
		u.logger.Info(ctx, "No stored klines, bootstrapping", map[string]interface{}{
			"symbol": symbol,
			"start":  start.Format(time.RFC3339),
		})
	}
	if !start.Before(end) {
		u.logger.Debug(ctx, "Already up to date", map[string]interface{}{"symbol": symbol})
		return nil
	}

	rows, err := u.refill(ctx, symbol, start, end)
	if err != nil {
		return err
	}
	u.logger.Info(ctx, "Klines updated", map[string]interface{}{
		"symbol": symbol,
		"rows":   rows,
		"start":  start.Format(time.RFC3339),
		"end":    end.Format(time.RFC3339),
	})
	return nil
}
