package downloader

import (
	"context"
	"time"

	"cryptoKline/internal/metrics"
	"cryptoKline/internal/ports"
)

// Config tunes the worker pool and the per-task backoff policy.
type Config struct {
	Workers         int           // Concurrent workers, default 16
	PageLimit       int           // Rows per request, default 1000 (exchange maximum)
	MaxRetries      int           // Rate limit backoffs per task before giving up, default 5
	BaseDelay       time.Duration // First backoff for the throttled tier, default 60s
	MaxDelay        time.Duration // Backoff ceiling, default 1h
	RequestInterval time.Duration // Pacing between tasks is uniform in [d, 2d]; 0 disables it
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		Workers:         16,
		PageLimit:       1000,
		MaxRetries:      5,
		BaseDelay:       60 * time.Second,
		MaxDelay:        time.Hour,
		RequestInterval: time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.PageLimit <= 0 {
		c.PageLimit = def.PageLimit
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	if c.RequestInterval < 0 {
		c.RequestInterval = 0
	}
	return c
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type options struct {
	notifier ports.Notifier
	metrics  *metrics.Metrics
	sleep    Sleeper
}

// Option customizes a Pool or RangeFetcher.
type Option func(*options)

// WithNotifier routes operator alerts to n.
func WithNotifier(n ports.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithMetrics records pool activity into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithSleeper replaces real sleeping, for tests.
func WithSleeper(s Sleeper) Option {
	return func(o *options) { o.sleep = s }
}

func buildOptions(opts []Option) options {
	o := options{sleep: sleepCtx}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sleep == nil {
		o.sleep = sleepCtx
	}
	return o
}
