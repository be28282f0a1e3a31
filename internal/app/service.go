package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"cryptoKline/internal/ports"
	"cryptoKline/internal/updater"
)

// Ticker appends newly closed klines.
type Ticker interface {
	Tick(ctx context.Context) error
}

// IntegrityChecker verifies today's stored klines and repairs gaps.
type IntegrityChecker interface {
	CheckToday(ctx context.Context) ([]updater.Repair, error)
}

// ServiceConfig holds the cron specs, each with a leading seconds field.
type ServiceConfig struct {
	UpdateSchedule    string
	IntegritySchedule string // Empty disables the integrity job
}

// UpdaterService keeps the kline store fresh on a cron schedule.
type UpdaterService struct {
	cfg      ServiceConfig
	logger   ports.Logger
	updater  Ticker
	checker  IntegrityChecker
	notifier ports.Notifier

	runs     atomic.Int64
	failures atomic.Int64
}

// NewUpdaterService creates a new application service instance.
func NewUpdaterService(cfg ServiceConfig, logger ports.Logger, u Ticker, checker IntegrityChecker, notifier ports.Notifier) (*UpdaterService, error) {
	if logger == nil || u == nil {
		return nil, fmt.Errorf("missing required dependencies for UpdaterService")
	}
	if cfg.UpdateSchedule == "" {
		return nil, fmt.Errorf("update schedule must be set")
	}
	if cfg.IntegritySchedule != "" && checker == nil {
		return nil, fmt.Errorf("integrity schedule set without a checker")
	}
	return &UpdaterService{
		cfg:      cfg,
		logger:   logger,
		updater:  u,
		checker:  checker,
		notifier: notifier,
	}, nil
}

// Start runs the scheduler until ctx is canceled or SIGINT/SIGTERM arrives,
// then waits for running jobs to return.
func (s *UpdaterService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Updater Service...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{ctx: ctx, logger: s.logger})),
	)
	if _, err := c.AddFunc(s.cfg.UpdateSchedule, func() {
		s.runJob(ctx, "update", s.updater.Tick)
	}); err != nil {
		return fmt.Errorf("invalid update schedule %q: %w", s.cfg.UpdateSchedule, err)
	}
	if s.cfg.IntegritySchedule != "" {
		if _, err := c.AddFunc(s.cfg.IntegritySchedule, func() {
			s.runJob(ctx, "integrity", s.checkIntegrity)
		}); err != nil {
			return fmt.Errorf("invalid integrity schedule %q: %w", s.cfg.IntegritySchedule, err)
		}
	}

	c.Start()
	s.logger.Info(ctx, "Scheduler started", map[string]interface{}{
		"update":    s.cfg.UpdateSchedule,
		"integrity": s.cfg.IntegritySchedule,
	})

	<-ctx.Done()
	s.logger.Info(ctx, "Context cancelled, waiting for running jobs...")
	<-c.Stop().Done()

	s.logger.Info(ctx, "Updater Service stopped.", map[string]interface{}{
		"runs":     s.runs.Load(),
		"failures": s.failures.Load(),
	})
	return nil
}

func (s *UpdaterService) checkIntegrity(ctx context.Context) error {
	repairs, err := s.checker.CheckToday(ctx)
	for _, r := range repairs {
		s.logger.Info(ctx, "Integrity repair", map[string]interface{}{
			"symbol":   r.Symbol,
			"start":    r.Start.Format(time.RFC3339),
			"found":    r.Found,
			"expected": r.Expected,
			"fetched":  r.Fetched,
		})
	}
	return err
}

// runJob executes one scheduled job, logging and notifying on failure.
func (s *UpdaterService) runJob(ctx context.Context, name string, job func(context.Context) error) {
	s.runs.Add(1)
	started := time.Now()
	err := job(ctx)
	fields := map[string]interface{}{
		"job":      name,
		"duration": time.Since(started).String(),
	}
	if err == nil {
		s.logger.Debug(ctx, "Job finished", fields)
		return
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		s.logger.Info(ctx, "Job interrupted by shutdown", fields)
		return
	}

	s.failures.Add(1)
	s.logger.Error(ctx, err, "Job failed", fields)
	if s.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if nerr := s.notifier.Notify(nctx, fmt.Sprintf("kline %s job failed: %v", name, err)); nerr != nil {
		s.logger.Error(ctx, nerr, "Notification failed", fields)
	}
}

// cronLogger routes cron's own messages into ports.Logger.
type cronLogger struct {
	ctx    context.Context
	logger ports.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(l.ctx, "cron: "+msg, kvFields(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(l.ctx, err, "cron: "+msg, kvFields(keysAndValues))
}

func kvFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
