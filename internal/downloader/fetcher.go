package downloader

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"cryptoKline/internal/domain"
	"cryptoKline/internal/metrics"
	"cryptoKline/internal/ports"

	"github.com/jpillora/backoff"
)

type fetchState int

const (
	stateInit fetchState = iota
	stateRequesting
	stateDone
	stateExhausted
	stateFailed
)

func (s fetchState) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateRequesting:
		return "requesting"
	case stateDone:
		return "done"
	case stateExhausted:
		return "exhausted"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RetryState is owned by a single Fetch call and never shared.
type RetryState struct {
	Attempts   int       // Backoff sleeps taken so far
	LastCursor time.Time // Cursor of the request that was rate limited last
}

// RangeFetcher paginates one FetchTask against a KlineClient,
// absorbing rate limits with exponential backoff.
type RangeFetcher struct {
	client  ports.KlineClient
	cfg     Config
	logger  ports.Logger
	sleep   Sleeper
	metrics *metrics.Metrics

	backoffs atomic.Int64
}

// NewRangeFetcher creates a fetcher. Zero config fields take their defaults.
func NewRangeFetcher(client ports.KlineClient, cfg Config, logger ports.Logger, opts ...Option) *RangeFetcher {
	o := buildOptions(opts)
	return &RangeFetcher{
		client:  client,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		sleep:   o.sleep,
		metrics: o.metrics,
	}
}

// Backoffs returns the total number of backoff sleeps taken by this fetcher.
func (f *RangeFetcher) Backoffs() int64 {
	return f.backoffs.Load()
}

// Fetch returns every kline of task opening in [Start, End).
// Running out of backoff budget is not an error: the batch comes back
// with OutcomeExhausted and whatever was collected. Any other failure is
// returned as an error and nothing is delivered.
func (f *RangeFetcher) Fetch(ctx context.Context, task domain.FetchTask) (*domain.KlineBatch, error) {
	var (
		state  = stateInit
		cursor time.Time
		acc    []*domain.Kline
		retry  RetryState
		err    error
	)
	fields := task.Fields()

	for {
		switch state {
		case stateInit:
			cursor = task.Start
			acc = nil
			retry = RetryState{}
			state = stateRequesting

		case stateRequesting:
			if cerr := ctx.Err(); cerr != nil {
				err = &ports.FatalError{Op: "Fetch", Err: fmt.Errorf("%w: %w", ports.ErrContextCanceled, cerr)}
				state = stateFailed
				continue
			}

			page, ferr := f.client.FetchPage(ctx, task.Symbol, task.Interval, cursor, task.End.Add(-time.Millisecond), f.cfg.PageLimit)
			if ferr != nil {
				rl, ok := ports.IsRateLimited(ferr)
				if !ok {
					err = ferr
					state = stateFailed
					continue
				}
				retry.LastCursor = cursor
				if retry.Attempts >= f.cfg.MaxRetries {
					f.logger.Warn(ctx, "Backoff budget exhausted", withFields(fields, map[string]interface{}{
						"attempts": retry.Attempts,
						"cursor":   cursor.Format(time.RFC3339),
						"rows":     len(acc),
					}))
					state = stateExhausted
					continue
				}

				delay := f.backoffDelay(rl, retry.Attempts)
				f.logger.Warn(ctx, "Rate limited, backing off", withFields(fields, map[string]interface{}{
					"tier":    rl.Tier.String(),
					"attempt": retry.Attempts + 1,
					"delay":   delay.String(),
					"cursor":  cursor.Format(time.RFC3339),
				}))
				f.metrics.RateLimited(rl.Tier.String(), delay)
				f.backoffs.Add(1)
				if serr := f.sleep(ctx, delay); serr != nil {
					err = &ports.FatalError{Op: "Fetch", Err: fmt.Errorf("%w: %w", ports.ErrContextCanceled, serr)}
					state = stateFailed
					continue
				}
				retry.Attempts++
				continue
			}

			f.metrics.PageFetched(task.Symbol)
			if len(page) == 0 {
				state = stateDone
				continue
			}
			acc = append(acc, page...)
			if len(page) < f.cfg.PageLimit {
				state = stateDone
				continue
			}

			next := task.Interval.Next(page[len(page)-1].OpenTime)
			if !next.After(cursor) {
				// A full page that does not move forward would loop forever
				f.logger.Warn(ctx, "Pagination cursor did not advance", withFields(fields, map[string]interface{}{
					"cursor": cursor.Format(time.RFC3339),
				}))
				state = stateDone
				continue
			}
			cursor = next
			if !cursor.Before(task.End) {
				state = stateDone
			}

		case stateDone, stateExhausted:
			outcome := domain.OutcomeDone
			if state == stateExhausted {
				outcome = domain.OutcomeExhausted
			}
			batch := assemble(task, acc, outcome, retry.Attempts)
			f.metrics.GapsDetected(task.Symbol, len(batch.Gaps))
			f.logger.Debug(ctx, "Range fetched", withFields(fields, map[string]interface{}{
				"state":    state.String(),
				"rows":     batch.Len(),
				"gaps":     len(batch.Gaps),
				"attempts": retry.Attempts,
			}))
			return batch, nil

		case stateFailed:
			return nil, fmt.Errorf("fetch %s: %w", task, err)
		}
	}
}

// backoffDelay grows BaseDelay*tier by 2^attempts, honoring a longer
// server supplied wait, never beyond MaxDelay.
func (f *RangeFetcher) backoffDelay(rl *ports.RateLimitError, attempts int) time.Duration {
	b := &backoff.Backoff{
		Min:    time.Duration(float64(f.cfg.BaseDelay) * rl.Tier.Multiplier()),
		Max:    f.cfg.MaxDelay,
		Factor: 2,
	}
	d := b.ForAttempt(float64(attempts))
	if rl.RetryAfter > d {
		d = rl.RetryAfter
	}
	if d > f.cfg.MaxDelay {
		d = f.cfg.MaxDelay
	}
	return d
}

// assemble sorts, dedupes (last write wins) and clips rows to the task
// range, then records interior gaps.
func assemble(task domain.FetchTask, rows []*domain.Kline, outcome domain.FetchOutcome, attempts int) *domain.KlineBatch {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].OpenTime.Before(rows[j].OpenTime) })

	klines := make([]*domain.Kline, 0, len(rows))
	for _, k := range rows {
		if k.OpenTime.Before(task.Start) || !k.OpenTime.Before(task.End) {
			continue
		}
		if n := len(klines); n > 0 && klines[n-1].OpenTime.Equal(k.OpenTime) {
			klines[n-1] = k
			continue
		}
		klines = append(klines, k)
	}

	var gaps []domain.Gap
	for i := 1; i < len(klines); i++ {
		want := task.Interval.Next(klines[i-1].OpenTime)
		if klines[i].OpenTime.After(want) {
			gaps = append(gaps, domain.Gap{From: want, To: klines[i].OpenTime})
		}
	}

	return &domain.KlineBatch{
		Task:     task,
		Klines:   klines,
		Outcome:  outcome,
		Gaps:     gaps,
		Attempts: attempts,
	}
}

func withFields(base map[string]interface{}, extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
