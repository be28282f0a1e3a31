package downloader

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"cryptoKline/internal/domain"
	"cryptoKline/internal/metrics"
	"cryptoKline/internal/ports"
)

// Stats is a snapshot of pool activity.
type Stats struct {
	Workers    int
	Submitted  int64
	Delivered  int64 // Batches written to every sink, partial ones included
	Partial    int64 // Delivered batches cut short by the backoff budget
	Empty      int64
	Failed     int64
	SinkFailed int64
	Backoffs   int64
	Queued     int
	Unrouted   int
}

// Pool runs a fixed set of workers that drain a shared TaskQueue.
type Pool struct {
	ctx      context.Context
	cfg      Config
	fetcher  *RangeFetcher
	sinks    []ports.Sink
	logger   ports.Logger
	notifier ports.Notifier
	metrics  *metrics.Metrics
	sleep    Sleeper

	queue   *TaskQueue
	results *ResultChannel
	wg      sync.WaitGroup

	mu           sync.Mutex
	closed       bool
	shutdownOnce sync.Once

	submitted  atomic.Int64
	delivered  atomic.Int64
	partial    atomic.Int64
	empty      atomic.Int64
	failed     atomic.Int64
	sinkFailed atomic.Int64
}

// New starts cfg.Workers workers. ctx aborts in-flight requests and
// backoff sleeps when canceled; use Shutdown for a graceful stop.
func New(ctx context.Context, cfg Config, client ports.KlineClient, logger ports.Logger, sinks []ports.Sink, opts ...Option) (*Pool, error) {
	if client == nil {
		return nil, fmt.Errorf("kline client is required: %w", ports.ErrConfigurationError)
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for worker pool")
	}
	for i, s := range sinks {
		if s == nil {
			return nil, fmt.Errorf("sink %d is nil: %w", i, ports.ErrConfigurationError)
		}
	}

	cfg = cfg.withDefaults()
	o := buildOptions(opts)
	p := &Pool{
		ctx:      ctx,
		cfg:      cfg,
		fetcher:  NewRangeFetcher(client, cfg, logger, opts...),
		sinks:    sinks,
		logger:   logger,
		notifier: o.notifier,
		metrics:  o.metrics,
		sleep:    o.sleep,
		queue:    NewTaskQueue(),
		results:  NewResultChannel(),
	}

	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.worker(i)
	}
	logger.Info(ctx, "Worker pool started", map[string]interface{}{
		"workers":    cfg.Workers,
		"pageLimit":  cfg.PageLimit,
		"maxRetries": cfg.MaxRetries,
		"sinks":      len(sinks),
	})
	return p, nil
}

// Submit enqueues task without blocking. It fails with ports.ErrPoolClosed
// once Shutdown has begun.
func (p *Pool) Submit(task domain.FetchTask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ports.ErrPoolClosed
	}
	p.queue.Push(&task)
	p.submitted.Add(1)
	p.metrics.TaskSubmitted()
	p.metrics.SetQueueDepth(p.queue.Len())
	return nil
}

// SubmitRange validates and enqueues a task for [start, end).
func (p *Pool) SubmitRange(symbol string, interval domain.Interval, start, end time.Time) (domain.FetchTask, error) {
	task, err := domain.NewFetchTask(symbol, interval, start, end)
	if err != nil {
		return domain.FetchTask{}, fmt.Errorf("%w: %w", ports.ErrInvalidRequest, err)
	}
	return task, p.Submit(task)
}

// SubmitDates enqueues a task from startDate (inclusive) to endDate
// (exclusive), both YYYY-MM-DD in UTC.
func (p *Pool) SubmitDates(symbol string, interval domain.Interval, startDate, endDate string) (domain.FetchTask, error) {
	task, err := domain.NewDateTask(symbol, interval, startDate, endDate)
	if err != nil {
		return domain.FetchTask{}, fmt.Errorf("%w: %w", ports.ErrInvalidRequest, err)
	}
	return task, p.Submit(task)
}

// DrainResults returns and clears the unrouted tasks collected so far.
func (p *Pool) DrainResults() []Unrouted {
	out := p.results.Drain()
	p.metrics.SetUnrouted(p.results.Len())
	return out
}

// Shutdown stops accepting tasks, lets workers finish everything already
// queued and waits for them to exit. Safe to call more than once.
func (p *Pool) Shutdown() {
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		queued := p.queue.Len()
		// FIFO puts one exit marker per worker behind every queued task
		for i := 0; i < p.cfg.Workers; i++ {
			p.queue.Push(nil)
		}
		p.mu.Unlock()

		p.logger.Info(p.ctx, "Worker pool draining", map[string]interface{}{"queued": queued})
		p.wg.Wait()
		p.logger.Info(p.ctx, "Worker pool stopped", p.statsFields())
	})
}

// Stats returns a snapshot of the counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:    p.cfg.Workers,
		Submitted:  p.submitted.Load(),
		Delivered:  p.delivered.Load(),
		Partial:    p.partial.Load(),
		Empty:      p.empty.Load(),
		Failed:     p.failed.Load(),
		SinkFailed: p.sinkFailed.Load(),
		Backoffs:   p.fetcher.Backoffs(),
		Queued:     p.queue.Len(),
		Unrouted:   p.results.Len(),
	}
}

func (p *Pool) statsFields() map[string]interface{} {
	s := p.Stats()
	return map[string]interface{}{
		"submitted":  s.Submitted,
		"delivered":  s.Delivered,
		"partial":    s.Partial,
		"empty":      s.Empty,
		"failed":     s.Failed,
		"sinkFailed": s.SinkFailed,
		"backoffs":   s.Backoffs,
		"unrouted":   s.Unrouted,
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		task := p.queue.Pop()
		p.metrics.SetQueueDepth(p.queue.Len())
		if task == nil {
			p.logger.Debug(p.ctx, "Worker exiting", map[string]interface{}{"worker": id})
			return
		}
		p.process(id, *task)
		p.pace()
	}
}

// pace spreads requests out so workers do not hit the exchange in lockstep.
func (p *Pool) pace() {
	d := p.cfg.RequestInterval
	if d <= 0 || p.ctx.Err() != nil {
		return
	}
	_ = p.sleep(p.ctx, d+rand.N(d+1))
}

func (p *Pool) process(workerID int, task domain.FetchTask) {
	fields := task.Fields()
	fields["worker"] = workerID

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("worker panic: %v", r)
			p.failed.Add(1)
			p.metrics.TaskCompleted(string(ReasonPanic))
			p.logger.Error(p.ctx, err, "Recovered from panic while processing task", fields)
			p.notify(fmt.Sprintf("kline task %s panicked: %v", task, r))
			p.pushUnrouted(Unrouted{Task: task, Reason: ReasonPanic, Err: err})
		}
	}()

	batch, err := p.fetcher.Fetch(p.ctx, task)
	if err != nil {
		p.failed.Add(1)
		p.metrics.TaskCompleted(string(ReasonFetchFailed))
		p.logger.Error(p.ctx, err, "Fetch failed", fields)
		if p.ctx.Err() == nil {
			p.notify(fmt.Sprintf("kline fetch failed for %s: %v", task, err))
		}
		p.pushUnrouted(Unrouted{Task: task, Reason: ReasonFetchFailed, Err: err})
		return
	}

	if batch.IsEmpty() {
		p.empty.Add(1)
		p.metrics.TaskCompleted(string(ReasonEmpty))
		u := Unrouted{Task: task, Reason: ReasonEmpty}
		if batch.IsPartial() {
			u.Err = ports.ErrRetryExhausted
			p.notify(fmt.Sprintf("kline fetch for %s gave up after %d backoffs with no data", task, batch.Attempts))
		}
		p.logger.Warn(p.ctx, "Fetch returned no rows", fields)
		p.pushUnrouted(u)
		return
	}

	if batch.IsPartial() {
		p.logger.Warn(p.ctx, "Delivering partial batch", withFields(fields, map[string]interface{}{
			"rows":     batch.Len(),
			"attempts": batch.Attempts,
		}))
		p.notify(fmt.Sprintf("kline fetch for %s is partial: %d rows after %d backoffs", task, batch.Len(), batch.Attempts))
	}
	if len(batch.Gaps) > 0 {
		p.logger.Warn(p.ctx, "Batch has missing bars", withFields(fields, map[string]interface{}{
			"gaps":      len(batch.Gaps),
			"firstFrom": batch.Gaps[0].From.Format(time.RFC3339),
			"firstTo":   batch.Gaps[0].To.Format(time.RFC3339),
		}))
	}

	var sinkErrs []error
	for _, s := range p.sinks {
		if werr := s.Write(p.ctx, batch); werr != nil {
			serr := &ports.SinkError{Sink: s.Name(), Err: werr}
			sinkErrs = append(sinkErrs, serr)
			p.metrics.SinkFailed(s.Name())
			p.logger.Error(p.ctx, werr, "Sink write failed", withFields(fields, map[string]interface{}{"sink": s.Name()}))
			p.notify(fmt.Sprintf("kline sink %s failed for %s: %v", s.Name(), task, werr))
			continue
		}
		p.metrics.RowsWritten(s.Name(), batch.Len())
	}

	if len(sinkErrs) > 0 {
		p.sinkFailed.Add(1)
		p.metrics.TaskCompleted(string(ReasonSinkFailed))
		p.pushUnrouted(Unrouted{Task: task, Reason: ReasonSinkFailed, Err: errors.Join(sinkErrs...), Rows: batch.Len()})
		return
	}

	p.delivered.Add(1)
	if batch.IsPartial() {
		p.partial.Add(1)
	}
	p.metrics.TaskCompleted(string(batch.Outcome))
	p.logger.Info(p.ctx, "Batch delivered", withFields(fields, map[string]interface{}{
		"rows":    batch.Len(),
		"outcome": string(batch.Outcome),
	}))
}

func (p *Pool) pushUnrouted(u Unrouted) {
	p.results.Push(u)
	p.metrics.SetUnrouted(p.results.Len())
}

func (p *Pool) notify(message string) {
	if p.notifier == nil {
		return
	}
	// Notify even after the pool context is canceled
	ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), 10*time.Second)
	defer cancel()
	if err := p.notifier.Notify(ctx, message); err != nil {
		p.logger.Error(p.ctx, err, "Notification failed", map[string]interface{}{"message": message})
	}
}
