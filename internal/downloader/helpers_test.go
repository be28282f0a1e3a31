package downloader

import (
	"context"
	"sync"
	"time"

	"cryptoKline/internal/domain"

	"github.com/shopspring/decimal"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func bar(symbol string, open time.Time, close string) *domain.Kline {
	return &domain.Kline{
		OpenTime:  open,
		CloseTime: open.Add(time.Minute - time.Millisecond),
		Symbol:    symbol,
		Interval:  domain.Interval1m,
		Open:      decimal.RequireFromString(close),
		High:      decimal.RequireFromString(close),
		Low:       decimal.RequireFromString(close),
		Close:     decimal.RequireFromString(close),
		Volume:    decimal.NewFromInt(1),
	}
}

func series(symbol string, start time.Time, n int) []*domain.Kline {
	out := make([]*domain.Kline, n)
	for i := range out {
		out[i] = bar(symbol, start.Add(time.Duration(i)*time.Minute), "100")
	}
	return out
}

type pageRequest struct {
	Symbol string
	Start  time.Time
	End    time.Time
	Limit  int
}

// fakeClient answers FetchPage through respond, recording every call.
type fakeClient struct {
	mu      sync.Mutex
	calls   []pageRequest
	respond func(call int, req pageRequest) ([]*domain.Kline, error)
}

func (f *fakeClient) FetchPage(ctx context.Context, symbol string, interval domain.Interval, start, end time.Time, limit int) ([]*domain.Kline, error) {
	f.mu.Lock()
	req := pageRequest{Symbol: symbol, Start: start, End: end, Limit: limit}
	f.calls = append(f.calls, req)
	call := len(f.calls) - 1
	f.mu.Unlock()
	return f.respond(call, req)
}

func (f *fakeClient) Calls() []pageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pageRequest(nil), f.calls...)
}

// serveSeries behaves like the exchange over an in-memory dataset.
func serveSeries(data map[string][]*domain.Kline) func(int, pageRequest) ([]*domain.Kline, error) {
	return func(_ int, req pageRequest) ([]*domain.Kline, error) {
		var page []*domain.Kline
		for _, k := range data[req.Symbol] {
			if k.OpenTime.Before(req.Start) || k.OpenTime.After(req.End) {
				continue
			}
			page = append(page, k)
			if len(page) == req.Limit {
				break
			}
		}
		return page, nil
	}
}

// scripted returns responses in order, then serves fallback.
func scripted(fallback func(int, pageRequest) ([]*domain.Kline, error), steps ...func(pageRequest) ([]*domain.Kline, error)) func(int, pageRequest) ([]*domain.Kline, error) {
	return func(call int, req pageRequest) ([]*domain.Kline, error) {
		if call < len(steps) {
			return steps[call](req)
		}
		return fallback(call, req)
	}
}

type recordingSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.sleeps = append(r.sleeps, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleeper) Sleeps() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.sleeps...)
}

type recordingSink struct {
	name    string
	err     error
	panicky bool

	mu      sync.Mutex
	batches []*domain.KlineBatch
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Write(ctx context.Context, batch *domain.KlineBatch) error {
	if s.panicky {
		panic("sink exploded")
	}
	s.mu.Lock()
	s.batches = append(s.batches, batch)
	s.mu.Unlock()
	return s.err
}

func (s *recordingSink) Batches() []*domain.KlineBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.KlineBatch(nil), s.batches...)
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(ctx context.Context, message string) error {
	n.mu.Lock()
	n.messages = append(n.messages, message)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}
