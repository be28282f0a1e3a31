package updater

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"cryptoKline/internal/domain"
	"cryptoKline/internal/ports"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// memRepo keeps klines per symbol keyed by open time.
type memRepo struct {
	mu       sync.Mutex
	rows     map[string]map[time.Time]*domain.Kline
	countErr error
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[string]map[time.Time]*domain.Kline)}
}

func (r *memRepo) AppendKlines(ctx context.Context, table string, klines []*domain.Kline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range klines {
		if r.rows[k.Symbol] == nil {
			r.rows[k.Symbol] = make(map[time.Time]*domain.Kline)
		}
		r.rows[k.Symbol][k.OpenTime] = k
	}
	return nil
}

func (r *memRepo) LatestOpenTime(ctx context.Context, table, symbol string, interval domain.Interval) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest time.Time
	for t := range r.rows[symbol] {
		if t.After(latest) {
			latest = t
		}
	}
	return latest, nil
}

func (r *memRepo) CountRange(ctx context.Context, table, symbol string, interval domain.Interval, start, end time.Time) (int, error) {
	if r.countErr != nil {
		return 0, r.countErr
	}
	rows, _ := r.FindRange(ctx, table, symbol, interval, start, end)
	return len(rows), nil
}

func (r *memRepo) FindRange(ctx context.Context, table, symbol string, interval domain.Interval, start, end time.Time) ([]*domain.Kline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Kline
	for t, k := range r.rows[symbol] {
		if !t.Before(start) && t.Before(end) {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	return out, nil
}

func (r *memRepo) Close() error { return nil }

func (r *memRepo) seed(symbol string, start time.Time, n int) {
	var ks []*domain.Kline
	for i := 0; i < n; i++ {
		ks = append(ks, bar(symbol, start.Add(time.Duration(i)*time.Minute)))
	}
	_ = r.AppendKlines(context.Background(), "kline_1min", ks)
}

// fakeFetcher serves a complete minute series for any task.
type fakeFetcher struct {
	mu      sync.Mutex
	tasks   []domain.FetchTask
	err     error
	partial bool
}

func (f *fakeFetcher) Fetch(ctx context.Context, task domain.FetchTask) (*domain.KlineBatch, error) {
	f.mu.Lock()
	f.tasks = append(f.tasks, task)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	batch := &domain.KlineBatch{Task: task, Outcome: domain.OutcomeDone}
	for t := task.Start; t.Before(task.End); t = task.Interval.Next(t) {
		batch.Klines = append(batch.Klines, bar(task.Symbol, t))
		if f.partial && len(batch.Klines) == 2 {
			batch.Outcome = domain.OutcomeExhausted
			batch.Attempts = 5
			break
		}
	}
	return batch, nil
}

func (f *fakeFetcher) Tasks() []domain.FetchTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.FetchTask(nil), f.tasks...)
}

func bar(symbol string, open time.Time) *domain.Kline {
	return &domain.Kline{
		Symbol:    symbol,
		Interval:  domain.Interval1m,
		OpenTime:  open,
		CloseTime: open.Add(time.Minute - time.Millisecond),
		Close:     decimal.NewFromInt(100),
	}
}

var now = time.Date(2024, 3, 10, 14, 25, 30, 0, time.UTC)

func testConfig(symbols ...string) Config {
	return Config{
		Table:             "kline_1min",
		Symbols:           symbols,
		Interval:          domain.Interval1m,
		BootstrapLookback: 2 * time.Hour,
	}
}

func newTestUpdater(t *testing.T, repo *memRepo, fetcher *fakeFetcher, symbols ...string) *Updater {
	t.Helper()
	u, err := New(repo, fetcher, &mockLogger{}, testConfig(symbols...))
	require.NoError(t, err)
	u.now = func() time.Time { return now }
	return u
}

func TestNew_Validation(t *testing.T) {
	_, err := New(newMemRepo(), &fakeFetcher{}, &mockLogger{}, Config{})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	_, err = New(nil, &fakeFetcher{}, &mockLogger{}, testConfig("BTCUSDT"))
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestTick_ContinuesFromLatest(t *testing.T) {
	repo := newMemRepo()
	repo.seed("BTCUSDT", time.Date(2024, 3, 10, 14, 0, 0, 0, time.UTC), 20) // Through 14:19
	fetcher := &fakeFetcher{}
	u := newTestUpdater(t, repo, fetcher, "BTCUSDT")

	require.NoError(t, u.Tick(context.Background()))

	tasks := fetcher.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, time.Date(2024, 3, 10, 14, 20, 0, 0, time.UTC), tasks[0].Start)
	assert.Equal(t, time.Date(2024, 3, 10, 14, 25, 0, 0, time.UTC), tasks[0].End, "the open bar is not requested")

	latest, _ := repo.LatestOpenTime(context.Background(), "kline_1min", "BTCUSDT", domain.Interval1m)
	assert.Equal(t, time.Date(2024, 3, 10, 14, 24, 0, 0, time.UTC), latest)
}

func TestTick_Bootstrap(t *testing.T) {
	repo := newMemRepo()
	fetcher := &fakeFetcher{}
	u := newTestUpdater(t, repo, fetcher, "ETHUSDT")

	require.NoError(t, u.Tick(context.Background()))

	tasks := fetcher.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, time.Date(2024, 3, 10, 12, 25, 0, 0, time.UTC), tasks[0].Start)
	n, _ := repo.CountRange(context.Background(), "kline_1min", "ETHUSDT", domain.Interval1m, tasks[0].Start, tasks[0].End)
	assert.Equal(t, 120, n)
}

func TestTick_UpToDate(t *testing.T) {
	repo := newMemRepo()
	repo.seed("BTCUSDT", time.Date(2024, 3, 10, 14, 24, 0, 0, time.UTC), 1)
	fetcher := &fakeFetcher{}
	u := newTestUpdater(t, repo, fetcher, "BTCUSDT")

	require.NoError(t, u.Tick(context.Background()))
	assert.Empty(t, fetcher.Tasks())
}

func TestTick_FailureDoesNotStopOtherSymbols(t *testing.T) {
	repo := newMemRepo()
	fetcher := &fakeFetcher{err: &ports.FatalError{Op: "FetchPage", Err: ports.ErrUnknownSymbol}}
	u := newTestUpdater(t, repo, fetcher, "BADUSDT", "BTCUSDT")

	err := u.Tick(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrUnknownSymbol)
	assert.Contains(t, err.Error(), "BADUSDT")
	assert.Len(t, fetcher.Tasks(), 2)
}

func TestTick_PartialBatchIsStoredAndReported(t *testing.T) {
	repo := newMemRepo()
	fetcher := &fakeFetcher{partial: true}
	u := newTestUpdater(t, repo, fetcher, "BTCUSDT")

	err := u.Tick(context.Background())
	assert.ErrorIs(t, err, ports.ErrRetryExhausted)

	latest, _ := repo.LatestOpenTime(context.Background(), "kline_1min", "BTCUSDT", domain.Interval1m)
	assert.False(t, latest.IsZero(), "rows fetched before exhaustion are kept")
}

func TestTick_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fetcher := &fakeFetcher{}
	u := newTestUpdater(t, newMemRepo(), fetcher, "BTCUSDT")

	err := u.Tick(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, fetcher.Tasks())
}
