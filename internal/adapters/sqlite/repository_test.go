package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cryptoKline/internal/adapters/sqlstore"
	"cryptoKline/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

const testTable = "kline_1min"

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) *sqlstore.Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")
	repo, err := NewRepository(Config{
		DBPath: dbPath,
		Logger: &mockLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	return repo
}

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func makeKline(symbol string, minute int, close string) *domain.Kline {
	open := base.Add(time.Duration(minute) * time.Minute)
	c := decimal.RequireFromString(close)
	return &domain.Kline{
		OpenTime:            open,
		CloseTime:           open.Add(time.Minute - time.Millisecond),
		Symbol:              symbol,
		Interval:            domain.Interval1m,
		Open:                decimal.RequireFromString("100.10"),
		High:                decimal.RequireFromString("101.5"),
		Low:                 decimal.RequireFromString("99.9"),
		Close:               c,
		Volume:              decimal.RequireFromString("12.5"),
		QuoteAssetVolume:    decimal.RequireFromString("1258.75"),
		TradeCount:          42,
		TakerBuyBaseVolume:  decimal.RequireFromString("6.25"),
		TakerBuyQuoteVolume: decimal.RequireFromString("629.375"),
	}
}

func TestRepository_AppendAndFindRange(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	klines := []*domain.Kline{
		makeKline("BTCUSDT", 0, "100.7"),
		makeKline("BTCUSDT", 1, "100.8"),
		makeKline("BTCUSDT", 2, "100.9"),
		makeKline("ETHUSDT", 0, "2000.1"),
	}
	require.NoError(t, repo.AppendKlines(ctx, testTable, klines))

	got, err := repo.FindRange(ctx, testTable, "BTCUSDT", domain.Interval1m, base, base.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, base, got[0].OpenTime)
	assert.Equal(t, base.Add(time.Minute), got[1].OpenTime)
	assert.True(t, got[0].Close.Equal(decimal.RequireFromString("100.7")))
	assert.True(t, got[0].Open.Equal(decimal.RequireFromString("100.1")))
	assert.True(t, got[0].TakerBuyQuoteVolume.Equal(decimal.RequireFromString("629.375")))
	assert.Equal(t, int64(42), got[0].TradeCount)
	assert.Equal(t, domain.Interval1m, got[0].Interval)
	assert.Equal(t, base.Add(time.Minute-time.Millisecond), got[0].CloseTime)
}

func TestRepository_UpsertIsIdempotent(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	batch := []*domain.Kline{
		makeKline("BTCUSDT", 0, "100.7"),
		makeKline("BTCUSDT", 1, "100.8"),
	}
	require.NoError(t, repo.AppendKlines(ctx, testTable, batch))
	require.NoError(t, repo.AppendKlines(ctx, testTable, batch))

	count, err := repo.CountRange(ctx, testTable, "BTCUSDT", domain.Interval1m, base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Last write wins on the same key
	require.NoError(t, repo.AppendKlines(ctx, testTable, []*domain.Kline{makeKline("BTCUSDT", 1, "111.1")}))
	got, err := repo.FindRange(ctx, testTable, "BTCUSDT", domain.Interval1m, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[1].Close.Equal(decimal.RequireFromString("111.1")))
}

func TestRepository_LatestOpenTime(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	latest, err := repo.LatestOpenTime(ctx, testTable, "BTCUSDT", domain.Interval1m)
	require.NoError(t, err)
	assert.True(t, latest.IsZero())

	require.NoError(t, repo.AppendKlines(ctx, testTable, []*domain.Kline{
		makeKline("BTCUSDT", 5, "100"),
		makeKline("BTCUSDT", 3, "100"),
		makeKline("ETHUSDT", 9, "100"),
	}))

	latest, err = repo.LatestOpenTime(ctx, testTable, "BTCUSDT", domain.Interval1m)
	require.NoError(t, err)
	assert.Equal(t, base.Add(5*time.Minute), latest)
}

func TestRepository_Sink(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	sink, err := repo.Sink(testTable)
	require.NoError(t, err)
	assert.Equal(t, "sqlite:kline_1min", sink.Name())

	require.NoError(t, sink.Write(ctx, &domain.KlineBatch{}))
	require.NoError(t, sink.Write(ctx, &domain.KlineBatch{Klines: []*domain.Kline{makeKline("BTCUSDT", 0, "1")}}))

	count, err := repo.CountRange(ctx, testTable, "BTCUSDT", domain.Interval1m, base, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRepository_InvalidTable(t *testing.T) {
	repo := setupTestDB(t)

	err := repo.AppendKlines(context.Background(), "klines; DROP TABLE x", []*domain.Kline{makeKline("BTCUSDT", 0, "1")})
	assert.Error(t, err)

	_, err = repo.Sink("1bad")
	assert.Error(t, err)
}

func TestNewRepository_RequiresLogger(t *testing.T) {
	_, err := NewRepository(Config{DBPath: filepath.Join(t.TempDir(), "x.db")})
	assert.Error(t, err)
}
