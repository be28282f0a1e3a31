package ports

import (
	"context"
	"time"

	"cryptoKline/internal/domain"
)

// KlineRepository stores klines keyed by (symbol, interval, open time).
// Appending an existing key overwrites it.
type KlineRepository interface {
	// AppendKlines upserts klines into table.
	AppendKlines(ctx context.Context, table string, klines []*domain.Kline) error
	// LatestOpenTime returns the newest stored open time, or the zero time if none.
	LatestOpenTime(ctx context.Context, table, symbol string, interval domain.Interval) (time.Time, error)
	// CountRange counts rows opening in [start, end).
	CountRange(ctx context.Context, table, symbol string, interval domain.Interval, start, end time.Time) (int, error)
	// FindRange returns rows opening in [start, end), ascending.
	FindRange(ctx context.Context, table, symbol string, interval domain.Interval, start, end time.Time) ([]*domain.Kline, error)
	// Close releases the underlying connection.
	Close() error
}
