package ports

import (
	"context"
	"time"

	"cryptoKline/internal/domain"
)

// KlineClient fetches one page of historical klines.
// Implementations classify every failure as either *RateLimitError or *FatalError.
type KlineClient interface {
	// FetchPage returns up to limit klines opening in [startTime, endTime], ascending.
	FetchPage(ctx context.Context, symbol string, interval domain.Interval, startTime, endTime time.Time, limit int) ([]*domain.Kline, error)
}

// SymbolLister discovers tradable symbols.
type SymbolLister interface {
	// ListSymbols returns spot symbols quoted in quoteAsset that allow spot and margin trading.
	ListSymbols(ctx context.Context, quoteAsset string) ([]string, error)
}

// ExchangeClient is the full exchange surface used by the commands.
type ExchangeClient interface {
	KlineClient
	SymbolLister

	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error

	// GetServerTime retrieves the current server time from the exchange.
	GetServerTime(ctx context.Context) (time.Time, error)
}
