package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kline represents a single candlestick data point.
type Kline struct {
	OpenTime            time.Time       // Start time of the interval, unique per symbol and interval
	CloseTime           time.Time       // End time of the interval
	Symbol              string          // Trading symbol
	Interval            Interval        // Kline interval (e.g., "1m", "1h")
	Open                decimal.Decimal // Opening price
	High                decimal.Decimal // Highest price
	Low                 decimal.Decimal // Lowest price
	Close               decimal.Decimal // Closing price
	Volume              decimal.Decimal // Base asset volume
	QuoteAssetVolume    decimal.Decimal
	TradeCount          int64
	TakerBuyBaseVolume  decimal.Decimal
	TakerBuyQuoteVolume decimal.Decimal
}

// FetchOutcome describes how a range fetch finished.
type FetchOutcome string

const (
	OutcomeDone      FetchOutcome = "done"      // Range fully paginated
	OutcomeExhausted FetchOutcome = "exhausted" // Backoff budget spent, batch may be partial
)

// Gap is a run of missing bars inside a batch: bars opening in [From, To).
type Gap struct {
	From time.Time
	To   time.Time
}

// KlineBatch is the assembled result of fetching one FetchTask.
// Klines are ascending by OpenTime with no duplicates.
type KlineBatch struct {
	Task     FetchTask
	Klines   []*Kline
	Outcome  FetchOutcome
	Gaps     []Gap
	Attempts int // Rate-limit backoffs spent on this task
}

// Len returns the number of rows in the batch.
func (b *KlineBatch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Klines)
}

// IsEmpty reports whether the batch carries no rows.
func (b *KlineBatch) IsEmpty() bool {
	return b.Len() == 0
}

// IsPartial reports whether the fetch stopped before covering the range.
func (b *KlineBatch) IsPartial() bool {
	return b != nil && b.Outcome == OutcomeExhausted
}
