package domain

import "time"

// Trade represents a completed round trip produced by a backtest.
type Trade struct {
	Symbol      string      // Trading symbol (e.g., "ETHUSDT")
	EntryPrice  float64     // Price at which the position was entered
	ExitPrice   float64     // Price at which the position was exited
	Quantity    float64     // Size of the position traded
	Commission  float64     // Commission paid on both sides
	PNL         float64     // Net profit and loss for this trade
	EntryTime   time.Time   // Timestamp when the position was entered
	ExitTime    time.Time   // Timestamp when the position was exited
	CloseReason CloseReason // Reason why the position was closed
}

// IsWin reports whether the trade closed with a positive net result.
func (t *Trade) IsWin() bool {
	return t.PNL > 0
}
