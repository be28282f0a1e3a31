package domain

// CloseReason indicates why a backtest position was closed.
type CloseReason string

const (
	CloseReasonStopLoss  CloseReason = "SL"
	CloseReasonSignal    CloseReason = "SIGNAL"      // Exit signal from the strategy
	CloseReasonEndOfData CloseReason = "END_OF_DATA" // Still open when the klines ran out
)
