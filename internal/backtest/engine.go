package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"cryptoKline/internal/domain"
)

// Params configures a backtest run.
type Params struct {
	Period            int     // RSI lookback
	Upper             float64 // Sell when RSI reaches this level
	Lower             float64 // Buy when RSI falls to this level
	StopLoss          float64 // Fraction below entry that forces an exit, 0 disables
	CommissionPercent float64 // Charged on traded value, per side
	Cash              float64 // Starting portfolio value
	Stake             float64 // Units bought per entry
	CloseAtEnd        bool    // Close an open position on the last bar
}

// Validate checks the parameters for obvious mistakes.
func (p Params) Validate() error {
	switch {
	case p.Period <= 0:
		return fmt.Errorf("period must be positive")
	case p.Lower >= p.Upper:
		return fmt.Errorf("lower limit %.2f must be below upper limit %.2f", p.Lower, p.Upper)
	case p.StopLoss < 0 || p.StopLoss >= 1:
		return fmt.Errorf("stop loss must be in [0, 1)")
	case p.CommissionPercent < 0:
		return fmt.Errorf("commission cannot be negative")
	case p.Cash <= 0:
		return fmt.Errorf("cash must be positive")
	case p.Stake <= 0:
		return fmt.Errorf("stake must be positive")
	}
	return nil
}

// Result summarises a run.
type Result struct {
	StartValue  float64
	EndValue    float64 // Cash plus any open position marked at the last close
	Won         int
	Lost        int
	PnLNet      float64 // Sum of closed trade PnL after commission
	MaxDrawdown float64 // Largest fall of realized equity from its peak, as a fraction
	SQN         float64
	Trades      []*domain.Trade
}

// NetProfit is EndValue minus StartValue.
func (r *Result) NetProfit() float64 { return r.EndValue - r.StartValue }

// NetProfitPercent is NetProfit relative to StartValue.
func (r *Result) NetProfitPercent() float64 {
	if r.StartValue == 0 {
		return 0
	}
	return r.NetProfit() / r.StartValue * 100
}

// Engine runs a strategy over historical klines.
type Engine interface {
	Run(ctx context.Context, klines []*domain.Kline, params Params) (*Result, error)
}

// RSIEngine trades long only: buy when RSI is at or below Lower, sell when
// it is at or above Upper or the stop loss is hit. Orders fill at the close
// of the signalling bar.
type RSIEngine struct{}

type position struct {
	entry     float64
	quantity  float64
	entryFee  float64
	entryTime time.Time
}

// Run implements Engine.
func (RSIEngine) Run(ctx context.Context, klines []*domain.Kline, params Params) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backtest parameters: %w", err)
	}
	rsi := RSI{Period: params.Period}
	if len(klines) < rsi.RequiredDataPoints() {
		return nil, fmt.Errorf("not enough klines (%d) for RSI period %d", len(klines), params.Period)
	}

	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close.InexactFloat64()
	}

	res := &Result{StartValue: params.Cash}
	cash := params.Cash
	fee := params.CommissionPercent / 100
	var open *position
	peak := params.Cash

	closePosition := func(k *domain.Kline, price float64, reason domain.CloseReason) {
		exitFee := price * open.quantity * fee
		cash += price*open.quantity - exitFee
		pnl := (price-open.entry)*open.quantity - open.entryFee - exitFee
		trade := &domain.Trade{
			Symbol:      k.Symbol,
			EntryPrice:  open.entry,
			ExitPrice:   price,
			Quantity:    open.quantity,
			Commission:  open.entryFee + exitFee,
			PNL:         pnl,
			EntryTime:   open.entryTime,
			ExitTime:    k.OpenTime,
			CloseReason: reason,
		}
		res.Trades = append(res.Trades, trade)
		res.PnLNet += pnl
		balance := params.Cash + res.PnLNet
		if balance > peak {
			peak = balance
		}
		if dd := (peak - balance) / peak; dd > res.MaxDrawdown {
			res.MaxDrawdown = dd
		}
		if trade.IsWin() {
			res.Won++
		} else {
			res.Lost++
		}
		open = nil
	}

	for i := params.Period; i < len(klines); i++ {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		k := klines[i]
		price := closes[i]
		value, err := rsi.Calculate(closes[:i+1])
		if err != nil {
			return nil, err
		}

		if open != nil {
			switch {
			case params.StopLoss > 0 && price <= open.entry*(1-params.StopLoss):
				closePosition(k, price, domain.CloseReasonStopLoss)
			case value >= params.Upper:
				closePosition(k, price, domain.CloseReasonSignal)
			}
			continue
		}

		if value <= params.Lower {
			cost := price * params.Stake
			entryFee := cost * fee
			if cost+entryFee > cash {
				continue
			}
			cash -= cost + entryFee
			open = &position{entry: price, quantity: params.Stake, entryFee: entryFee, entryTime: k.OpenTime}
		}
	}

	last := klines[len(klines)-1]
	if open != nil && params.CloseAtEnd {
		closePosition(last, closes[len(closes)-1], domain.CloseReasonEndOfData)
	}
	res.EndValue = cash
	if open != nil {
		res.EndValue += closes[len(closes)-1] * open.quantity
	}
	res.SQN = SQN(res.Trades)
	return res, nil
}

// SQN is the System Quality Number: sqrt(n) * mean(pnl) / stdev(pnl).
// It is 0 with fewer than two trades or no dispersion.
func SQN(trades []*domain.Trade) float64 {
	n := float64(len(trades))
	if n < 2 {
		return 0
	}
	var sum float64
	for _, t := range trades {
		sum += t.PNL
	}
	mean := sum / n

	var variance float64
	for _, t := range trades {
		variance += (t.PNL - mean) * (t.PNL - mean)
	}
	stdev := math.Sqrt(variance / n)
	if stdev == 0 {
		return 0
	}
	return math.Sqrt(n) * mean / stdev
}
