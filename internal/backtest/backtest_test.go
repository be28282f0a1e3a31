package backtest

import (
	"context"
	"math"
	"testing"
	"time"

	"cryptoKline/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func klinesFromCloses(closes ...float64) []*domain.Kline {
	out := make([]*domain.Kline, len(closes))
	for i, c := range closes {
		open := t0.Add(time.Duration(i) * 24 * time.Hour)
		price := decimal.NewFromFloat(c)
		out[i] = &domain.Kline{
			Symbol:    "BTCUSDT",
			Interval:  domain.Interval1d,
			OpenTime:  open,
			CloseTime: open.Add(24*time.Hour - time.Millisecond),
			Open:      price,
			High:      price.Add(decimal.NewFromInt(1)),
			Low:       price.Sub(decimal.NewFromInt(1)),
			Close:     price,
			Volume:    decimal.NewFromInt(10),
		}
	}
	return out
}

func TestRSI_Calculate(t *testing.T) {
	tests := []struct {
		name        string
		period      int
		closes      []float64
		expected    float64
		expectError bool
	}{
		{"wilder smoothing", 3, []float64{100, 102, 101, 103, 102, 104}, 77.272727, false},
		{"insufficient data", 7, []float64{100, 102, 101, 103, 102, 104}, 0, true},
		{"all gains", 3, []float64{100, 102, 104, 106}, 100, false},
		{"all losses", 3, []float64{106, 104, 102, 100}, 0, false},
		{"flat", 3, []float64{100, 100, 100, 100}, 50, false},
		{"zero period", 0, []float64{100, 101}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RSI{Period: tt.period}.Calculate(tt.closes)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-4)
		})
	}
}

var series = []float64{100, 99, 98, 97, 98, 99, 100, 101, 99, 97, 95, 94}

func baseParams() Params {
	return Params{Period: 3, Upper: 70, Lower: 30, Cash: 1000, Stake: 1}
}

func TestRSIEngine_SignalRoundTrip(t *testing.T) {
	res, err := RSIEngine{}.Run(context.Background(), klinesFromCloses(series...), baseParams())
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	trade := res.Trades[0]
	assert.Equal(t, 97.0, trade.EntryPrice)
	assert.Equal(t, 100.0, trade.ExitPrice)
	assert.Equal(t, 3.0, trade.PNL)
	assert.Equal(t, domain.CloseReasonSignal, trade.CloseReason)
	assert.Equal(t, t0.Add(3*24*time.Hour), trade.EntryTime)

	assert.Equal(t, 1, res.Won)
	assert.Equal(t, 0, res.Lost)
	assert.Equal(t, 3.0, res.PnLNet)
	// Re-entered at 97, marked at 94
	assert.InDelta(t, 1000.0, res.EndValue, 1e-9)
	assert.Equal(t, 0.0, res.SQN)
}

func TestRSIEngine_StopLoss(t *testing.T) {
	params := baseParams()
	params.StopLoss = 0.02

	res, err := RSIEngine{}.Run(context.Background(), klinesFromCloses(series...), params)
	require.NoError(t, err)

	require.Len(t, res.Trades, 2)
	assert.Equal(t, domain.CloseReasonStopLoss, res.Trades[1].CloseReason)
	assert.Equal(t, 95.0, res.Trades[1].ExitPrice)
	assert.Equal(t, 1, res.Won)
	assert.Equal(t, 1, res.Lost)
	assert.InDelta(t, 1.0, res.PnLNet, 1e-9)
	assert.InDelta(t, 1001.0, res.EndValue, 1e-9)
	assert.InDelta(t, math.Sqrt(2)*0.5/2.5, res.SQN, 1e-9)
	assert.InDelta(t, 0.1, res.NetProfitPercent(), 1e-9)
	assert.InDelta(t, 2.0/1003.0, res.MaxDrawdown, 1e-12)
}

func TestRSIEngine_CloseAtEnd(t *testing.T) {
	params := baseParams()
	params.StopLoss = 0.02
	params.CloseAtEnd = true

	res, err := RSIEngine{}.Run(context.Background(), klinesFromCloses(series...), params)
	require.NoError(t, err)

	require.Len(t, res.Trades, 3)
	last := res.Trades[2]
	assert.Equal(t, domain.CloseReasonEndOfData, last.CloseReason)
	assert.Equal(t, 0.0, last.PNL)
	assert.Equal(t, 2, res.Lost)
}

func TestRSIEngine_Commission(t *testing.T) {
	params := baseParams()
	params.CommissionPercent = 10

	res, err := RSIEngine{}.Run(context.Background(), klinesFromCloses(series...), params)
	require.NoError(t, err)

	require.NotEmpty(t, res.Trades)
	assert.InDelta(t, 9.7+10, res.Trades[0].Commission, 1e-9)
	assert.InDelta(t, -16.7, res.Trades[0].PNL, 1e-9)
	assert.Equal(t, 0, res.Won)
	assert.Equal(t, 1, res.Lost)
}

func TestRSIEngine_Errors(t *testing.T) {
	_, err := RSIEngine{}.Run(context.Background(), klinesFromCloses(100, 101), baseParams())
	assert.Error(t, err)

	bad := baseParams()
	bad.Lower = 80
	_, err = RSIEngine{}.Run(context.Background(), klinesFromCloses(series...), bad)
	assert.Error(t, err)
}

func TestSQN(t *testing.T) {
	assert.Equal(t, 0.0, SQN(nil))
	assert.Equal(t, 0.0, SQN([]*domain.Trade{{PNL: 5}}))
	assert.Equal(t, 0.0, SQN([]*domain.Trade{{PNL: 2}, {PNL: 2}}))
	// mean 2, population stdev 1
	assert.InDelta(t, math.Sqrt(2)*2, SQN([]*domain.Trade{{PNL: 1}, {PNL: 3}}), 1e-9)
}

func TestResample(t *testing.T) {
	minutes := make([]*domain.Kline, 5)
	for i := range minutes {
		open := t0.Add(time.Duration(i) * time.Minute)
		minutes[i] = &domain.Kline{
			Symbol:     "BTCUSDT",
			Interval:   domain.Interval1m,
			OpenTime:   open,
			CloseTime:  open.Add(time.Minute - time.Millisecond),
			Open:       decimal.NewFromInt(int64(100 + i)),
			High:       decimal.NewFromInt(int64(110 + i)),
			Low:        decimal.NewFromInt(int64(90 - i)),
			Close:      decimal.NewFromInt(int64(101 + i)),
			Volume:     decimal.NewFromInt(2),
			TradeCount: 3,
		}
	}

	bars, err := Resample(minutes, 2)
	require.NoError(t, err)
	require.Len(t, bars, 3)

	first := bars[0]
	assert.Equal(t, t0, first.OpenTime)
	assert.Equal(t, minutes[1].CloseTime, first.CloseTime)
	assert.True(t, first.Open.Equal(decimal.NewFromInt(100)))
	assert.True(t, first.High.Equal(decimal.NewFromInt(111)))
	assert.True(t, first.Low.Equal(decimal.NewFromInt(89)))
	assert.True(t, first.Close.Equal(decimal.NewFromInt(102)))
	assert.True(t, first.Volume.Equal(decimal.NewFromInt(4)))
	assert.Equal(t, int64(6), first.TradeCount)

	assert.True(t, bars[2].Close.Equal(decimal.NewFromInt(105)), "trailing short group is kept")

	same, err := Resample(minutes, 1)
	require.NoError(t, err)
	assert.Len(t, same, 5)

	_, err = Resample(minutes, 0)
	assert.Error(t, err)
}
