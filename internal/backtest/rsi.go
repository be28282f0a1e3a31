package backtest

import "fmt"

// RSI computes the Relative Strength Index with Wilder's smoothing.
type RSI struct {
	Period int
}

// RequiredDataPoints returns the minimum number of closes Calculate needs.
func (r RSI) RequiredDataPoints() int {
	return r.Period + 1
}

// Calculate returns the RSI of the last value in closes.
func (r RSI) Calculate(closes []float64) (float64, error) {
	if r.Period <= 0 {
		return 0, fmt.Errorf("RSI period must be positive, got %d", r.Period)
	}
	if len(closes) <= r.Period {
		return 0, fmt.Errorf("not enough data (%d) to calculate RSI for period %d", len(closes), r.Period)
	}

	period := float64(r.Period)
	var avgGain, avgLoss float64
	for i := 1; i <= r.Period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= period
	avgLoss /= period

	for i := r.Period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*(period-1) + gain) / period
		avgLoss = (avgLoss*(period-1) + loss) / period
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50, nil
		}
		return 100, nil
	}
	rsi := 100 - 100/(1+avgGain/avgLoss)
	return min(max(rsi, 0), 100), nil
}
