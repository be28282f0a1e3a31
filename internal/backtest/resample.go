package backtest

import (
	"fmt"

	"cryptoKline/internal/domain"

	"github.com/shopspring/decimal"
)

// Resample merges every n consecutive klines into one bar. A trailing group
// shorter than n is kept. Input must be ascending by open time.
func Resample(klines []*domain.Kline, n int) ([]*domain.Kline, error) {
	if n <= 0 {
		return nil, fmt.Errorf("resample factor must be positive, got %d", n)
	}
	if n == 1 {
		return klines, nil
	}

	out := make([]*domain.Kline, 0, (len(klines)+n-1)/n)
	for i := 0; i < len(klines); i += n {
		group := klines[i:min(i+n, len(klines))]
		first, last := group[0], group[len(group)-1]
		bar := &domain.Kline{
			Symbol:    first.Symbol,
			Interval:  first.Interval,
			OpenTime:  first.OpenTime,
			CloseTime: last.CloseTime,
			Open:      first.Open,
			High:      first.High,
			Low:       first.Low,
			Close:     last.Close,
		}
		for _, k := range group {
			bar.High = decimal.Max(bar.High, k.High)
			bar.Low = decimal.Min(bar.Low, k.Low)
			bar.Volume = bar.Volume.Add(k.Volume)
			bar.QuoteAssetVolume = bar.QuoteAssetVolume.Add(k.QuoteAssetVolume)
			bar.TakerBuyBaseVolume = bar.TakerBuyBaseVolume.Add(k.TakerBuyBaseVolume)
			bar.TakerBuyQuoteVolume = bar.TakerBuyQuoteVolume.Add(k.TakerBuyQuoteVolume)
			bar.TradeCount += k.TradeCount
		}
		out = append(out, bar)
	}
	return out, nil
}
