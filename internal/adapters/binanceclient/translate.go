package binanceclient

import (
	"errors"
	"fmt"
	"time"

	"cryptoKline/internal/domain"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

func translateBinanceKline(bk *binance.Kline, symbol string, interval domain.Interval) (*domain.Kline, error) {
	if bk == nil {
		return nil, errors.New("received nil historical kline")
	}

	k := &domain.Kline{
		OpenTime:   time.UnixMilli(bk.OpenTime).UTC(),
		CloseTime:  time.UnixMilli(bk.CloseTime).UTC(),
		Symbol:     symbol,   // Not part of the kline payload
		Interval:   interval, // Use passed interval
		TradeCount: bk.TradeNum,
	}

	var err error
	if k.Open, err = decimal.NewFromString(bk.Open); err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	if k.High, err = decimal.NewFromString(bk.High); err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	if k.Low, err = decimal.NewFromString(bk.Low); err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	if k.Close, err = decimal.NewFromString(bk.Close); err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	if k.Volume, err = decimal.NewFromString(bk.Volume); err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}
	if k.QuoteAssetVolume, err = decimal.NewFromString(bk.QuoteAssetVolume); err != nil {
		return nil, fmt.Errorf("parsing quote asset volume '%s': %w", bk.QuoteAssetVolume, err)
	}
	if k.TakerBuyBaseVolume, err = decimal.NewFromString(bk.TakerBuyBaseAssetVolume); err != nil {
		return nil, fmt.Errorf("parsing taker buy base volume '%s': %w", bk.TakerBuyBaseAssetVolume, err)
	}
	if k.TakerBuyQuoteVolume, err = decimal.NewFromString(bk.TakerBuyQuoteAssetVolume); err != nil {
		return nil, fmt.Errorf("parsing taker buy quote volume '%s': %w", bk.TakerBuyQuoteAssetVolume, err)
	}
	return k, nil
}
