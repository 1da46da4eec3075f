package collector

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/btcsim/internal/domain"
)

// BinanceKlineProvider reads klines from the Binance public API.
type BinanceKlineProvider struct {
	client *binance.Client
}

func NewBinanceKlineProvider(client *binance.Client) *BinanceKlineProvider {
	return &BinanceKlineProvider{client: client}
}

func (p *BinanceKlineProvider) GetKlines(ctx context.Context, pair domain.Pair, interval string, limit int) ([]domain.MarketCandle, error) {
	klines, err := p.client.NewKlinesService().
		Symbol(pair.Symbol()).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch klines from Binance for %s", pair.String())
	}

	result := make([]domain.MarketCandle, 0, len(klines))
	for i, k := range klines {
		candle, err := parseCandle(k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			return nil, errors.Wrapf(err, "binance kline %d", i)
		}
		candle.OpenTime = time.UnixMilli(k.OpenTime).UTC()
		candle.CloseTime = time.UnixMilli(k.CloseTime).UTC()
		result = append(result, candle)
	}

	return result, nil
}

func parseCandle(open, high, low, close, volume string) (domain.MarketCandle, error) {
	var (
		c   domain.MarketCandle
		err error
	)
	if c.Open, err = decimal.NewFromString(open); err != nil {
		return c, errors.Wrap(err, "parse open price")
	}
	if c.High, err = decimal.NewFromString(high); err != nil {
		return c, errors.Wrap(err, "parse high price")
	}
	if c.Low, err = decimal.NewFromString(low); err != nil {
		return c, errors.Wrap(err, "parse low price")
	}
	if c.Close, err = decimal.NewFromString(close); err != nil {
		return c, errors.Wrap(err, "parse close price")
	}
	if c.Volume, err = decimal.NewFromString(volume); err != nil {
		return c, errors.Wrap(err, "parse volume")
	}

	return c, nil
}
