package collector

import (
	"context"
	"slices"
	"strconv"
	"time"

	bybit "github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/btcsim/internal/domain"
)

// BybitKlineProvider reads spot klines from Bybit V5.
type BybitKlineProvider struct {
	client *bybit.Client
}

func NewBybitKlineProvider(client *bybit.Client) *BybitKlineProvider {
	return &BybitKlineProvider{client: client}
}

func (p *BybitKlineProvider) GetKlines(_ context.Context, pair domain.Pair, interval string, limit int) ([]domain.MarketCandle, error) {
	bybitInterval, err := convertIntervalToBybit(interval)
	if err != nil {
		return nil, err
	}
	dur, err := parseIntervalToDuration(interval)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.V5().Market().GetKline(bybit.V5GetKlineParam{
		Category: "spot",
		Symbol:   bybit.SymbolV5(pair.Symbol()),
		Interval: bybit.Interval(bybitInterval),
		Limit:    &limit,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch klines from Bybit for %s", pair.String())
	}

	result := make([]domain.MarketCandle, 0, len(resp.Result.List))
	for i, k := range resp.Result.List {
		candle, err := parseCandle(k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			return nil, errors.Wrapf(err, "bybit kline %d", i)
		}
		start, err := parseTimestamp(k.StartTime)
		if err != nil {
			return nil, errors.Wrapf(err, "bybit kline %d", i)
		}
		candle.OpenTime = start
		candle.CloseTime = start.Add(dur - time.Millisecond)
		result = append(result, candle)
	}

	// bybit returns newest first
	slices.Reverse(result)

	return result, nil
}

// convertIntervalToBybit maps "1m", "4h", "1d" style intervals to Bybit interval codes.
func convertIntervalToBybit(interval string) (string, error) {
	dur, err := parseIntervalToDuration(interval)
	if err != nil {
		return "", err
	}

	switch {
	case dur == 24*time.Hour:
		return "D", nil
	case dur == 7*24*time.Hour:
		return "W", nil
	case dur < 24*time.Hour && dur%time.Minute == 0:
		switch m := int(dur / time.Minute); m {
		case 1, 3, 5, 15, 30, 60, 120, 240, 360, 720:
			return strconv.Itoa(m), nil
		}
	}

	return "", errors.Errorf("interval %s is not supported by Bybit", interval)
}
