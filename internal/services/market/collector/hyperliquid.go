package collector

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	hyperliquid "github.com/sonirico/go-hyperliquid"
	"github.com/vadiminshakov/btcsim/internal/domain"
)

// HyperliquidKlineProvider reads candle snapshots from the Hyperliquid info API.
type HyperliquidKlineProvider struct {
	info *hyperliquid.Info
	now  func() time.Time
}

func NewHyperliquidKlineProvider(info *hyperliquid.Info) *HyperliquidKlineProvider {
	return &HyperliquidKlineProvider{info: info, now: time.Now}
}

func (p *HyperliquidKlineProvider) GetKlines(ctx context.Context, pair domain.Pair, interval string, limit int) ([]domain.MarketCandle, error) {
	if p.info == nil {
		return nil, errors.New("hyperliquid info is nil")
	}
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}
	dur, err := parseIntervalToDuration(interval)
	if err != nil {
		return nil, err
	}

	endMs := p.now().UnixMilli()
	// two extra candles of slack for window rounding
	startMs := endMs - (int64(limit)+2)*dur.Milliseconds()

	// candles are keyed by base coin, e.g. "BTC"
	coin := strings.ToUpper(pair.From)

	candles, err := p.info.CandlesSnapshot(ctx, coin, interval, startMs, endMs)
	if err != nil {
		return nil, errors.Wrapf(err, "hyperliquid candles for %s", coin)
	}
	if len(candles) == 0 {
		return nil, errors.Errorf("no candles from hyperliquid for %s %s", coin, interval)
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}

	out := make([]domain.MarketCandle, 0, len(candles))
	for i, c := range candles {
		candle, err := parseCandle(c.Open, c.High, c.Low, c.Close, c.Volume)
		if err != nil {
			return nil, errors.Wrapf(err, "hyperliquid candle %d", i)
		}
		candle.OpenTime = time.UnixMilli(c.TimeOpen).UTC()
		candle.CloseTime = time.UnixMilli(c.TimeClose).UTC()
		out = append(out, candle)
	}

	return out, nil
}
