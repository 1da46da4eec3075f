// Package collector fetches kline (candlestick) series from exchanges.
package collector

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/btcsim/internal/domain"
)

// KlineProvider fetches historical klines for a pair.
type KlineProvider interface {
	// GetKlines returns at most limit candles of the given interval (e.g. "1m", "1h"), oldest first.
	GetKlines(ctx context.Context, pair domain.Pair, interval string, limit int) ([]domain.MarketCandle, error)
}

func parseIntervalToDuration(interval string) (time.Duration, error) {
	if len(interval) < 2 {
		return 0, errors.Errorf("invalid interval: %q", interval)
	}

	unit := interval[len(interval)-1]
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, errors.Errorf("invalid interval number: %s", interval)
	}

	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, errors.Errorf("unsupported interval unit: %c", unit)
	}
}

func parseTimestamp(ms string) (time.Time, error) {
	if ms == "" {
		return time.Time{}, errors.New("empty timestamp")
	}

	v, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse timestamp %q", ms)
	}

	return time.UnixMilli(v).UTC(), nil
}
