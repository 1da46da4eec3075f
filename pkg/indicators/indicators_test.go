package indicators

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/btcsim/internal/domain"
)

func series(closes ...float64) []domain.MarketCandle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.MarketCandle, len(closes))
	prev := closes[0]
	for i, c := range closes {
		open := decimal.NewFromFloat(prev)
		cl := decimal.NewFromFloat(c)
		out[i] = domain.MarketCandle{
			OpenTime:  start.Add(time.Duration(i) * time.Minute),
			Open:      open,
			High:      decimal.Max(open, cl).Add(decimal.NewFromInt(1)),
			Low:       decimal.Min(open, cl).Sub(decimal.NewFromInt(1)),
			Close:     cl,
			Volume:    decimal.NewFromInt(1),
			CloseTime: start.Add(time.Duration(i+1)*time.Minute - time.Millisecond),
		}
		prev = c
	}

	return out
}

func rising(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 50000 + float64(i)*10
	}

	return out
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.Candles)
	assert.False(t, s.EMA.Valid)
	assert.False(t, s.RSI.Valid)
}

func TestSummarize_RisingSeries(t *testing.T) {
	s := Summarize(series(rising(60)...))

	assert.Equal(t, 60, s.Candles)
	assert.True(t, s.Open.Equal(decimal.NewFromInt(50000)))
	assert.True(t, s.Close.Equal(decimal.NewFromInt(50590)))
	assert.True(t, s.Change.Equal(decimal.NewFromInt(590)))
	assert.True(t, s.ChangePercent.Equal(decimal.RequireFromString("1.18")), s.ChangePercent.String())
	assert.True(t, s.High.Equal(decimal.NewFromInt(50591)))
	assert.True(t, s.Low.Equal(decimal.NewFromInt(49999)))

	require.True(t, s.EMA.Valid)
	assert.True(t, s.EMA.Decimal.LessThan(s.Close), "ema %s lags close", s.EMA.Decimal)
	assert.True(t, s.EMA.Decimal.GreaterThan(s.Open))

	require.True(t, s.RSI.Valid)
	assert.True(t, s.RSI.Decimal.GreaterThan(decimal.NewFromInt(99)), "rsi %s", s.RSI.Decimal)
}

func TestSummarize_ShortSeriesHasNoIndicators(t *testing.T) {
	s := Summarize(series(rising(10)...))
	assert.Equal(t, 10, s.Candles)
	assert.False(t, s.EMA.Valid)
	assert.False(t, s.RSI.Valid)
}

func TestCalculateEMA_ConstantSeries(t *testing.T) {
	closes := make([]decimal.Decimal, 30)
	for i := range closes {
		closes[i] = decimal.NewFromInt(100)
	}

	ema, err := CalculateEMA(closes, 20)
	require.NoError(t, err)
	require.NotEmpty(t, ema)
	assert.InDelta(t, 100.0, ema[len(ema)-1], 1e-9)

	_, err = CalculateEMA(closes[:5], 20)
	assert.Error(t, err)
}
