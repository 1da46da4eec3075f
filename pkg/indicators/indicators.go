// Package indicators summarizes candle series with EMA and RSI.
package indicators

import (
	"fmt"
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/btcsim/internal/domain"
)

const (
	// EMAPeriod period of the trend EMA in a Summary.
	EMAPeriod = 20
	// RSIPeriod period of the RSI in a Summary.
	RSIPeriod = 14
)

// Summary condensed view of a candle series.
type Summary struct {
	Candles       int
	Open          decimal.Decimal
	Close         decimal.Decimal
	High          decimal.Decimal
	Low           decimal.Decimal
	Change        decimal.Decimal
	ChangePercent decimal.Decimal
	// EMA and RSI are invalid when the series is too short.
	EMA decimal.NullDecimal
	RSI decimal.NullDecimal
}

// Summarize computes the summary of candles ordered oldest first.
func Summarize(candles []domain.MarketCandle) Summary {
	if len(candles) == 0 {
		return Summary{}
	}

	s := Summary{
		Candles: len(candles),
		Open:    candles[0].Open,
		Close:   candles[len(candles)-1].Close,
		High:    candles[0].High,
		Low:     candles[0].Low,
	}
	closes := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		s.High = decimal.Max(s.High, c.High)
		s.Low = decimal.Min(s.Low, c.Low)
	}

	s.Change = s.Close.Sub(s.Open)
	if s.Open.IsPositive() {
		s.ChangePercent = s.Change.Div(s.Open).Mul(decimal.NewFromInt(100)).Round(2)
	}

	if ema, err := CalculateEMA(closes, EMAPeriod); err == nil {
		s.EMA = last(ema)
	}
	if rsi, err := CalculateRSI(closes, RSIPeriod); err == nil {
		s.RSI = last(rsi)
	}

	return s
}

// CalculateEMA calculates the Exponential Moving Average for the given period.
func CalculateEMA(closes []decimal.Decimal, period int) ([]float64, error) {
	if period <= 0 || len(closes) < period {
		return nil, fmt.Errorf("not enough data points: need %d, got %d", period, len(closes))
	}

	ema := trend.NewEmaWithPeriod[float64](period)

	return helper.ChanToSlice(ema.Compute(helper.SliceToChan(decimalsToFloat64(closes)))), nil
}

// CalculateRSI calculates the Relative Strength Index for the given period.
func CalculateRSI(closes []decimal.Decimal, period int) ([]float64, error) {
	if period <= 0 || len(closes) < period+1 {
		return nil, fmt.Errorf("not enough data points for RSI: need %d, got %d", period+1, len(closes))
	}

	rsi := momentum.NewRsiWithPeriod[float64](period)

	return helper.ChanToSlice(rsi.Compute(helper.SliceToChan(decimalsToFloat64(closes)))), nil
}

// last returns the final finite value, rounded for display.
func last(values []float64) decimal.NullDecimal {
	if len(values) == 0 {
		return decimal.NullDecimal{}
	}
	v := values[len(values)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.NullDecimal{}
	}

	return decimal.NewNullDecimal(decimal.NewFromFloat(v).Round(2))
}

func decimalsToFloat64(decimals []decimal.Decimal) []float64 {
	result := make([]float64, len(decimals))
	for i, d := range decimals {
		result[i], _ = d.Float64()
	}

	return result
}
