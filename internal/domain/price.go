package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSample last known spot price as seen by the oracle.
type PriceSample struct {
	// Price current price, invalid until the first sample or cached fallback.
	Price decimal.NullDecimal
	// Previous price replaced by the latest successful fetch.
	Previous decimal.NullDecimal
	// UpdatedAt time of the latest successful fetch.
	UpdatedAt time.Time
	// Err last fetch error, nil after a successful fetch.
	Err error
	// Loading true until the first fetch attempt completes.
	Loading bool
}

// KnownPrice wraps a decimal into a valid NullDecimal.
func KnownPrice(price decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: price, Valid: true}
}

// UnknownPrice is the NullDecimal used when no price sample exists.
var UnknownPrice = decimal.NullDecimal{}

// Change returns the move from Previous to Price, absolute and in percent.
// ok is false until two prices are known.
func (s PriceSample) Change() (abs decimal.Decimal, pct decimal.Decimal, ok bool) {
	if !s.Price.Valid || !s.Previous.Valid || !s.Previous.Decimal.IsPositive() {
		return decimal.Zero, decimal.Zero, false
	}

	abs = s.Price.Decimal.Sub(s.Previous.Decimal)
	pct = abs.Div(s.Previous.Decimal).Mul(decimal.NewFromInt(100))

	return abs, pct, true
}
