package domain

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// TradeKind direction of a completed trade.
type TradeKind string

const (
	// TradeKindBuy cash converted into the asset.
	TradeKindBuy TradeKind = "buy"
	// TradeKindSell asset converted into cash.
	TradeKindSell TradeKind = "sell"
)

// String returns the string representation.
func (k TradeKind) String() string {
	return string(k)
}

// IsValid checks if the TradeKind value is valid.
func (k TradeKind) IsValid() bool {
	return k == TradeKindBuy || k == TradeKindSell
}

// Trade immutable record of one completed buy or sell.
type Trade struct {
	// ID unique, time-sortable identifier.
	ID string `json:"id"`
	// Kind buy or sell.
	Kind TradeKind `json:"type"`
	// CashAmount USD exchanged.
	CashAmount decimal.Decimal `json:"usdAmount"`
	// AssetAmount BTC exchanged.
	AssetAmount decimal.Decimal `json:"btcAmount"`
	// Price USD per BTC used for the conversion.
	Price decimal.Decimal `json:"price"`
	// Timestamp creation instant.
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks the trade fields against the ledger rules.
func (t Trade) Validate() error {
	if t.ID == "" {
		return errors.New("trade id is empty")
	}
	if !t.Kind.IsValid() {
		return errors.Errorf("trade %s has unknown kind %q", t.ID, t.Kind)
	}
	if !t.CashAmount.IsPositive() || !t.AssetAmount.IsPositive() || !t.Price.IsPositive() {
		return errors.Errorf("trade %s has non-positive amounts", t.ID)
	}

	return nil
}

// String returns a human-readable string representation.
func (t Trade) String() string {
	return fmt.Sprintf("%s %s BTC @ %s (%s USD)", t.Kind, t.AssetAmount.String(), t.Price.String(), t.CashAmount.String())
}
