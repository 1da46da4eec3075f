package domain

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// MaxTrades number of trades retained in the ledger history.
const MaxTrades = 50

// InitialBalance starting cash balance in USD.
var InitialBalance = decimal.NewFromInt(10000)

// LedgerState balances and recent trade history of the simulated portfolio.
// Trades are ordered newest first.
type LedgerState struct {
	Cash   decimal.Decimal
	Asset  decimal.Decimal
	Trades []Trade
}

// NewLedgerState returns the initial snapshot.
func NewLedgerState() LedgerState {
	return LedgerState{
		Cash:   InitialBalance,
		Asset:  decimal.Zero,
		Trades: []Trade{},
	}
}

// Equal reports whether two states hold the same balances and history.
func (s LedgerState) Equal(other LedgerState) bool {
	if !s.Cash.Equal(other.Cash) || !s.Asset.Equal(other.Asset) || len(s.Trades) != len(other.Trades) {
		return false
	}
	for i := range s.Trades {
		a, b := s.Trades[i], other.Trades[i]
		if a.ID != b.ID || a.Kind != b.Kind || !a.Timestamp.Equal(b.Timestamp) ||
			!a.CashAmount.Equal(b.CashAmount) || !a.AssetAmount.Equal(b.AssetAmount) || !a.Price.Equal(b.Price) {
			return false
		}
	}

	return true
}

// Validate checks balance and history invariants.
func (s LedgerState) Validate() error {
	if s.Cash.IsNegative() {
		return errors.Errorf("negative cash balance %s", s.Cash.String())
	}
	if s.Asset.IsNegative() {
		return errors.Errorf("negative asset balance %s", s.Asset.String())
	}
	if len(s.Trades) > MaxTrades {
		return errors.Errorf("trade history holds %d entries, limit is %d", len(s.Trades), MaxTrades)
	}
	for i, t := range s.Trades {
		if err := t.Validate(); err != nil {
			return err
		}
		if i > 0 && t.Timestamp.After(s.Trades[i-1].Timestamp) {
			return errors.Errorf("trade %s is out of order", t.ID)
		}
	}

	return nil
}
