package ledger

import (
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/btcsim/internal/domain"
)

// Metrics valuation of a ledger state at a given price.
type Metrics struct {
	Cash                 decimal.Decimal
	Asset                decimal.Decimal
	Price                decimal.NullDecimal
	PortfolioValue       decimal.Decimal
	ProfitLoss           decimal.Decimal
	ProfitLossPercentage decimal.Decimal
	IsProfitable         bool
	CanBuy               bool
	CanSell              bool
}

// PortfolioValue is cash plus the asset marked to price, or cash alone when the price is unknown.
func PortfolioValue(state domain.LedgerState, price decimal.NullDecimal) decimal.Decimal {
	if !usable(price) {
		return state.Cash
	}

	return state.Cash.Add(state.Asset.Mul(price.Decimal))
}

// ProfitLoss portfolio value relative to the initial balance.
func ProfitLoss(state domain.LedgerState, price decimal.NullDecimal) decimal.Decimal {
	return PortfolioValue(state, price).Sub(domain.InitialBalance)
}

// ProfitLossPercentage profit or loss as a percentage of the initial balance.
func ProfitLossPercentage(state domain.LedgerState, price decimal.NullDecimal) decimal.Decimal {
	return ProfitLoss(state, price).Div(domain.InitialBalance).Mul(hundred)
}

// IsProfitable reports a non-negative profit.
func IsProfitable(state domain.LedgerState, price decimal.NullDecimal) bool {
	return !ProfitLoss(state, price).IsNegative()
}

// CanBuy reports whether there is cash to spend and a price to spend it at.
func CanBuy(state domain.LedgerState, price decimal.NullDecimal) bool {
	return state.Cash.IsPositive() && usable(price)
}

// CanSell reports whether there is asset to sell and a price to sell it at.
func CanSell(state domain.LedgerState, price decimal.NullDecimal) bool {
	return state.Asset.IsPositive() && usable(price)
}

// ComputeMetrics bundles all derived values for state at price.
func ComputeMetrics(state domain.LedgerState, price decimal.NullDecimal) Metrics {
	pl := ProfitLoss(state, price)

	return Metrics{
		Cash:                 state.Cash,
		Asset:                state.Asset,
		Price:                price,
		PortfolioValue:       PortfolioValue(state, price),
		ProfitLoss:           pl,
		ProfitLossPercentage: pl.Div(domain.InitialBalance).Mul(hundred),
		IsProfitable:         !pl.IsNegative(),
		CanBuy:               CanBuy(state, price),
		CanSell:              CanSell(state, price),
	}
}
