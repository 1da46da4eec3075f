package ledger

import (
	"slices"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/btcsim/internal/domain"
)

// Quick amount presets, in percent of the spendable balance.
var Presets = []int{25, 50, 75, 100}

// Quote is what a trade would move at the given price.
type Quote struct {
	Kind  domain.TradeKind
	Price decimal.Decimal
	// Cash is USD spent by a buy or received by a sell.
	Cash decimal.Decimal
	// Asset is BTC received by a buy or given up by a sell.
	Asset decimal.Decimal
}

// Quote previews a trade of amount (USD for buy, BTC for sell) without touching any state.
// Balances are not checked; the amounts match what Buy and Sell would record.
func (e *Engine) Quote(kind domain.TradeKind, price decimal.NullDecimal, amount decimal.Decimal) (Quote, error) {
	if !kind.IsValid() {
		return Quote{}, errors.Errorf("unknown trade kind %q", kind)
	}
	if !usable(price) {
		return Quote{}, domain.ErrPriceUnknown
	}
	if !amount.IsPositive() {
		return Quote{}, errors.Wrapf(domain.ErrInvalidAmount, "%s amount %s", kind, amount.String())
	}

	cash, asset, err := convert(kind, price.Decimal, amount)
	if err != nil {
		return Quote{}, err
	}

	return Quote{Kind: kind, Price: price.Decimal, Cash: cash, Asset: asset}, nil
}

// PresetAmount is percent of the balance a trade of kind spends: cash for buy, asset for sell.
// Partial presets round down to cents and satoshis; 100 is the exact balance.
func PresetAmount(state domain.LedgerState, kind domain.TradeKind, percent int) (decimal.Decimal, error) {
	if !slices.Contains(Presets, percent) {
		return decimal.Zero, errors.Wrapf(domain.ErrInvalidAmount, "preset %d%%, want one of %v", percent, Presets)
	}

	var (
		balance decimal.Decimal
		places  int32
	)
	switch kind {
	case domain.TradeKindBuy:
		balance, places = state.Cash, 2
	case domain.TradeKindSell:
		balance, places = state.Asset, 8
	default:
		return decimal.Zero, errors.Errorf("unknown trade kind %q", kind)
	}

	if percent == 100 {
		return balance, nil
	}

	return balance.Mul(decimal.NewFromInt(int64(percent))).Div(hundred).RoundDown(places), nil
}

// convert turns a trade amount into its cash and asset legs at price.
func convert(kind domain.TradeKind, price, amount decimal.Decimal) (cash, asset decimal.Decimal, err error) {
	if kind == domain.TradeKindSell {
		return amount.Mul(price), amount, nil
	}

	asset = amount.Div(price)
	if !asset.IsPositive() {
		return decimal.Zero, decimal.Zero, errors.Wrapf(domain.ErrInvalidAmount, "buy amount %s is below asset precision", amount.String())
	}

	return amount, asset, nil
}
