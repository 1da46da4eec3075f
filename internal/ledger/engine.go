// Package ledger holds the portfolio transition rules and the persisted session around them.
package ledger

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/btcsim/internal/domain"
	"github.com/vadiminshakov/btcsim/pkg/id"
)

var hundred = decimal.NewFromInt(100)

// Engine applies buy and sell operations to a LedgerState.
// It never mutates the state it is given; every successful call returns a new snapshot.
type Engine struct {
	now   func() time.Time
	newID func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the trade timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator overrides the trade id source.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		e.newID = newID
	}
}

// NewEngine creates an Engine with wall clock timestamps and ULID trade ids.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		now:   time.Now,
		newID: id.New,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Buy converts usd of cash into the asset at price.
// On rejection the input state is returned as is together with the reason.
func (e *Engine) Buy(state domain.LedgerState, price decimal.NullDecimal, usd decimal.Decimal) (domain.LedgerState, error) {
	if !usable(price) {
		return state, domain.ErrPriceUnknown
	}
	if !usd.IsPositive() {
		return state, errors.Wrapf(domain.ErrInvalidAmount, "buy amount %s", usd.String())
	}
	if usd.GreaterThan(state.Cash) {
		return state, errors.Wrapf(domain.ErrInsufficientFunds, "have %s USD need %s", state.Cash.String(), usd.String())
	}

	cash, asset, err := convert(domain.TradeKindBuy, price.Decimal, usd)
	if err != nil {
		return state, err
	}

	return e.apply(state, domain.TradeKindBuy, cash, asset, price.Decimal), nil
}

// Sell converts btc of the asset into cash at price.
// On rejection the input state is returned as is together with the reason.
func (e *Engine) Sell(state domain.LedgerState, price decimal.NullDecimal, btc decimal.Decimal) (domain.LedgerState, error) {
	if !usable(price) {
		return state, domain.ErrPriceUnknown
	}
	if !btc.IsPositive() {
		return state, errors.Wrapf(domain.ErrInvalidAmount, "sell amount %s", btc.String())
	}
	if btc.GreaterThan(state.Asset) {
		return state, errors.Wrapf(domain.ErrInsufficientFunds, "have %s BTC need %s", state.Asset.String(), btc.String())
	}

	cash, asset, err := convert(domain.TradeKindSell, price.Decimal, btc)
	if err != nil {
		return state, err
	}

	return e.apply(state, domain.TradeKindSell, cash, asset, price.Decimal), nil
}

// BuyAll spends the whole cash balance.
func (e *Engine) BuyAll(state domain.LedgerState, price decimal.NullDecimal) (domain.LedgerState, error) {
	if !CanBuy(state, price) {
		return state, rejectAll(state.Cash, price, "USD")
	}

	return e.Buy(state, price, state.Cash)
}

// SellAll sells the whole asset balance.
func (e *Engine) SellAll(state domain.LedgerState, price decimal.NullDecimal) (domain.LedgerState, error) {
	if !CanSell(state, price) {
		return state, rejectAll(state.Asset, price, "BTC")
	}

	return e.Sell(state, price, state.Asset)
}

// Reset returns the initial snapshot.
func (e *Engine) Reset() domain.LedgerState {
	return domain.NewLedgerState()
}

// apply moves cash and asset in opposite directions and records the trade.
// Buy debits cash and credits the asset, sell does the reverse.
func (e *Engine) apply(state domain.LedgerState, kind domain.TradeKind, cash, asset, price decimal.Decimal) domain.LedgerState {
	next := domain.LedgerState{Cash: state.Cash, Asset: state.Asset}
	switch kind {
	case domain.TradeKindBuy:
		next.Cash = state.Cash.Sub(cash)
		next.Asset = state.Asset.Add(asset)
	case domain.TradeKindSell:
		next.Cash = state.Cash.Add(cash)
		next.Asset = state.Asset.Sub(asset)
	}

	ts := e.now().UTC().Truncate(time.Millisecond)
	if len(state.Trades) > 0 && ts.Before(state.Trades[0].Timestamp) {
		// keep history newest-first even if the wall clock steps back
		ts = state.Trades[0].Timestamp
	}

	trade := domain.Trade{
		ID:          e.newID(),
		Kind:        kind,
		CashAmount:  cash,
		AssetAmount: asset,
		Price:       price,
		Timestamp:   ts,
	}
	next.Trades = prepend(state.Trades, trade)

	return next
}

// prepend returns a new slice with t in front, capped at domain.MaxTrades.
func prepend(trades []domain.Trade, t domain.Trade) []domain.Trade {
	n := len(trades) + 1
	if n > domain.MaxTrades {
		n = domain.MaxTrades
	}
	out := make([]domain.Trade, n)
	out[0] = t
	copy(out[1:], trades)

	return out
}

func rejectAll(balance decimal.Decimal, price decimal.NullDecimal, currency string) error {
	if !usable(price) {
		return domain.ErrPriceUnknown
	}

	return errors.Wrapf(domain.ErrInsufficientFunds, "no %s balance (%s)", currency, balance.String())
}

func usable(price decimal.NullDecimal) bool {
	return price.Valid && price.Decimal.IsPositive()
}
