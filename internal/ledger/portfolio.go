package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/btcsim/internal/domain"
	"go.uber.org/zap"
)

// StateRepository loads and saves the single persisted ledger record.
type StateRepository interface {
	Load(ctx context.Context) (domain.LedgerState, bool, error)
	Save(ctx context.Context, state domain.LedgerState) error
}

// StateUpdater is implemented by repositories that can run a read-modify-write as one
// atomic step, even against other processes sharing the store.
type StateUpdater interface {
	Update(ctx context.Context, fn func(current domain.LedgerState, found bool) (domain.LedgerState, error)) error
}

// TradeRecorder receives every executed trade and reset.
type TradeRecorder interface {
	RecordTrade(ctx context.Context, pair domain.Pair, trade domain.Trade) error
	RecordReset(ctx context.Context, pair domain.Pair, at time.Time) error
}

// SnapshotWriter receives the portfolio snapshot taken after each mutation.
type SnapshotWriter interface {
	Save(snapshot domain.BalanceSnapshot) error
}

const (
	eventBuy     = "buy"
	eventSell    = "sell"
	eventBuyAll  = "buy_all"
	eventSellAll = "sell_all"
	eventReset   = "reset"
)

// Portfolio owns the in-memory ledger state of the session and keeps the store in sync with it.
// Every mutation re-reads the persisted record and writes the result back under one lock, so
// other sessions on the same store (a CLI run next to a server) never lose each other's trades.
// After a failed write the in-memory state stays authoritative until a write succeeds.
type Portfolio struct {
	mu        sync.RWMutex
	pair      domain.Pair
	engine    *Engine
	repo      StateRepository
	journal   TradeRecorder
	snapshots SnapshotWriter
	logger    *zap.Logger
	state     domain.LedgerState
	unsaved   bool
	ready     chan struct{}
	readyOnce sync.Once
}

// PortfolioOption configures a Portfolio.
type PortfolioOption func(*Portfolio)

// WithEngine replaces the default engine.
func WithEngine(engine *Engine) PortfolioOption {
	return func(p *Portfolio) {
		p.engine = engine
	}
}

// WithJournal attaches a trade journal.
func WithJournal(journal TradeRecorder) PortfolioOption {
	return func(p *Portfolio) {
		p.journal = journal
	}
}

// WithSnapshots attaches a balance snapshot writer.
func WithSnapshots(snapshots SnapshotWriter) PortfolioOption {
	return func(p *Portfolio) {
		p.snapshots = snapshots
	}
}

// WithPair sets the pair reported to the journal and snapshots.
func WithPair(pair domain.Pair) PortfolioOption {
	return func(p *Portfolio) {
		p.pair = pair
	}
}

// NewPortfolio creates a Portfolio holding the initial state until Hydrate is called.
func NewPortfolio(repo StateRepository, logger *zap.Logger, opts ...PortfolioOption) (*Portfolio, error) {
	if repo == nil {
		return nil, errors.New("state repository is required for Portfolio")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Portfolio{
		pair:   domain.DefaultPair,
		engine: NewEngine(),
		repo:   repo,
		logger: logger,
		state:  domain.NewLedgerState(),
		ready:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Hydrate loads the persisted state, falling back to the initial snapshot when none exists.
// The Ready channel is closed once it succeeds.
func (p *Portfolio) Hydrate(ctx context.Context) error {
	state, found, err := p.repo.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "hydrate portfolio")
	}
	if !found {
		state = domain.NewLedgerState()
	}

	p.mu.Lock()
	p.state = state
	p.unsaved = false
	p.mu.Unlock()

	p.readyOnce.Do(func() { close(p.ready) })

	p.logger.Info("portfolio hydrated",
		zap.Bool("restored", found),
		zap.String("cash", state.Cash.String()),
		zap.String("asset", state.Asset.String()),
		zap.Int("trades", len(state.Trades)))

	return nil
}

// Ready is closed after the persisted state has been loaded.
func (p *Portfolio) Ready() <-chan struct{} {
	return p.ready
}

// IsReady reports whether the state is authoritative.
func (p *Portfolio) IsReady() bool {
	select {
	case <-p.ready:
		return true
	default:
		return false
	}
}

// State returns a copy of the current ledger state.
func (p *Portfolio) State() domain.LedgerState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return cloneState(p.state)
}

// Trades returns the retained trade history, newest first.
func (p *Portfolio) Trades() []domain.Trade {
	return p.State().Trades
}

// Metrics values the current state at price.
func (p *Portfolio) Metrics(price decimal.NullDecimal) Metrics {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return ComputeMetrics(p.state, price)
}

// Buy spends usd of cash at price.
func (p *Portfolio) Buy(ctx context.Context, price decimal.NullDecimal, usd decimal.Decimal) (domain.LedgerState, error) {
	return p.mutate(ctx, eventBuy, price, func(s domain.LedgerState) (domain.LedgerState, error) {
		return p.engine.Buy(s, price, usd)
	})
}

// Sell sells btc of the asset at price.
func (p *Portfolio) Sell(ctx context.Context, price decimal.NullDecimal, btc decimal.Decimal) (domain.LedgerState, error) {
	return p.mutate(ctx, eventSell, price, func(s domain.LedgerState) (domain.LedgerState, error) {
		return p.engine.Sell(s, price, btc)
	})
}

// BuyAll spends the whole cash balance at price.
func (p *Portfolio) BuyAll(ctx context.Context, price decimal.NullDecimal) (domain.LedgerState, error) {
	return p.mutate(ctx, eventBuyAll, price, func(s domain.LedgerState) (domain.LedgerState, error) {
		return p.engine.BuyAll(s, price)
	})
}

// SellAll sells the whole asset balance at price.
func (p *Portfolio) SellAll(ctx context.Context, price decimal.NullDecimal) (domain.LedgerState, error) {
	return p.mutate(ctx, eventSellAll, price, func(s domain.LedgerState) (domain.LedgerState, error) {
		return p.engine.SellAll(s, price)
	})
}

// Reset discards balances and history.
func (p *Portfolio) Reset(ctx context.Context, price decimal.NullDecimal) (domain.LedgerState, error) {
	return p.mutate(ctx, eventReset, price, func(domain.LedgerState) (domain.LedgerState, error) {
		return p.engine.Reset(), nil
	})
}

// Quote previews a trade at price without applying it.
func (p *Portfolio) Quote(kind domain.TradeKind, price decimal.NullDecimal, amount decimal.Decimal) (Quote, error) {
	return p.engine.Quote(kind, price, amount)
}

// PresetAmount resolves a quick amount preset against the current balances.
func (p *Portfolio) PresetAmount(kind domain.TradeKind, percent int) (decimal.Decimal, error) {
	if !p.IsReady() {
		return decimal.Zero, domain.ErrNotReady
	}

	return PresetAmount(p.State(), kind, percent)
}

// Refresh reloads the persisted record so reads see mutations made by other sessions.
// It keeps the in-memory state while a write of it is pending.
func (p *Portfolio) Refresh(ctx context.Context) error {
	if !p.IsReady() {
		return domain.ErrNotReady
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.unsaved {
		return nil
	}
	state, found, err := p.repo.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "refresh portfolio")
	}
	if found {
		p.state = state
	}

	return nil
}

func (p *Portfolio) mutate(
	ctx context.Context,
	event string,
	price decimal.NullDecimal,
	transition func(domain.LedgerState) (domain.LedgerState, error),
) (domain.LedgerState, error) {
	if !p.IsReady() {
		return p.State(), domain.ErrNotReady
	}

	// the write and the observers must not be cut short by a disconnecting caller
	ctx = context.WithoutCancel(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	var (
		base, next domain.LedgerState
		applied    bool
		rejected   error
	)
	apply := func(stored domain.LedgerState, found bool) (domain.LedgerState, error) {
		base = p.state
		if found && !p.unsaved {
			base = stored
		}
		n, err := transition(base)
		if err != nil {
			rejected = err
			return domain.LedgerState{}, err
		}
		next, applied = n, true
		return n, nil
	}

	err := p.update(ctx, apply)
	switch {
	case rejected != nil:
	case !applied:
		p.logger.Warn("failed to read portfolio state, applying to in-memory state", zap.String("event", event), zap.Error(err))
		if _, err := apply(domain.LedgerState{}, false); err == nil {
			p.unsaved = true
		}
	case err != nil:
		p.logger.Warn("failed to persist portfolio state, keeping in-memory state", zap.String("event", event), zap.Error(err))
		p.unsaved = true
	default:
		p.unsaved = false
	}

	if rejected != nil {
		p.state = base
		p.logger.Debug("ledger operation rejected", zap.String("event", event), zap.Error(rejected))
		return cloneState(base), rejected
	}
	p.state = next

	p.notify(ctx, event, next, price)

	return cloneState(next), nil
}

// update runs fn against the stored state, atomically when the repository supports it.
func (p *Portfolio) update(ctx context.Context, fn func(domain.LedgerState, bool) (domain.LedgerState, error)) error {
	if u, ok := p.repo.(StateUpdater); ok {
		return u.Update(ctx, fn)
	}

	stored, found, err := p.repo.Load(ctx)
	if err != nil {
		return err
	}
	next, err := fn(stored, found)
	if err != nil {
		return err
	}

	return p.repo.Save(ctx, next)
}

func (p *Portfolio) notify(ctx context.Context, event string, state domain.LedgerState, price decimal.NullDecimal) {
	if event == eventReset {
		p.logger.Info("portfolio reset")
		if p.journal != nil {
			if err := p.journal.RecordReset(ctx, p.pair, time.Now().UTC()); err != nil {
				p.logger.Warn("failed to journal reset", zap.Error(err))
			}
		}
	} else {
		// every successful trade prepends exactly one entry
		trade := state.Trades[0]
		p.logger.Info("trade executed",
			zap.String("id", trade.ID),
			zap.String("kind", trade.Kind.String()),
			zap.String("usd", trade.CashAmount.String()),
			zap.String("btc", trade.AssetAmount.String()),
			zap.String("price", trade.Price.String()))
		if p.journal != nil {
			if err := p.journal.RecordTrade(ctx, p.pair, trade); err != nil {
				p.logger.Warn("failed to journal trade", zap.String("id", trade.ID), zap.Error(err))
			}
		}
	}

	if p.snapshots != nil {
		snapshot := domain.BalanceSnapshot{
			Timestamp:      time.Now().UTC(),
			Pair:           p.pair.String(),
			Event:          event,
			Cash:           state.Cash.String(),
			Asset:          state.Asset.String(),
			PortfolioValue: PortfolioValue(state, price).String(),
		}
		if usable(price) {
			snapshot.Price = price.Decimal.String()
		}
		if err := p.snapshots.Save(snapshot); err != nil {
			p.logger.Warn("failed to save balance snapshot", zap.String("event", event), zap.Error(err))
		}
	}
}

func cloneState(s domain.LedgerState) domain.LedgerState {
	trades := make([]domain.Trade, len(s.Trades))
	copy(trades, s.Trades)

	return domain.LedgerState{Cash: s.Cash, Asset: s.Asset, Trades: trades}
}
