// Package ledgerstate persists the ledger state as one schema-versioned JSON record.
package ledgerstate

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/btcsim/internal/domain"
	"github.com/vadiminshakov/btcsim/internal/storage/kv"
	"go.uber.org/zap"
)

const (
	// Key storage key of the ledger record.
	Key = "cryptosim_portfolio_v2"
	// SchemaVersion version written into every record.
	SchemaVersion = 2
)

// ErrCorrupt the stored record cannot be turned into a valid ledger state.
var ErrCorrupt = errors.New("corrupt ledger record")

// Record is the serializable form of domain.LedgerState.
type Record struct {
	Version int           `json:"version"`
	Balance string        `json:"balance"`
	Asset   string        `json:"btcAmount"`
	Trades  []StoredTrade `json:"trades"`
}

// StoredTrade is the serializable form of domain.Trade. Timestamp is unix milliseconds.
type StoredTrade struct {
	ID          string `json:"id"`
	Kind        string `json:"type"`
	CashAmount  string `json:"usdAmount"`
	AssetAmount string `json:"btcAmount"`
	Price       string `json:"price"`
	Timestamp   int64  `json:"timestamp"`
}

// Repository loads and saves the ledger state through a kv.Store.
type Repository struct {
	store  kv.Store
	logger *zap.Logger
}

// NewRepository creates a repository on top of store.
func NewRepository(store kv.Store, logger *zap.Logger) (*Repository, error) {
	if store == nil {
		return nil, errors.New("kv store is required for ledger repository")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Repository{store: store, logger: logger}, nil
}

// Load returns the persisted state. A missing or corrupt record is reported as absent.
func (r *Repository) Load(ctx context.Context) (domain.LedgerState, bool, error) {
	payload, err := r.store.Get(ctx, Key)
	if errors.Is(err, kv.ErrNotFound) {
		return domain.LedgerState{}, false, nil
	}
	if err != nil {
		return domain.LedgerState{}, false, errors.Wrap(err, "load ledger record")
	}

	state, err := Decode(payload)
	if err != nil {
		r.logger.Warn("discarding unreadable ledger record", zap.String("key", Key), zap.Error(err))
		return domain.LedgerState{}, false, nil
	}

	return state, true, nil
}

// Save replaces the persisted state.
func (r *Repository) Save(ctx context.Context, state domain.LedgerState) error {
	payload, err := Encode(state)
	if err != nil {
		return err
	}

	if err := r.store.Put(ctx, Key, payload); err != nil {
		return errors.Wrap(err, "save ledger record")
	}

	return nil
}

// Update applies fn to the persisted state and stores the result in one atomic step of the
// underlying store. fn sees found=false for a missing or unreadable record. When fn fails
// nothing is written and its error is returned.
func (r *Repository) Update(ctx context.Context, fn func(current domain.LedgerState, found bool) (domain.LedgerState, error)) error {
	return r.store.Update(ctx, Key, func(payload []byte, found bool) ([]byte, error) {
		var current domain.LedgerState
		if found {
			state, err := Decode(payload)
			if err != nil {
				r.logger.Warn("discarding unreadable ledger record", zap.String("key", Key), zap.Error(err))
				found = false
			} else {
				current = state
			}
		}

		next, err := fn(current, found)
		if err != nil {
			return nil, err
		}

		return Encode(next)
	})
}

// Encode serializes state into the current schema.
func Encode(state domain.LedgerState) ([]byte, error) {
	rec := Record{
		Version: SchemaVersion,
		Balance: state.Cash.String(),
		Asset:   state.Asset.String(),
		Trades:  make([]StoredTrade, 0, len(state.Trades)),
	}
	for _, t := range state.Trades {
		rec.Trades = append(rec.Trades, StoredTrade{
			ID:          t.ID,
			Kind:        t.Kind.String(),
			CashAmount:  t.CashAmount.String(),
			AssetAmount: t.AssetAmount.String(),
			Price:       t.Price.String(),
			Timestamp:   t.Timestamp.UnixMilli(),
		})
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, errors.Wrap(err, "encode ledger record")
	}

	return payload, nil
}

// Decode parses and validates a stored record. Any failure wraps ErrCorrupt.
func Decode(payload []byte) (domain.LedgerState, error) {
	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return domain.LedgerState{}, errors.Wrapf(ErrCorrupt, "decode json: %v", err)
	}
	if rec.Version != SchemaVersion {
		return domain.LedgerState{}, errors.Wrapf(ErrCorrupt, "schema version %d, want %d", rec.Version, SchemaVersion)
	}

	cash, err := decimal.NewFromString(rec.Balance)
	if err != nil {
		return domain.LedgerState{}, errors.Wrapf(ErrCorrupt, "balance: %v", err)
	}
	asset, err := decimal.NewFromString(rec.Asset)
	if err != nil {
		return domain.LedgerState{}, errors.Wrapf(ErrCorrupt, "btc amount: %v", err)
	}

	state := domain.LedgerState{Cash: cash, Asset: asset, Trades: make([]domain.Trade, 0, len(rec.Trades))}
	for _, st := range rec.Trades {
		t, err := st.toTrade()
		if err != nil {
			return domain.LedgerState{}, errors.Wrapf(ErrCorrupt, "trade %s: %v", st.ID, err)
		}
		state.Trades = append(state.Trades, t)
	}

	if err := state.Validate(); err != nil {
		return domain.LedgerState{}, errors.Wrapf(ErrCorrupt, "%v", err)
	}

	return state, nil
}

func (st StoredTrade) toTrade() (domain.Trade, error) {
	cash, err := decimal.NewFromString(st.CashAmount)
	if err != nil {
		return domain.Trade{}, errors.Wrap(err, "usd amount")
	}
	asset, err := decimal.NewFromString(st.AssetAmount)
	if err != nil {
		return domain.Trade{}, errors.Wrap(err, "btc amount")
	}
	price, err := decimal.NewFromString(st.Price)
	if err != nil {
		return domain.Trade{}, errors.Wrap(err, "price")
	}

	return domain.Trade{
		ID:          st.ID,
		Kind:        domain.TradeKind(st.Kind),
		CashAmount:  cash,
		AssetAmount: asset,
		Price:       price,
		Timestamp:   time.UnixMilli(st.Timestamp).UTC(),
	}, nil
}
