package tradejournal

import (
	"context"
	"time"

	"github.com/vadiminshakov/btcsim/internal/domain"
)

// NoopJournal is used when no journal database is configured.
type NoopJournal struct{}

func NewNoopJournal() *NoopJournal { return &NoopJournal{} }

func (n *NoopJournal) RecordTrade(context.Context, domain.Pair, domain.Trade) error { return nil }
func (n *NoopJournal) RecordReset(context.Context, domain.Pair, time.Time) error    { return nil }
func (n *NoopJournal) ListTrades(context.Context, int) ([]domain.Trade, error)      { return nil, nil }
func (n *NoopJournal) ResetCount(context.Context) (int, error)                      { return 0, nil }
func (n *NoopJournal) Close() error                                                 { return nil }
