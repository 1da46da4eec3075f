package tradejournal

import (
	"context"
	"time"

	"github.com/vadiminshakov/btcsim/internal/domain"
	"go.uber.org/zap"
)

// Journal is implemented by SQLiteJournal and NoopJournal.
type Journal interface {
	RecordTrade(ctx context.Context, pair domain.Pair, trade domain.Trade) error
	RecordReset(ctx context.Context, pair domain.Pair, at time.Time) error
	ListTrades(ctx context.Context, limit int) ([]domain.Trade, error)
	ResetCount(ctx context.Context) (int, error)
	Close() error
}

// Open returns a SQLite journal at path, or a NoopJournal when path is empty.
func Open(path string, logger *zap.Logger) (Journal, error) {
	if path == "" {
		return NewNoopJournal(), nil
	}

	return NewSQLiteJournal(path, logger)
}
