// Package tradejournal keeps an unbounded audit log of executed trades and resets.
package tradejournal

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/btcsim/internal/domain"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteJournal persists the journal to a SQLite database.
type SQLiteJournal struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// NewSQLiteJournal opens (or creates) the database and runs migrations.
func NewSQLiteJournal(path string, logger *zap.Logger) (*SQLiteJournal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "create journal dir")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "set WAL mode")
	}

	j := &SQLiteJournal{db: db, logger: logger}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate")
	}

	logger.Info("trade journal opened", zap.String("path", path))

	return j, nil
}

func (j *SQLiteJournal) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			seq          INTEGER PRIMARY KEY AUTOINCREMENT,
			trade_id     TEXT NOT NULL UNIQUE,
			pair         TEXT NOT NULL,
			kind         TEXT NOT NULL,
			usd_amount   TEXT NOT NULL,
			btc_amount   TEXT NOT NULL,
			price        TEXT NOT NULL,
			timestamp_ms INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(timestamp_ms)`,

		`CREATE TABLE IF NOT EXISTS resets (
			seq          INTEGER PRIMARY KEY AUTOINCREMENT,
			pair         TEXT NOT NULL,
			timestamp_ms INTEGER NOT NULL
		)`,
	}

	for _, s := range stmts {
		if _, err := j.db.Exec(s); err != nil {
			return errors.Wrapf(err, "exec %q", s[:40])
		}
	}

	return nil
}

// RecordTrade appends a trade. Recording the same trade id twice is a no-op.
func (j *SQLiteJournal) RecordTrade(ctx context.Context, pair domain.Pair, trade domain.Trade) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx, `INSERT OR IGNORE INTO trades
		(trade_id, pair, kind, usd_amount, btc_amount, price, timestamp_ms)
		VALUES (?,?,?,?,?,?,?)`,
		trade.ID, pair.String(), trade.Kind.String(),
		trade.CashAmount.String(), trade.AssetAmount.String(), trade.Price.String(),
		trade.Timestamp.UnixMilli(),
	)
	if err != nil {
		return errors.Wrapf(err, "insert trade %s", trade.ID)
	}

	return nil
}

// RecordReset appends a portfolio reset marker.
func (j *SQLiteJournal) RecordReset(ctx context.Context, pair domain.Pair, at time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx, `INSERT INTO resets (pair, timestamp_ms) VALUES (?,?)`,
		pair.String(), at.UnixMilli())
	if err != nil {
		return errors.Wrap(err, "insert reset")
	}

	return nil
}

// ListTrades returns journaled trades, newest first. limit <= 0 returns all of them.
func (j *SQLiteJournal) ListTrades(ctx context.Context, limit int) ([]domain.Trade, error) {
	query := `SELECT trade_id, kind, usd_amount, btc_amount, price, timestamp_ms
		FROM trades ORDER BY seq DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query trades")
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		var (
			id, kind, usd, btc, price string
			ts                        int64
		)
		if err := rows.Scan(&id, &kind, &usd, &btc, &price, &ts); err != nil {
			return nil, errors.Wrap(err, "scan trade")
		}

		trade := domain.Trade{ID: id, Kind: domain.TradeKind(kind), Timestamp: time.UnixMilli(ts).UTC()}
		if trade.CashAmount, err = decimal.NewFromString(usd); err != nil {
			return nil, errors.Wrapf(err, "trade %s usd amount", id)
		}
		if trade.AssetAmount, err = decimal.NewFromString(btc); err != nil {
			return nil, errors.Wrapf(err, "trade %s btc amount", id)
		}
		if trade.Price, err = decimal.NewFromString(price); err != nil {
			return nil, errors.Wrapf(err, "trade %s price", id)
		}
		out = append(out, trade)
	}

	return out, errors.Wrap(rows.Err(), "iterate trades")
}

// ResetCount returns how many resets were journaled.
func (j *SQLiteJournal) ResetCount(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM resets`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count resets")
	}

	return n, nil
}

func (j *SQLiteJournal) Close() error {
	j.logger.Info("closing trade journal")
	return j.db.Close()
}
