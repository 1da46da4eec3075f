package tradejournal

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/btcsim/internal/domain"
	"go.uber.org/zap"
)

func newTestJournal(t *testing.T) (*SQLiteJournal, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := NewSQLiteJournal(path, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	return j, path
}

func trade(n int) domain.Trade {
	return domain.Trade{
		ID:          fmt.Sprintf("T%03d", n),
		Kind:        domain.TradeKindSell,
		CashAmount:  decimal.RequireFromString("6000"),
		AssetAmount: decimal.RequireFromString("0.1"),
		Price:       decimal.NewFromInt(60000),
		Timestamp:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).Add(time.Duration(n) * time.Minute),
	}
}

func TestSQLiteJournal_SchemaCreated(t *testing.T) {
	j, path := newTestJournal(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('trades','resets')`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())

	assert.True(t, found["trades"])
	assert.True(t, found["resets"])
}

func TestSQLiteJournal_RecordAndListTrades(t *testing.T) {
	j, _ := newTestJournal(t)
	ctx := context.Background()

	for i := 1; i <= 60; i++ {
		require.NoError(t, j.RecordTrade(ctx, domain.DefaultPair, trade(i)))
	}
	// duplicate ids are ignored
	require.NoError(t, j.RecordTrade(ctx, domain.DefaultPair, trade(60)))

	all, err := j.ListTrades(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 60)
	assert.Equal(t, "T060", all[0].ID)
	assert.Equal(t, "T001", all[59].ID)

	got := all[0]
	want := trade(60)
	assert.Equal(t, want.Kind, got.Kind)
	assert.True(t, want.CashAmount.Equal(got.CashAmount))
	assert.True(t, want.AssetAmount.Equal(got.AssetAmount))
	assert.True(t, want.Price.Equal(got.Price))
	assert.True(t, want.Timestamp.Equal(got.Timestamp))

	recent, err := j.ListTrades(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 5)
	assert.Equal(t, "T056", recent[4].ID)
}

func TestSQLiteJournal_RecordReset(t *testing.T) {
	j, _ := newTestJournal(t)
	ctx := context.Background()

	n, err := j.ResetCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, j.RecordReset(ctx, domain.DefaultPair, time.Now()))
	require.NoError(t, j.RecordReset(ctx, domain.DefaultPair, time.Now()))

	n, err = j.ResetCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestOpen_EmptyPathIsNoop(t *testing.T) {
	j, err := Open("", nil)
	require.NoError(t, err)
	assert.IsType(t, &NoopJournal{}, j)

	trades, err := j.ListTrades(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, trades)
}
