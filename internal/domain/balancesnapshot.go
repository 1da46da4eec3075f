package domain

import "time"

// BalanceSnapshot portfolio state captured after a ledger mutation.
type BalanceSnapshot struct {
	Timestamp      time.Time `json:"ts"`
	Pair           string    `json:"pair"`
	Event          string    `json:"event"`
	Cash           string    `json:"cash"`
	Asset          string    `json:"asset"`
	Price          string    `json:"price,omitempty"`
	PortfolioValue string    `json:"portfolio_value"`
}

// BalanceSnapshotRecord bundles a snapshot with its WAL index.
type BalanceSnapshotRecord struct {
	Index    uint64
	Snapshot BalanceSnapshot
}
