// Package balancesnapshots keeps a write-ahead log of portfolio snapshots for streaming and recovery.
package balancesnapshots

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/btcsim/internal/domain"
	"github.com/vadiminshakov/gowal"
)

const (
	defaultSnapshotDir   = "./state/balance"
	snapshotSegmentLimit = 1000
	snapshotMaxSegments  = 100
	snapshotKeyPrefix    = "portfolio_snapshot_"
)

var errNotInitialized = errors.New("balance snapshot store is not initialized")

type publisher interface {
	Publish(record domain.BalanceSnapshotRecord)
}

// WALStore appends one snapshot per ledger mutation.
type WALStore struct {
	wal       *gowal.Wal
	mu        sync.RWMutex
	publisher publisher
}

// Option configures a WALStore.
type Option func(*WALStore)

// WithPublisher announces every appended record to p.
func WithPublisher(p publisher) Option {
	return func(s *WALStore) { s.publisher = p }
}

// NewWALStore opens the snapshot log under dir.
func NewWALStore(dir string, opts ...Option) (*WALStore, error) {
	if dir == "" {
		dir = defaultSnapshotDir
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "snapshot_",
		SegmentThreshold: snapshotSegmentLimit,
		MaxSegments:      snapshotMaxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init balance snapshot WAL")
	}

	s := &WALStore{wal: wal}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Save appends snapshot under the next index.
func (s *WALStore) Save(snapshot domain.BalanceSnapshot) error {
	if s == nil || s.wal == nil {
		return errNotInitialized
	}
	if snapshot.Pair == "" {
		return errors.New("balance snapshot pair is required")
	}
	if snapshot.Event == "" {
		return errors.New("balance snapshot event is required")
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "marshal balance snapshot")
	}

	s.mu.Lock()
	index := s.wal.CurrentIndex() + 1
	err = s.wal.Write(index, snapshotKeyPrefix+snapshot.Pair, payload)
	s.mu.Unlock()
	if err != nil {
		return errors.Wrap(err, "append balance snapshot")
	}

	if s.publisher != nil {
		s.publisher.Publish(domain.BalanceSnapshotRecord{Index: index, Snapshot: snapshot})
	}

	return nil
}

// SnapshotsAfter returns the snapshots written after index, oldest first.
func (s *WALStore) SnapshotsAfter(index uint64) ([]domain.BalanceSnapshotRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errNotInitialized
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]domain.BalanceSnapshotRecord, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, snapshotKeyPrefix) {
			continue
		}

		var snapshot domain.BalanceSnapshot
		if err := json.Unmarshal(payload, &snapshot); err != nil {
			return nil, errors.Wrapf(err, "decode balance snapshot %d", idx)
		}
		records = append(records, domain.BalanceSnapshotRecord{Index: idx, Snapshot: snapshot})
	}

	return records, nil
}

// Latest returns the most recent snapshot, if any.
func (s *WALStore) Latest() (domain.BalanceSnapshotRecord, bool, error) {
	current := s.CurrentIndex()
	if current == 0 {
		return domain.BalanceSnapshotRecord{}, false, nil
	}

	records, err := s.SnapshotsAfter(current - 1)
	if err != nil || len(records) == 0 {
		return domain.BalanceSnapshotRecord{}, false, err
	}

	return records[len(records)-1], true, nil
}

// CurrentIndex returns the index of the last written snapshot, 0 when empty.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errNotInitialized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
