// Package events fans out in-process notifications.
package events

import (
	"sync"

	"github.com/vadiminshakov/btcsim/internal/domain"
)

const defaultBuffer = 16

// BalanceBroadcaster fans out appended snapshot records to all subscribers.
type BalanceBroadcaster struct {
	mu     sync.RWMutex
	subs   map[chan domain.BalanceSnapshotRecord]struct{}
	buffer int
}

// NewBalanceBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewBalanceBroadcaster(buffer int) *BalanceBroadcaster {
	if buffer < 1 {
		buffer = defaultBuffer
	}

	return &BalanceBroadcaster{
		subs:   make(map[chan domain.BalanceSnapshotRecord]struct{}),
		buffer: buffer,
	}
}

// Publish sends r to every subscriber. A full subscriber misses it.
func (b *BalanceBroadcaster) Publish(r domain.BalanceSnapshotRecord) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs {
		select {
		case ch <- r:
		default:
		}
	}
}

// Subscribe returns a channel that receives records until Unsubscribe is called.
func (b *BalanceBroadcaster) Subscribe() <-chan domain.BalanceSnapshotRecord {
	ch := make(chan domain.BalanceSnapshotRecord, b.buffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *BalanceBroadcaster) Unsubscribe(sub <-chan domain.BalanceSnapshotRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		if ch == sub {
			delete(b.subs, ch)
			close(ch)
			return
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (b *BalanceBroadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs)
}
