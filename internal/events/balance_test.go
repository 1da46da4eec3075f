package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/btcsim/internal/domain"
)

func TestBalanceBroadcaster_FanOut(t *testing.T) {
	b := NewBalanceBroadcaster(2)
	first := b.Subscribe()
	second := b.Subscribe()
	require.Equal(t, 2, b.Subscribers())

	b.Publish(domain.BalanceSnapshotRecord{Index: 1})

	assert.Equal(t, uint64(1), (<-first).Index)
	assert.Equal(t, uint64(1), (<-second).Index)
}

func TestBalanceBroadcaster_SlowSubscriberDropsRecords(t *testing.T) {
	b := NewBalanceBroadcaster(1)
	sub := b.Subscribe()

	b.Publish(domain.BalanceSnapshotRecord{Index: 1})
	b.Publish(domain.BalanceSnapshotRecord{Index: 2})

	assert.Equal(t, uint64(1), (<-sub).Index)
	assert.Len(t, sub, 0)
}

func TestBalanceBroadcaster_Unsubscribe(t *testing.T) {
	b := NewBalanceBroadcaster(0)
	sub := b.Subscribe()
	b.Unsubscribe(sub)

	_, open := <-sub
	assert.False(t, open)
	assert.Equal(t, 0, b.Subscribers())

	assert.NotPanics(t, func() { b.Unsubscribe(sub) })
	assert.NotPanics(t, func() { b.Publish(domain.BalanceSnapshotRecord{Index: 3}) })
}
