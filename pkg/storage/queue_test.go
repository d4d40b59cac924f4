package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/cuemby/warden/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteQueueCoalesces(t *testing.T) {
	store := newTestStore(t)
	q := NewWriteQueue(store, time.Hour)

	for i := 0; i < 5; i++ {
		q.QueueAnalytics(func(a *types.AnalyticsState) { a.AddViewingTime("alpha", 10) })
	}
	q.QueueRuntime(func(rt *types.FallbackRuntime) { rt.Active = true })

	assert.Equal(t, 5, q.Pending()[RecordAnalytics])
	assert.Equal(t, 1, q.Pending()[RecordRuntime])

	// not on disk yet
	stored, err := store.Analytics()
	require.NoError(t, err)
	assert.Zero(t, stored.ViewingSecondsByChannel["alpha"])

	// but visible through the queue
	viewed, err := q.Analytics()
	require.NoError(t, err)
	assert.Equal(t, 50.0, viewed.ViewingSecondsByChannel["alpha"])
	rt, err := q.Runtime()
	require.NoError(t, err)
	assert.True(t, rt.Active)

	require.NoError(t, q.Flush())
	assert.Zero(t, q.Pending()[RecordAnalytics])

	stored, err = store.Analytics()
	require.NoError(t, err)
	assert.Equal(t, 50.0, stored.ViewingSecondsByChannel["alpha"])
}

func TestWriteQueueFlushesAfterDelay(t *testing.T) {
	store := newTestStore(t)
	q := NewWriteQueue(store, 20*time.Millisecond)

	q.QueueRuntime(func(rt *types.FallbackRuntime) {
		rt.Active = true
		rt.CurrentChannel = "beta"
	})

	assert.Eventually(t, func() bool {
		rt, err := store.Runtime()
		return err == nil && rt.CurrentChannel == "beta"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWriteQueueCloseFlushes(t *testing.T) {
	store := newTestStore(t)
	q := NewWriteQueue(store, time.Hour)

	q.QueueAnalytics(func(a *types.AnalyticsState) { a.RecordSwitch("gamma", time.Now()) })
	require.NoError(t, q.Close())

	a, err := store.Analytics()
	require.NoError(t, err)
	assert.Equal(t, 1, a.SwitchCount)
}

// failingStore rejects analytics writes while err is set
type failingStore struct {
	*BoltStore
	err error
}

func (f *failingStore) UpdateAnalytics(fn func(*types.AnalyticsState) error) (types.AnalyticsState, error) {
	if f.err != nil {
		return types.AnalyticsState{}, f.err
	}
	return f.BoltStore.UpdateAnalytics(fn)
}

func TestWriteQueueKeepsMutationsWhenFlushFails(t *testing.T) {
	store := &failingStore{BoltStore: newTestStore(t), err: errors.New("disk full")}
	q := NewWriteQueue(store, time.Hour)

	q.QueueAnalytics(func(a *types.AnalyticsState) { a.AddViewingTime("alpha", 30) })
	q.QueueRuntime(func(rt *types.FallbackRuntime) { rt.CurrentChannel = "beta" })

	err := q.Flush()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	// runtime went through, analytics stayed queued
	assert.Equal(t, 1, q.Pending()[RecordAnalytics])
	assert.Zero(t, q.Pending()[RecordRuntime])
	rt, err := store.Runtime()
	require.NoError(t, err)
	assert.Equal(t, "beta", rt.CurrentChannel)

	// later mutations apply after the retained ones
	q.QueueAnalytics(func(a *types.AnalyticsState) { a.AddViewingTime("alpha", 15) })
	viewed, err := q.Analytics()
	require.NoError(t, err)
	assert.Equal(t, 45.0, viewed.ViewingSecondsByChannel["alpha"])

	store.err = nil
	require.NoError(t, q.Flush())
	assert.Zero(t, q.Pending()[RecordAnalytics])

	stored, err := store.Analytics()
	require.NoError(t, err)
	assert.Equal(t, 45.0, stored.ViewingSecondsByChannel["alpha"])
}
