package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/cuemby/warden/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestDefaultsWhenEmpty(t *testing.T) {
	store := newTestStore(t)

	settings, err := store.Settings()
	require.NoError(t, err)
	assert.Equal(t, types.DefaultSettings(), settings)

	channels, err := store.Channels()
	require.NoError(t, err)
	assert.Empty(t, channels)

	rt, err := store.Runtime()
	require.NoError(t, err)
	assert.False(t, rt.Active)
	assert.Equal(t, types.FallbackReasonAuto, rt.Reason)

	a, err := store.Analytics()
	require.NoError(t, err)
	assert.NotNil(t, a.ViewingSecondsByChannel)
	assert.Zero(t, a.SwitchCount)
}

func TestPartialSettingsOverlayDefaults(t *testing.T) {
	store := newTestStore(t)

	// an older build stored only a subset of the fields
	err := store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecords).Put([]byte(RecordSettings), []byte(`{"fallbackCategory":"Just Chatting"}`))
	})
	require.NoError(t, err)

	settings, err := store.Settings()
	require.NoError(t, err)
	assert.Equal(t, "Just Chatting", settings.FallbackCategory)
	assert.Equal(t, types.DefaultPollInterval.Milliseconds(), settings.PollIntervalMs)
	assert.True(t, settings.NotificationsEnabled)
}

func TestUpdateSettingsNormalizes(t *testing.T) {
	store := newTestStore(t)

	got, err := store.UpdateSettings(func(s *types.Settings) error {
		s.AutoSwitchEnabled = false
		s.ManagedSurfaceID = "tab-1"
		s.PollIntervalMs = 1
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, got.ManagedSurfaceID)
	assert.Equal(t, types.MinPollInterval.Milliseconds(), got.PollIntervalMs)

	stored, err := store.Settings()
	require.NoError(t, err)
	assert.Equal(t, got, stored)
}

func TestUpdateChannelsSeesLatest(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	_, err := store.UpdateChannels(func(list []types.ChannelEntry) ([]types.ChannelEntry, error) {
		return types.AddChannel(list, "alpha", now)
	})
	require.NoError(t, err)
	_, err = store.UpdateChannels(func(list []types.ChannelEntry) ([]types.ChannelEntry, error) {
		require.Len(t, list, 1)
		return types.AddChannel(list, "beta", now)
	})
	require.NoError(t, err)

	channels, err := store.Channels()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, types.ChannelNames(channels))
}

func TestUpdateChannelsErrorLeavesRecord(t *testing.T) {
	store := newTestStore(t)
	_, err := store.UpdateChannels(func(list []types.ChannelEntry) ([]types.ChannelEntry, error) {
		return types.AddChannel(list, "alpha", time.Now())
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = store.UpdateChannels(func(list []types.ChannelEntry) ([]types.ChannelEntry, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	channels, err := store.Channels()
	require.NoError(t, err)
	assert.Len(t, channels, 1)
}

func TestResetAnalytics(t *testing.T) {
	store := newTestStore(t)

	_, err := store.UpdateAnalytics(func(a *types.AnalyticsState) error {
		a.AddViewingTime("alpha", 60)
		a.RecordSwitch("alpha", time.Now())
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, store.ResetAnalytics())
	a, err := store.Analytics()
	require.NoError(t, err)
	assert.Zero(t, a.SwitchCount)
	assert.Empty(t, a.ViewingSecondsByChannel)
	assert.Nil(t, a.LastSwitch)
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	_, err = store.UpdateRuntime(func(rt *types.FallbackRuntime) error {
		rt.Active = true
		rt.Category = "Art"
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewBoltStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	rt, err := reopened.Runtime()
	require.NoError(t, err)
	assert.True(t, rt.Active)
	assert.Equal(t, "Art", rt.Category)
}
