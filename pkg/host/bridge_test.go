package host

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeSurfaces(t *testing.T) {
	b := NewBridge()
	ctx := context.Background()

	_, err := b.DefaultSurface(ctx)
	assert.ErrorIs(t, err, ErrSurfaceNotFound)

	b.ReportSurface(Surface{ID: "1", URL: "https://www.twitch.tv/a"})
	b.ReportSurface(Surface{ID: "2", URL: "https://example.com", Focused: true})

	def, err := b.DefaultSurface(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2", def.ID)

	s, err := b.Surface(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "https://www.twitch.tv/a", s.URL)

	_, err = b.Surface(ctx, "404")
	assert.ErrorIs(t, err, ErrSurfaceNotFound)
}

func TestBridgeNavigate(t *testing.T) {
	b := NewBridge()
	ctx := context.Background()
	b.ReportSurface(Surface{ID: "1", URL: "https://www.twitch.tv/a"})

	require.NoError(t, b.Navigate(ctx, "1", "https://www.twitch.tv/b"))
	s, err := b.Surface(ctx, "1")
	require.NoError(t, err)
	assert.True(t, s.Loading)
	assert.Equal(t, "https://www.twitch.tv/b", s.URL)

	url, ok := b.TakeNavigation("1")
	assert.True(t, ok)
	assert.Equal(t, "https://www.twitch.tv/b", url)
	_, ok = b.TakeNavigation("1")
	assert.False(t, ok)

	assert.ErrorIs(t, b.Navigate(ctx, "9", "x"), ErrSurfaceNotFound)
}

func TestBridgeEvents(t *testing.T) {
	b := NewBridge()
	b.ReportSurface(Surface{ID: "1", Focused: true})

	b.RemoveSurface("1")
	b.RemoveSurface("1") // already gone, no second event
	b.SetIdle(IdleLocked)
	b.SetIdle(IdleLocked)
	b.SetIdle(IdleActive)

	var got []Event
	for len(b.events) > 0 {
		got = append(got, <-b.Events())
	}
	assert.Equal(t, []Event{
		{Type: EventSurfaceRemoved, SurfaceID: "1"},
		{Type: EventIdleChanged, Idle: IdleLocked},
		{Type: EventIdleChanged, Idle: IdleActive},
	}, got)

	_, err := b.DefaultSurface(context.Background())
	assert.ErrorIs(t, err, ErrSurfaceNotFound)
	assert.True(t, IdleLocked.Paused())
	assert.False(t, IdleActive.Paused())
}

func TestBridgeQueues(t *testing.T) {
	b := NewBridge()
	ctx := context.Background()

	for i := 0; i < maxQueuedNotifies+5; i++ {
		require.NoError(t, b.Notify(ctx, Notification{Channel: "c"}))
	}
	assert.Len(t, b.DrainNotifications(), maxQueuedNotifies)
	assert.Empty(t, b.DrainNotifications())

	require.NoError(t, b.RequestConfirmation(ctx, Prompt{ID: "p1"}))
	prompts := b.DrainPrompts()
	require.Len(t, prompts, 1)
	assert.Equal(t, "p1", prompts[0].ID)
}
