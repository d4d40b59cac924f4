package host

import (
	"context"
	"sync"

	"github.com/cuemby/warden/pkg/log"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
)

const (
	eventBuffer       = 64
	maxQueuedNotifies = 100
	maxQueuedPrompts  = 16
)

// Bridge implements the host interfaces for a companion browser extension.
// The companion reports surfaces and activity over the control API and
// drains navigation, notification and prompt queues from it.
type Bridge struct {
	surfaces    *xsync.MapOf[string, Surface]
	navigations *xsync.MapOf[string, string]
	events      chan Event
	logger      zerolog.Logger

	mu            sync.Mutex
	focused       string
	idle          IdleState
	notifications []Notification
	prompts       []Prompt
}

// NewBridge creates an empty bridge
func NewBridge() *Bridge {
	return &Bridge{
		surfaces:    xsync.NewMapOf[string, Surface](),
		navigations: xsync.NewMapOf[string, string](),
		events:      make(chan Event, eventBuffer),
		logger:      log.WithComponent("host-bridge"),
		idle:        IdleActive,
	}
}

// Events delivers surface removals and idle changes to the engine loop
func (b *Bridge) Events() <-chan Event {
	return b.events
}

func (b *Bridge) emit(ev Event) {
	select {
	case b.events <- ev:
	default:
		b.logger.Warn().Str("type", string(ev.Type)).Msg("Host event dropped, engine not keeping up")
	}
}

// ReportSurface records the current state of a surface
func (b *Bridge) ReportSurface(s Surface) {
	b.surfaces.Store(s.ID, s)
	if s.Focused {
		b.mu.Lock()
		b.focused = s.ID
		b.mu.Unlock()
	}
}

// RemoveSurface forgets a closed surface and tells the engine
func (b *Bridge) RemoveSurface(id string) {
	if _, existed := b.surfaces.LoadAndDelete(id); !existed {
		return
	}
	b.navigations.Delete(id)

	b.mu.Lock()
	if b.focused == id {
		b.focused = ""
	}
	b.mu.Unlock()

	b.emit(Event{Type: EventSurfaceRemoved, SurfaceID: id})
}

// SetIdle records the application activity state
func (b *Bridge) SetIdle(state IdleState) {
	b.mu.Lock()
	changed := b.idle != state
	b.idle = state
	b.mu.Unlock()

	if changed {
		b.emit(Event{Type: EventIdleChanged, Idle: state})
	}
}

// Idle returns the last reported activity state
func (b *Bridge) Idle() IdleState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.idle
}

// TakeNavigation returns and clears the pending navigation for a surface
func (b *Bridge) TakeNavigation(id string) (string, bool) {
	return b.navigations.LoadAndDelete(id)
}

// DrainNotifications returns and clears queued notifications
func (b *Bridge) DrainNotifications() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.notifications
	b.notifications = nil
	return out
}

// DrainPrompts returns and clears queued prompts
func (b *Bridge) DrainPrompts() []Prompt {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.prompts
	b.prompts = nil
	return out
}

// Surface implements SurfaceController
func (b *Bridge) Surface(_ context.Context, id string) (Surface, error) {
	s, ok := b.surfaces.Load(id)
	if !ok {
		return Surface{}, ErrSurfaceNotFound
	}
	return s, nil
}

// DefaultSurface implements SurfaceController
func (b *Bridge) DefaultSurface(_ context.Context) (Surface, error) {
	b.mu.Lock()
	focused := b.focused
	b.mu.Unlock()

	if focused == "" {
		return Surface{}, ErrSurfaceNotFound
	}
	s, ok := b.surfaces.Load(focused)
	if !ok {
		return Surface{}, ErrSurfaceNotFound
	}
	return s, nil
}

// Navigate implements SurfaceController. The surface is marked loading with
// the new URL until the companion reports it again.
func (b *Bridge) Navigate(_ context.Context, id, url string) error {
	s, ok := b.surfaces.Load(id)
	if !ok {
		return ErrSurfaceNotFound
	}
	s.URL = url
	s.Loading = true
	b.surfaces.Store(id, s)
	b.navigations.Store(id, url)
	return nil
}

// Notify implements NotificationSink
func (b *Bridge) Notify(_ context.Context, n Notification) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.notifications) >= maxQueuedNotifies {
		b.notifications = b.notifications[1:]
	}
	b.notifications = append(b.notifications, n)
	return nil
}

// RequestConfirmation implements Prompter
func (b *Bridge) RequestConfirmation(_ context.Context, p Prompt) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.prompts) >= maxQueuedPrompts {
		b.prompts = b.prompts[1:]
	}
	b.prompts = append(b.prompts, p)
	return nil
}
