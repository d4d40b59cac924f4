package host

import (
	"context"
	"errors"
	"time"
)

// ErrSurfaceNotFound is returned when a surface id does not exist
var ErrSurfaceNotFound = errors.New("surface not found")

// Surface is one external viewing context, e.g. a browser tab
type Surface struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Loading bool   `json:"loading"`
	Focused bool   `json:"focused,omitempty"`
}

// SurfaceController queries and redirects surfaces by opaque id
type SurfaceController interface {
	// Surface returns the surface with id or ErrSurfaceNotFound
	Surface(ctx context.Context, id string) (Surface, error)
	// DefaultSurface returns the surface the user is focused on, used only to
	// adopt a binding when auto-switch is enabled without one
	DefaultSurface(ctx context.Context) (Surface, error)
	// Navigate points surface id at url
	Navigate(ctx context.Context, id, url string) error
}

// Notification is a desktop notification request
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Channel   string    `json:"channel"`
	URL       string    `json:"url,omitempty"`
	IconURL   string    `json:"iconUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NotificationSink shows desktop notifications. Delivery is best effort.
type NotificationSink interface {
	Notify(ctx context.Context, n Notification) error
}

// Prompt asks the user to confirm a redirect of the managed surface
type Prompt struct {
	ID        string    `json:"id"`
	SurfaceID string    `json:"surfaceId"`
	Channel   string    `json:"channel"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Prompter raises confirmation prompts. It must not block on the answer;
// answers come back to the engine as AnswerPrompt commands.
type Prompter interface {
	RequestConfirmation(ctx context.Context, p Prompt) error
}

// IdleState is the whole-application activity state
type IdleState string

const (
	IdleActive IdleState = "active"
	IdleIdle   IdleState = "idle"
	IdleLocked IdleState = "locked"
)

// Paused reports whether polling should pause in this state
func (s IdleState) Paused() bool {
	return s == IdleIdle || s == IdleLocked
}

// EventType identifies a host event
type EventType string

const (
	EventSurfaceRemoved EventType = "surface_removed"
	EventIdleChanged    EventType = "idle_changed"
)

// Event is pushed by the host side to the engine loop
type Event struct {
	Type      EventType `json:"type"`
	SurfaceID string    `json:"surfaceId,omitempty"`
	Idle      IdleState `json:"idle,omitempty"`
}
