package fallback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/metrics"
	"github.com/cuemby/warden/pkg/status"
	"github.com/cuemby/warden/pkg/types"
	"github.com/rs/zerolog"
)

// ShouldReroll decides whether to pick a new random channel from the
// configured category or leave the current fallback choice alone.
func ShouldReroll(force, active bool, currentChannelOnSurface, activeCategory, configuredCategory string) bool {
	if force {
		return true
	}
	if !strings.EqualFold(strings.TrimSpace(configuredCategory), strings.TrimSpace(activeCategory)) {
		return true
	}
	if active && currentChannelOnSurface != "" {
		return false
	}
	return true
}

// CategorySource picks a live channel from a category
type CategorySource interface {
	RandomLiveChannelInCategory(ctx context.Context, name string) (*status.ChannelRef, error)
}

// Redirector navigates the managed surface, honouring the current binding
type Redirector interface {
	Redirect(ctx context.Context, surfaceID, channel, mode string) (bool, error)
}

// RuntimeQueue accepts fallback runtime mutations
type RuntimeQueue interface {
	QueueRuntime(fn func(*types.FallbackRuntime))
}

// Request is everything Apply needs from the current cycle
type Request struct {
	Settings  types.Settings
	Runtime   types.FallbackRuntime
	SurfaceID string
	// OnService is whether the managed surface shows a page of the service
	OnService bool
	// SurfaceChannel is the channel page the surface shows, if any
	SurfaceChannel string
	// TargetLive is whether any tracked channel is live
	TargetLive bool
	Force      bool
}

// Outcome reports what Apply did
type Outcome struct {
	Rerolled   bool
	Redirected bool
	Channel    string
}

// Engine applies the reroll policy and records the fallback runtime
type Engine struct {
	source     CategorySource
	redirector Redirector
	runtime    RuntimeQueue
	mode       string
	now        func() time.Time
	logger     zerolog.Logger
}

// NewEngine creates a fallback engine. mode labels redirects in metrics.
func NewEngine(source CategorySource, redirector Redirector, runtime RuntimeQueue, mode string, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		source:     source,
		redirector: redirector,
		runtime:    runtime,
		mode:       mode,
		now:        now,
		logger:     log.WithComponent("fallback"),
	}
}

// Eligible reports whether fallback may run at all for req. A forced
// reroll does not need the surface to be on the service already.
func Eligible(req Request) bool {
	switch {
	case !req.Settings.AutoSwitchEnabled:
		return false
	case req.TargetLive:
		return false
	case strings.TrimSpace(req.Settings.FallbackCategory) == "":
		return false
	case req.SurfaceID == "":
		return false
	}
	return req.Force || req.OnService
}

// Apply rerolls when the policy asks for it. Lookup failures and empty
// categories leave the runtime untouched and do not redirect.
func (e *Engine) Apply(ctx context.Context, req Request) (Outcome, error) {
	if !Eligible(req) {
		return Outcome{}, nil
	}
	category := strings.TrimSpace(req.Settings.FallbackCategory)
	if !ShouldReroll(req.Force, req.Runtime.Active, req.SurfaceChannel, req.Runtime.Category, category) {
		return Outcome{}, nil
	}

	out := Outcome{Rerolled: true}
	ref, err := e.source.RandomLiveChannelInCategory(ctx, category)
	if err != nil {
		metrics.FallbackRerollsTotal.WithLabelValues("failed").Inc()
		return out, fmt.Errorf("pick fallback channel: %w", err)
	}
	if ref == nil {
		metrics.FallbackRerollsTotal.WithLabelValues("no_channel").Inc()
		e.logger.Info().Str("category", category).Msg("No live channel in fallback category")
		return out, nil
	}
	out.Channel = ref.Login

	redirected, err := e.redirector.Redirect(ctx, req.SurfaceID, ref.Login, e.mode)
	if err != nil {
		metrics.FallbackRerollsTotal.WithLabelValues("failed").Inc()
		return out, err
	}
	if !redirected {
		metrics.FallbackRerollsTotal.WithLabelValues("skipped").Inc()
		return out, nil
	}
	out.Redirected = true
	metrics.FallbackRerollsTotal.WithLabelValues("redirected").Inc()

	reason := types.FallbackReasonAuto
	if req.Force {
		reason = types.FallbackReasonManual
	}
	at := e.now()
	e.runtime.QueueRuntime(func(rt *types.FallbackRuntime) {
		rt.Active = true
		rt.Category = category
		rt.CurrentChannel = ref.Login
		rt.Reason = reason
		rt.UpdatedAt = at
	})

	l := log.WithChannel(ref.Login)
	l.Info().
		Str("category", category).
		Str("reason", string(reason)).
		Msg("Fallback channel selected")
	return out, nil
}

// Deactivate ends fallback. It is a no-op when fallback is not active.
func (e *Engine) Deactivate(rt types.FallbackRuntime) bool {
	if !rt.Active {
		return false
	}
	at := e.now()
	e.runtime.QueueRuntime(func(rt *types.FallbackRuntime) {
		rt.Active = false
		rt.Category = ""
		rt.CurrentChannel = ""
		rt.UpdatedAt = at
	})
	e.logger.Info().Msg("Fallback deactivated")
	return true
}
