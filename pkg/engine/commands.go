package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/warden/pkg/events"
	"github.com/cuemby/warden/pkg/fallback"
	"github.com/cuemby/warden/pkg/host"
	"github.com/cuemby/warden/pkg/metrics"
	"github.com/cuemby/warden/pkg/reconciler"
	"github.com/cuemby/warden/pkg/status"
	"github.com/cuemby/warden/pkg/types"
)

type commandKind int

const (
	cmdForcePoll commandKind = iota
	cmdForceReroll
	cmdManagedSurface
	cmdSettingsChanged
	cmdSetCredentials
	cmdSetIdle
	cmdSurfaceRemoved
	cmdAnswerPrompt
)

func (k commandKind) String() string {
	switch k {
	case cmdForcePoll:
		return "force_poll"
	case cmdForceReroll:
		return "force_reroll"
	case cmdManagedSurface:
		return "managed_surface"
	case cmdSettingsChanged:
		return "settings_changed"
	case cmdSetCredentials:
		return "set_credentials"
	case cmdSetIdle:
		return "set_idle"
	case cmdSurfaceRemoved:
		return "surface_removed"
	case cmdAnswerPrompt:
		return "answer_prompt"
	}
	return "unknown"
}

type command struct {
	kind     commandKind
	creds    status.Credentials
	idle     bool
	id       string
	accepted bool
	reply    chan reply
}

type reply struct {
	ok    bool
	value string
	err   error
}

// send queues cmd and waits for the loop to answer it. Commands sent before
// Run has started wait in the queue.
func (e *Engine) send(ctx context.Context, cmd command) (reply, error) {
	cmd.reply = make(chan reply, 1)
	select {
	case e.commands <- cmd:
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
	select {
	case r := <-cmd.reply:
		return r, r.err
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
}

// ForcePollNow runs an out-of-band cycle. It reports false when the minimum
// spacing or an in-flight cycle refused it.
func (e *Engine) ForcePollNow(ctx context.Context) (bool, error) {
	r, err := e.send(ctx, command{kind: cmdForcePoll})
	return r.ok, err
}

// ForceFallbackReroll picks a new fallback channel regardless of the current
// fallback state and reports whether the managed surface was redirected.
func (e *Engine) ForceFallbackReroll(ctx context.Context) (bool, error) {
	r, err := e.send(ctx, command{kind: cmdForceReroll})
	return r.ok, err
}

// ManagedSurfaceID returns the bound surface id, "" when none
func (e *Engine) ManagedSurfaceID(ctx context.Context) (string, error) {
	r, err := e.send(ctx, command{kind: cmdManagedSurface})
	return r.value, err
}

// SettingsChanged propagates a settings record change, whatever wrote it
func (e *Engine) SettingsChanged(ctx context.Context) error {
	_, err := e.send(ctx, command{kind: cmdSettingsChanged})
	return err
}

// SetCredentials swaps the upstream credentials and restarts polling
func (e *Engine) SetCredentials(ctx context.Context, creds status.Credentials) error {
	_, err := e.send(ctx, command{kind: cmdSetCredentials, creds: creds})
	return err
}

// SetIdle pauses (true) or resumes (false) polling
func (e *Engine) SetIdle(ctx context.Context, idle bool) error {
	_, err := e.send(ctx, command{kind: cmdSetIdle, idle: idle})
	return err
}

// SurfaceRemoved reports a closed surface
func (e *Engine) SurfaceRemoved(ctx context.Context, id string) error {
	_, err := e.send(ctx, command{kind: cmdSurfaceRemoved, id: id})
	return err
}

// AnswerPrompt resolves a confirmation prompt and returns the resulting
// switch state
func (e *Engine) AnswerPrompt(ctx context.Context, id string, accepted bool) (string, error) {
	r, err := e.send(ctx, command{kind: cmdAnswerPrompt, id: id, accepted: accepted})
	return r.value, err
}

func (e *Engine) handle(ctx context.Context, cmd command) {
	var r reply

	switch cmd.kind {
	case cmdForcePoll:
		if !e.sched.TryForce(e.now()) {
			metrics.PollTriggersSkipped.WithLabelValues("force").Inc()
			e.logger.Debug().Msg("Forced poll refused")
			break
		}
		r.ok = true
		r.err = e.runCycle(ctx)

	case cmdForceReroll:
		r.ok, r.err = e.forceReroll(ctx)

	case cmdManagedSurface:
		settings, err := e.store.Settings()
		r.value, r.err = settings.ManagedSurfaceID, err

	case cmdSettingsChanged:
		r.err = e.propagateSettings()

	case cmdSetCredentials:
		e.creds = cmd.creds
		r.err = e.propagateSettings()

	case cmdSetIdle:
		e.sched.SetIdle(e.now(), cmd.idle)
		e.publishSummary()

	case cmdSurfaceRemoved:
		r.err = e.surfaceRemoved(cmd.id)

	case cmdAnswerPrompt:
		target := reconciler.TargetOf(e.latestChannels())
		name := ""
		if target != nil {
			name = target.Name
		}
		d, err := e.switcher.Answer(ctx, cmd.id, cmd.accepted, name)
		r.value, r.err = string(d.State), err
		if err == nil {
			e.afterDecision(d)
			e.publishSummary()
		}
	}

	if r.err != nil {
		e.logger.Warn().Err(r.err).Str("command", cmd.kind.String()).Msg("Command failed")
	}
	cmd.reply <- r
}

func (e *Engine) handleHostEvent(ev host.Event) {
	switch ev.Type {
	case host.EventSurfaceRemoved:
		if err := e.surfaceRemoved(ev.SurfaceID); err != nil {
			e.logger.Warn().Err(err).Msg("Failed to handle surface removal")
		}
	case host.EventIdleChanged:
		e.sched.SetIdle(e.now(), ev.Idle.Paused())
		e.updateSchedulerHealth()
		e.publishSummary()
	}
}

func (e *Engine) surfaceRemoved(id string) error {
	cleared, err := e.switcher.SurfaceRemoved(id)
	if err != nil {
		return err
	}
	if !cleared {
		return nil
	}
	e.publish(&events.Event{
		Type:     events.EventAutoSwitchDisabled,
		Message:  "managed surface closed",
		Metadata: map[string]string{"surface_id": id},
	})
	return e.propagateSettings()
}

// propagateSettings applies the latest settings record: credentials, the
// fallback runtime, the scheduler and the published summary.
func (e *Engine) propagateSettings() error {
	now := e.now()
	settings, err := e.store.Settings()
	if err != nil {
		metrics.UpdateComponent(metrics.ComponentStore, false, err.Error())
		return fmt.Errorf("read settings: %w", err)
	}
	prev := e.settings
	e.settings = settings

	credsChanged := e.creds != e.appliedCreds
	if credsChanged {
		e.status.SetCredentials(e.creds)
		e.appliedCreds = e.creds
		e.logger.Info().Bool("configured", e.status.Configured()).Msg("Upstream credentials updated")
	}

	if !settings.AutoSwitchEnabled {
		if err := e.clearFallback(now); err != nil {
			return err
		}
	}

	e.sched.Reconfigure(now, settings.PollInterval(), e.status.Configured(), credsChanged)
	e.updateSchedulerHealth()

	if prev != settings {
		e.publish(&events.Event{Type: events.EventSettingsChanged})
	}
	e.publishSummary()
	return nil
}

// clearFallback ends fallback immediately rather than through the debounced
// queue, so pending queued mutations are flushed first.
func (e *Engine) clearFallback(now time.Time) error {
	if err := e.queue.Flush(); err != nil {
		return fmt.Errorf("flush pending writes: %w", err)
	}
	ended := false
	_, err := e.store.UpdateRuntime(func(rt *types.FallbackRuntime) error {
		if rt.Active {
			ended = true
			rt.Active = false
			rt.Category = ""
			rt.CurrentChannel = ""
			rt.UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear fallback runtime: %w", err)
	}
	if ended {
		e.publish(&events.Event{Type: events.EventFallbackEnded, Message: "auto-switch disabled"})
	}
	return nil
}

func (e *Engine) forceReroll(ctx context.Context) (bool, error) {
	settings, err := e.store.Settings()
	if err != nil {
		return false, fmt.Errorf("read settings: %w", err)
	}
	id := settings.ManagedSurfaceID
	if !settings.AutoSwitchEnabled || id == "" {
		return false, nil
	}

	surface, err := e.surfaces.Surface(ctx, id)
	if errors.Is(err, host.ErrSurfaceNotFound) {
		return false, e.surfaceRemoved(id)
	}
	if err != nil {
		return false, fmt.Errorf("query managed surface: %w", err)
	}
	if surface.Loading {
		e.logger.Debug().Str("surface_id", id).Msg("Reroll skipped, surface still loading")
		return false, nil
	}

	rt, err := e.queue.Runtime()
	if err != nil {
		return false, fmt.Errorf("read fallback runtime: %w", err)
	}

	page := e.matcher.Classify(surface.URL)
	out, err := e.fallback.Apply(ctx, fallback.Request{
		Settings:       settings,
		Runtime:        rt,
		SurfaceID:      id,
		OnService:      page.OnService,
		SurfaceChannel: page.Channel,
		TargetLive:     reconciler.TargetOf(e.latestChannels()) != nil,
		Force:          true,
	})
	if out.Redirected {
		e.publish(&events.Event{
			Type:     events.EventFallbackSelected,
			Message:  out.Channel,
			Metadata: map[string]string{"channel": out.Channel, "reason": string(types.FallbackReasonManual)},
		})
		e.publishSummary()
	}
	return out.Redirected, err
}
