package switcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/warden/pkg/host"
	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/metrics"
	"github.com/cuemby/warden/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is the outcome of evaluating the managed surface
type State string

const (
	StateDisabled         State = "disabled"
	StateNoManagedSurface State = "no_managed_surface"
	StateSurfaceLoading   State = "surface_loading"
	StateOffTopic         State = "managed_surface_off_topic"
	StateNoTarget         State = "no_target"
	StateOnTarget         State = "on_target"
	StateNeedsSwitch      State = "needs_switch"
	StateSwitched         State = "switched"
	StatePromptPending    State = "prompt_pending"
	StateSnoozed          State = "snoozed"
	StatePromptExpired    State = "prompt_expired"
)

// Redirect modes recorded in metrics
const (
	ModeRedirect       = "redirect"
	ModePromptAccepted = "prompt_accepted"
	ModeFallback       = "fallback"
)

// ErrUnknownPrompt is returned when answering a prompt that is not pending
var ErrUnknownPrompt = errors.New("prompt not pending")

// SettingsStore is the settings half of the state store
type SettingsStore interface {
	Settings() (types.Settings, error)
	UpdateSettings(fn func(*types.Settings) error) (types.Settings, error)
}

// AnalyticsQueue accepts analytics mutations
type AnalyticsQueue interface {
	QueueAnalytics(fn func(*types.AnalyticsState))
}

// Decision describes what the executor saw and did
type Decision struct {
	State     State
	SurfaceID string
	Surface   host.Surface
	Page      host.Page
	Target    string
	PromptID  string
}

// FallbackEligible reports whether the managed surface is valid, settled,
// on the tracked service and no tracked channel is live
func (d Decision) FallbackEligible() bool {
	return d.State == StateNoTarget
}

// Options configures an Executor
type Options struct {
	Store     SettingsStore
	Surfaces  host.SurfaceController
	Prompter  host.Prompter
	Analytics AnalyticsQueue
	Matcher   *host.PageMatcher
	Cooldown  time.Duration
	Now       func() time.Time
}

type pendingPrompt struct {
	prompt host.Prompt
	key    string
}

// Executor enforces the single managed surface rule: it only ever queries
// or redirects the surface bound in settings.
type Executor struct {
	store     SettingsStore
	surfaces  host.SurfaceController
	prompter  host.Prompter
	analytics AnalyticsQueue
	matcher   *host.PageMatcher
	cooldown  time.Duration
	now       func() time.Time
	logger    zerolog.Logger

	mu      sync.Mutex
	pending map[string]pendingPrompt // by prompt id
	byKey   map[string]string        // situation key -> prompt id
	snoozed map[string]time.Time     // situation key -> until
}

// NewExecutor creates an executor
func NewExecutor(opts Options) *Executor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 10 * time.Minute
	}
	return &Executor{
		store:     opts.Store,
		surfaces:  opts.Surfaces,
		prompter:  opts.Prompter,
		analytics: opts.Analytics,
		matcher:   opts.Matcher,
		cooldown:  opts.Cooldown,
		now:       opts.Now,
		logger:    log.WithComponent("switcher"),
		pending:   make(map[string]pendingPrompt),
		byKey:     make(map[string]string),
		snoozed:   make(map[string]time.Time),
	}
}

func situationKey(surfaceID, channel string) string {
	return surfaceID + "|" + strings.ToLower(channel)
}

// Evaluate inspects the managed surface against target and redirects or
// prompts when needed. target may be nil.
func (e *Executor) Evaluate(ctx context.Context, settings types.Settings, target *types.ChannelEntry) (Decision, error) {
	if !settings.AutoSwitchEnabled {
		return Decision{State: StateDisabled}, nil
	}

	id := settings.ManagedSurfaceID
	if id == "" {
		adopted, err := e.adoptDefault(ctx)
		if err != nil || adopted == "" {
			return Decision{State: StateNoManagedSurface}, err
		}
		id = adopted
	}

	surface, err := e.surfaces.Surface(ctx, id)
	if errors.Is(err, host.ErrSurfaceNotFound) {
		if err := e.forceDisable(id, "managed surface no longer exists"); err != nil {
			return Decision{State: StateNoManagedSurface}, err
		}
		return Decision{State: StateNoManagedSurface}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("query managed surface: %w", err)
	}

	d := Decision{SurfaceID: id, Surface: surface}
	if surface.Loading {
		d.State = StateSurfaceLoading
		return d, nil
	}

	d.Page = e.matcher.Classify(surface.URL)
	if target == nil {
		d.State = StateNoTarget
		if !d.Page.OnService {
			d.State = StateOffTopic
		}
		return d, nil
	}

	d.Target = target.Name
	if e.matcher.IsChannel(surface.URL, target.Name) {
		d.State = StateOnTarget
		return d, nil
	}

	if settings.PromptBeforeSwitch && e.prompter != nil {
		return e.prompt(ctx, d)
	}

	redirected, err := e.Redirect(ctx, id, target.Name, ModeRedirect)
	if err != nil {
		return d, err
	}
	d.State = StateNeedsSwitch
	if redirected {
		d.State = StateSwitched
	}
	return d, nil
}

// adoptDefault binds the host's default surface when auto-switch is enabled
// without one. It returns "" when there is nothing to adopt.
func (e *Executor) adoptDefault(ctx context.Context) (string, error) {
	def, err := e.surfaces.DefaultSurface(ctx)
	if errors.Is(err, host.ErrSurfaceNotFound) {
		return "", e.forceDisable("", "no surface available to manage")
	}
	if err != nil {
		return "", fmt.Errorf("query default surface: %w", err)
	}

	updated, err := e.store.UpdateSettings(func(s *types.Settings) error {
		if s.AutoSwitchEnabled && s.ManagedSurfaceID == "" {
			s.ManagedSurfaceID = def.ID
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("persist managed surface: %w", err)
	}
	if !updated.AutoSwitchEnabled {
		return "", nil
	}

	l := log.WithSurfaceID(updated.ManagedSurfaceID)
	l.Info().Msg("Adopted default surface as managed surface")
	return updated.ManagedSurfaceID, nil
}

// forceDisable clears auto-switch and its binding together, but only if the
// binding is still the one observed.
func (e *Executor) forceDisable(observedID, reason string) error {
	_, err := e.store.UpdateSettings(func(s *types.Settings) error {
		if s.ManagedSurfaceID == observedID {
			s.DisableAutoSwitch()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("disable auto-switch: %w", err)
	}
	e.dropPromptsFor(observedID)
	e.logger.Warn().Str("surface_id", observedID).Str("reason", reason).Msg("Auto-switch disabled")
	return nil
}

// Redirect points the managed surface at channel. It re-reads the latest
// settings first and does nothing if the binding is no longer surfaceID.
func (e *Executor) Redirect(ctx context.Context, surfaceID, channel, mode string) (bool, error) {
	latest, err := e.store.Settings()
	if err != nil {
		return false, fmt.Errorf("read settings: %w", err)
	}
	if !latest.AutoSwitchEnabled || latest.ManagedSurfaceID != surfaceID {
		e.logger.Info().
			Str("surface_id", surfaceID).
			Msg("Managed surface binding changed, skipping redirect")
		return false, nil
	}

	url := e.matcher.ChannelURL(channel)
	if err := e.surfaces.Navigate(ctx, surfaceID, url); err != nil {
		if errors.Is(err, host.ErrSurfaceNotFound) {
			return false, e.forceDisable(surfaceID, "managed surface closed before redirect")
		}
		return false, fmt.Errorf("navigate managed surface: %w", err)
	}

	metrics.SwitchesTotal.WithLabelValues(mode).Inc()
	if latest.SupporterMode && e.analytics != nil {
		at := e.now()
		e.analytics.QueueAnalytics(func(a *types.AnalyticsState) {
			a.RecordSwitch(channel, at)
		})
	}

	l := log.WithChannel(channel)
	l.Info().Str("surface_id", surfaceID).Str("mode", mode).Msg("Redirected managed surface")
	return true, nil
}

func (e *Executor) prompt(ctx context.Context, d Decision) (Decision, error) {
	now := e.now()
	key := situationKey(d.SurfaceID, d.Target)

	e.mu.Lock()
	if until, ok := e.snoozed[key]; ok {
		if now.Before(until) {
			e.mu.Unlock()
			d.State = StateSnoozed
			return d, nil
		}
		delete(e.snoozed, key)
	}
	if pid, ok := e.byKey[key]; ok {
		p := e.pending[pid]
		if now.Sub(p.prompt.CreatedAt) < e.cooldown {
			e.mu.Unlock()
			d.State = StatePromptPending
			d.PromptID = pid
			return d, nil
		}
		// unanswered for a whole cooldown, ask again
		delete(e.pending, pid)
		delete(e.byKey, key)
	}
	e.mu.Unlock()

	p := host.Prompt{
		ID:        uuid.New().String(),
		SurfaceID: d.SurfaceID,
		Channel:   d.Target,
		Message:   fmt.Sprintf("%s is live. Switch the managed tab?", d.Target),
		CreatedAt: now,
	}
	if err := e.prompter.RequestConfirmation(ctx, p); err != nil {
		return d, fmt.Errorf("request confirmation: %w", err)
	}

	e.mu.Lock()
	e.pending[p.ID] = pendingPrompt{prompt: p, key: key}
	e.byKey[key] = p.ID
	e.mu.Unlock()

	d.State = StatePromptPending
	d.PromptID = p.ID
	return d, nil
}

// Answer resolves a pending prompt. currentTarget is the target as of the
// latest cycle; a prompt for a different channel is dropped unanswered.
func (e *Executor) Answer(ctx context.Context, promptID string, accepted bool, currentTarget string) (Decision, error) {
	e.mu.Lock()
	p, ok := e.pending[promptID]
	if ok {
		delete(e.pending, promptID)
		delete(e.byKey, p.key)
	}
	e.mu.Unlock()
	if !ok {
		return Decision{}, fmt.Errorf("%w: %s", ErrUnknownPrompt, promptID)
	}

	d := Decision{SurfaceID: p.prompt.SurfaceID, Target: p.prompt.Channel, PromptID: promptID}

	if !accepted {
		e.mu.Lock()
		e.snoozed[p.key] = e.now().Add(e.cooldown)
		e.mu.Unlock()
		d.State = StateSnoozed
		return d, nil
	}

	if !strings.EqualFold(currentTarget, p.prompt.Channel) {
		d.State = StatePromptExpired
		return d, nil
	}

	redirected, err := e.Redirect(ctx, p.prompt.SurfaceID, p.prompt.Channel, ModePromptAccepted)
	if err != nil {
		return d, err
	}
	d.State = StateNeedsSwitch
	if redirected {
		d.State = StateSwitched
	}
	return d, nil
}

// SurfaceRemoved clears auto-switch when the removed surface is the managed
// one. It reports whether the binding was cleared.
func (e *Executor) SurfaceRemoved(surfaceID string) (bool, error) {
	if surfaceID == "" {
		return false, nil
	}
	cleared := false
	_, err := e.store.UpdateSettings(func(s *types.Settings) error {
		if s.ManagedSurfaceID == surfaceID {
			s.DisableAutoSwitch()
			cleared = true
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("clear managed surface: %w", err)
	}
	e.dropPromptsFor(surfaceID)
	if cleared {
		l := log.WithSurfaceID(surfaceID)
		l.Info().Msg("Managed surface removed, auto-switch disabled")
	}
	return cleared, nil
}

func (e *Executor) dropPromptsFor(surfaceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, p := range e.pending {
		if p.prompt.SurfaceID == surfaceID {
			delete(e.pending, id)
			delete(e.byKey, p.key)
		}
	}
}

// PendingPrompts returns the number of unanswered prompts
func (e *Executor) PendingPrompts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}
