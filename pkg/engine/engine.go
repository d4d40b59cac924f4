package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cuemby/warden/pkg/config"
	"github.com/cuemby/warden/pkg/events"
	"github.com/cuemby/warden/pkg/fallback"
	"github.com/cuemby/warden/pkg/host"
	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/metrics"
	"github.com/cuemby/warden/pkg/scheduler"
	"github.com/cuemby/warden/pkg/status"
	"github.com/cuemby/warden/pkg/storage"
	"github.com/cuemby/warden/pkg/switcher"
	"github.com/cuemby/warden/pkg/types"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"
)

const commandBuffer = 64

// StatusClient is the upstream lookup surface the engine needs
type StatusClient interface {
	CheckStatuses(ctx context.Context, names []string) (map[string]*status.LiveInfo, error)
	RandomLiveChannelInCategory(ctx context.Context, name string) (*status.ChannelRef, error)
	SetCredentials(creds status.Credentials)
	Configured() bool
}

// Options wires an Engine. Notifier, Prompter, HostEvents and Broker are
// optional.
type Options struct {
	Store       storage.Store
	Queue       *storage.WriteQueue
	Status      StatusClient
	Credentials status.Credentials
	Surfaces    host.SurfaceController
	Notifier    host.NotificationSink
	Prompter    host.Prompter
	HostEvents  <-chan host.Event
	Matcher     *host.PageMatcher
	Broker      *events.Broker
	Config      config.EngineConfig
	Now         func() time.Time
}

// Engine owns one poll loop. All state below the loop marker is touched only
// from the goroutine running Run.
type Engine struct {
	store    storage.Store
	queue    *storage.WriteQueue
	status   StatusClient
	surfaces host.SurfaceController
	notifier host.NotificationSink
	matcher  *host.PageMatcher
	broker   *events.Broker

	sched    *scheduler.Scheduler
	switcher *switcher.Executor
	fallback *fallback.Engine
	pool     *ants.Pool

	hostEvents <-chan host.Event
	commands   chan command
	ready      chan struct{}
	now        func() time.Time
	logger     zerolog.Logger

	summary atomic.Pointer[types.Summary]

	// loop state
	creds        status.Credentials
	appliedCreds status.Credentials
	settings     types.Settings
	lastCycleAt  time.Time
	lastErr      string
	lastPromptID string
	lastViewed   string
	lastViewedAt time.Time
}

// New builds an engine. Commands may be sent as soon as New returns; they
// are served once Run has finished its startup sequence.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil || opts.Queue == nil || opts.Status == nil || opts.Surfaces == nil || opts.Matcher == nil {
		return nil, fmt.Errorf("engine: store, queue, status client, surfaces and matcher are required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	workers := opts.Config.NotificationWorkers
	if workers <= 0 {
		workers = 4
	}

	pool, err := ants.NewPool(workers, ants.WithPreAlloc(true), ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create notification pool: %w", err)
	}

	exec := switcher.NewExecutor(switcher.Options{
		Store:     opts.Store,
		Surfaces:  opts.Surfaces,
		Prompter:  opts.Prompter,
		Analytics: opts.Queue,
		Matcher:   opts.Matcher,
		Cooldown:  opts.Config.PromptCooldown,
		Now:       opts.Now,
	})

	e := &Engine{
		store:    opts.Store,
		queue:    opts.Queue,
		status:   opts.Status,
		surfaces: opts.Surfaces,
		notifier: opts.Notifier,
		matcher:  opts.Matcher,
		broker:   opts.Broker,
		sched: scheduler.NewScheduler(scheduler.Config{
			MinSpacing: opts.Config.MinSpacing,
			RetryDelay: opts.Config.RetryDelay,
		}),
		switcher:   exec,
		fallback:   fallback.NewEngine(opts.Status, exec, opts.Queue, switcher.ModeFallback, opts.Now),
		pool:       pool,
		hostEvents: opts.HostEvents,
		commands:   make(chan command, commandBuffer),
		ready:      make(chan struct{}),
		now:        opts.Now,
		logger:     log.WithComponent("engine"),
		creds:      opts.Credentials,
		settings:   types.DefaultSettings(),
	}

	initial := types.Summary{
		SchedulerState:  string(scheduler.StateStopped),
		SchedulerReason: string(scheduler.ReasonDisabled),
		Badge:           types.BadgeText(false, false),
	}
	e.summary.Store(&initial)

	metrics.RegisterComponent(metrics.ComponentEngine, false, "starting")
	return e, nil
}

// Ready is closed once the startup sequence has run
func (e *Engine) Ready() <-chan struct{} {
	return e.ready
}

// Summary returns the last published status summary
func (e *Engine) Summary() types.Summary {
	return *e.summary.Load()
}

// SchedulerStatus returns a snapshot of the poll scheduler
func (e *Engine) SchedulerStatus() scheduler.Status {
	return e.sched.Status()
}

// Run performs startup and serves the event loop until ctx is cancelled
func (e *Engine) Run(ctx context.Context) error {
	e.startup()
	close(e.ready)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		e.armTimer(timer)

		select {
		case <-ctx.Done():
			e.shutdown()
			return nil

		case <-timer.C:
			now := e.now()
			if !e.sched.Due(now) {
				metrics.PollTriggersSkipped.WithLabelValues("timer").Inc()
				continue
			}
			_ = e.runCycle(ctx)

		case cmd := <-e.commands:
			e.handle(ctx, cmd)

		case ev, ok := <-e.hostEvents:
			if !ok {
				e.hostEvents = nil
				continue
			}
			e.handleHostEvent(ev)
		}
	}
}

func (e *Engine) armTimer(timer *time.Timer) {
	at, ok := e.sched.NextWake()
	if !ok {
		timer.Stop()
		return
	}
	timer.Reset(max(at.Sub(e.now()), 0))
}

func (e *Engine) startup() {
	now := e.now()

	settings, err := e.store.Settings()
	if err != nil {
		metrics.UpdateComponent(metrics.ComponentStore, false, err.Error())
		e.logger.Error().Err(err).Msg("Failed to load settings, using defaults")
		settings = types.DefaultSettings()
	}
	e.settings = settings

	e.status.SetCredentials(e.creds)
	e.appliedCreds = e.creds

	e.sched.Start(now, settings.PollInterval(), e.status.Configured())
	metrics.UpdateComponent(metrics.ComponentEngine, true, "running")
	e.updateSchedulerHealth()

	e.logger.Info().
		Dur("interval", settings.PollInterval()).
		Bool("auto_switch", settings.AutoSwitchEnabled).
		Bool("configured", e.status.Configured()).
		Msg("Engine started")
	e.publishSummary()
}

func (e *Engine) shutdown() {
	e.sched.Stop(e.now())
	if err := e.queue.Flush(); err != nil {
		e.logger.Error().Err(err).Msg("Failed to flush pending writes")
	}
	e.pool.Release()
	metrics.UpdateComponent(metrics.ComponentEngine, false, "stopped")
	e.logger.Info().Msg("Engine stopped")
}

func (e *Engine) updateSchedulerHealth() {
	st := e.sched.Status()
	switch st.Reason {
	case scheduler.ReasonAuthFailed, scheduler.ReasonUnconfigured:
		metrics.UpdateComponent(metrics.ComponentScheduler, false, string(st.Reason))
	default:
		metrics.UpdateComponent(metrics.ComponentScheduler, true, string(st.State))
	}
}

func (e *Engine) publish(ev *events.Event) {
	if e.broker != nil {
		e.broker.Publish(ev)
	}
}
