package scheduler

import (
	"errors"
	"sync"
	"time"

	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/metrics"
	"github.com/cuemby/warden/pkg/status"
	"github.com/rs/zerolog"
)

// State is the scheduler's coarse state
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

// Reason explains why the scheduler is stopped
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonDisabled     Reason = "disabled"
	ReasonIdle         Reason = "idle"
	ReasonUnconfigured Reason = "unconfigured"
	ReasonAuthFailed   Reason = "auth_failed"
	ReasonBackoff      Reason = "backoff"
)

// Config holds the fixed timing rules
type Config struct {
	// MinSpacing is the floor between any two cycle starts
	MinSpacing time.Duration
	// RetryDelay is the deferred retry after a rate-limit or transient failure
	RetryDelay time.Duration
}

// Status is a snapshot of the scheduler for reporting
type Status struct {
	State     State         `json:"state"`
	Reason    Reason        `json:"reason,omitempty"`
	Interval  time.Duration `json:"interval"`
	NextDue   time.Time     `json:"nextDue,omitempty"`
	RetryAt   time.Time     `json:"retryAt,omitempty"`
	LastStart time.Time     `json:"lastStart,omitempty"`
	InFlight  bool          `json:"inFlight"`
	LastError string        `json:"lastError,omitempty"`
}

// Scheduler decides when poll cycles run. It owns no goroutines or timers:
// the engine loop asks Due and NextWake and reports cycle boundaries.
type Scheduler struct {
	mu     sync.Mutex
	cfg    Config
	logger zerolog.Logger

	interval   time.Duration
	enabled    bool
	configured bool
	idle       bool
	authFailed bool

	state   State
	reason  Reason
	nextDue time.Time
	retryAt time.Time

	lastStart time.Time
	inFlight  bool
	lastErr   string
}

// NewScheduler creates a stopped scheduler
func NewScheduler(cfg Config) *Scheduler {
	if cfg.MinSpacing <= 0 {
		cfg.MinSpacing = 5 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 30 * time.Second
	}
	return &Scheduler{
		cfg:    cfg,
		logger: log.WithComponent("scheduler"),
		state:  StateStopped,
		reason: ReasonDisabled,
	}
}

// Start enables scheduling with the given interval and credential state
func (s *Scheduler) Start(now time.Time, interval time.Duration, configured bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = true
	s.interval = interval
	s.configured = configured
	s.evaluateLocked(now)
}

// Stop disables scheduling until Start is called again
func (s *Scheduler) Stop(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = false
	s.evaluateLocked(now)
}

// SetIdle applies a host idle/locked (true) or active (false) signal. A
// pending retry survives idle, so activity before retryAt waits in backoff.
func (s *Scheduler) SetIdle(now time.Time, idle bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idle == idle {
		return
	}
	s.idle = idle
	s.evaluateLocked(now)
}

// Reconfigure rebuilds the schedule after a settings or credential change.
// Only new credentials (or a change in whether any are configured) clear an
// auth failure and a pending retry. A new interval restarts a running
// schedule with a cycle.
func (s *Scheduler) Reconfigure(now time.Time, interval time.Duration, configured, credsChanged bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	credsChanged = credsChanged || configured != s.configured
	changed := credsChanged || interval != s.interval
	s.interval = interval
	s.configured = configured
	if credsChanged {
		s.authFailed = false
		s.retryAt = time.Time{}
	}

	if changed && s.state == StateRunning {
		// tear down the timer; the rebuilt schedule starts with a cycle
		s.nextDue = now
	}
	s.evaluateLocked(now)
}

// evaluateLocked applies the gating rules in priority order
func (s *Scheduler) evaluateLocked(now time.Time) {
	switch {
	case !s.enabled:
		s.stopLocked(ReasonDisabled)
	case !s.configured:
		s.stopLocked(ReasonUnconfigured)
	case s.authFailed:
		s.stopLocked(ReasonAuthFailed)
	case s.idle:
		s.stopLocked(ReasonIdle)
	case !s.retryAt.IsZero():
		s.stopLocked(ReasonBackoff)
	default:
		if s.state != StateRunning {
			s.state = StateRunning
			s.reason = ReasonNone
			s.nextDue = now
			metrics.SchedulerRunning.Set(1)
			s.logger.Info().Dur("interval", s.interval).Msg("Scheduler running")
		}
	}
}

func (s *Scheduler) stopLocked(reason Reason) {
	if s.state == StateStopped && s.reason == reason {
		return
	}
	s.state = StateStopped
	s.reason = reason
	s.nextDue = time.Time{}
	metrics.SchedulerRunning.Set(0)
	s.logger.Info().Str("reason", string(reason)).Msg("Scheduler stopped")
}

func (s *Scheduler) spacingOKLocked(now time.Time) bool {
	return s.lastStart.IsZero() || now.Sub(s.lastStart) >= s.cfg.MinSpacing
}

// Due reports whether a timer- or retry-driven cycle should start now
func (s *Scheduler) Due(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight || !s.spacingOKLocked(now) {
		return false
	}
	switch {
	case s.state == StateRunning:
		return !s.nextDue.IsZero() && !now.Before(s.nextDue)
	case s.reason == ReasonBackoff:
		return !now.Before(s.retryAt)
	}
	return false
}

// TryForce admits an out-of-band cycle. It bypasses the timer but not the
// spacing floor or the in-flight guard, and needs credentials.
func (s *Scheduler) TryForce(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.inFlight && s.configured && s.spacingOKLocked(now)
}

// CycleStarted records the start of a cycle and schedules the next one
func (s *Scheduler) CycleStarted(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inFlight = true
	s.lastStart = now
	if s.reason == ReasonBackoff && !now.Before(s.retryAt) {
		// the deferred retry is this cycle
		s.retryAt = time.Time{}
		s.evaluateLocked(now)
	}
	if s.state == StateRunning {
		s.nextDue = now.Add(s.interval)
	}
}

// CycleFinished records the outcome of the in-flight cycle
func (s *Scheduler) CycleFinished(now time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inFlight = false
	if err == nil {
		s.lastErr = ""
		if s.authFailed || !s.retryAt.IsZero() {
			// a forced cycle got through, resume the normal schedule
			s.authFailed = false
			s.retryAt = time.Time{}
			s.evaluateLocked(now)
			s.nextDue = s.lastStart.Add(s.interval)
		}
		return
	}
	s.lastErr = err.Error()

	switch {
	case errors.Is(err, status.ErrAuthFailure):
		s.authFailed = true
		s.retryAt = time.Time{}
	case errors.Is(err, status.ErrUnconfigured):
		s.configured = false
	case errors.Is(err, status.ErrRateLimited):
		s.retryAt = now.Add(max(s.cfg.RetryDelay, status.RetryAfter(err)))
	case errors.Is(err, status.ErrTransient):
		s.retryAt = now.Add(s.cfg.RetryDelay)
	default:
		// store or host failures keep the schedule
		s.logger.Warn().Err(err).Msg("Cycle failed")
		return
	}

	s.evaluateLocked(now)
	s.logger.Warn().
		Err(err).
		Str("reason", string(s.reason)).
		Time("retry_at", s.retryAt).
		Msg("Polling paused")
}

// NextWake returns when the loop should next consult Due
func (s *Scheduler) NextWake() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight {
		return time.Time{}, false
	}
	var at time.Time
	switch {
	case s.state == StateRunning && !s.nextDue.IsZero():
		at = s.nextDue
	case s.reason == ReasonBackoff:
		at = s.retryAt
	default:
		return time.Time{}, false
	}
	if floor := s.lastStart.Add(s.cfg.MinSpacing); !s.lastStart.IsZero() && at.Before(floor) {
		at = floor
	}
	return at, true
}

// Status returns a snapshot for reporting
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:     s.state,
		Reason:    s.reason,
		Interval:  s.interval,
		NextDue:   s.nextDue,
		RetryAt:   s.retryAt,
		LastStart: s.lastStart,
		InFlight:  s.inFlight,
		LastError: s.lastErr,
	}
}
