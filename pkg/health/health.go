package health

import (
	"context"
	"time"
)

// Result represents the outcome of one probe
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker probes one endpoint
type Checker interface {
	Check(ctx context.Context) Result
}

// Config controls how Wait probes
type Config struct {
	// Interval is the time between probes
	Interval time.Duration

	// Timeout bounds a single probe
	Timeout time.Duration

	// Successes is the number of consecutive healthy probes required
	Successes int
}

// DefaultConfig returns the probe settings used by warden wait
func DefaultConfig() Config {
	return Config{
		Interval:  500 * time.Millisecond,
		Timeout:   2 * time.Second,
		Successes: 1,
	}
}

// Status tracks consecutive probe outcomes
type Status struct {
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	Attempts             int
	LastResult           Result
}

// Update records a probe result
func (s *Status) Update(result Result) {
	s.Attempts++
	s.LastResult = result

	if result.Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
	} else {
		s.ConsecutiveFailures++
		s.ConsecutiveSuccesses = 0
	}
}

// Satisfied reports whether enough consecutive probes succeeded
func (s *Status) Satisfied(cfg Config) bool {
	return s.ConsecutiveSuccesses >= max(cfg.Successes, 1)
}

// Wait probes until cfg is satisfied or ctx ends. The returned status holds
// the last result either way.
func Wait(ctx context.Context, checker Checker, cfg Config) (*Status, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	status := &Status{}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		probeCtx := ctx
		cancel := context.CancelFunc(func() {})
		if cfg.Timeout > 0 {
			probeCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		}
		status.Update(checker.Check(probeCtx))
		cancel()

		if status.Satisfied(cfg) {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}
