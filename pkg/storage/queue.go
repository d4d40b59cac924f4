package storage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/types"
	"github.com/rs/zerolog"
)

// WriteQueue coalesces runtime and analytics mutations and commits them
// after a short delay, one transaction per record. Reads through the queue
// see pending mutations applied on top of the stored record.
type WriteQueue struct {
	store  Store
	delay  time.Duration
	logger zerolog.Logger

	// held for writing across a flush so readers never miss in-flight mutations
	flushing sync.RWMutex

	mu        sync.Mutex
	runtime   []func(*types.FallbackRuntime)
	analytics []func(*types.AnalyticsState)
	timer     *time.Timer
	closed    bool
}

// NewWriteQueue creates a queue in front of store
func NewWriteQueue(store Store, delay time.Duration) *WriteQueue {
	return &WriteQueue{
		store:  store,
		delay:  delay,
		logger: log.WithComponent("write-queue"),
	}
}

// QueueRuntime schedules a runtime mutation
func (q *WriteQueue) QueueRuntime(fn func(*types.FallbackRuntime)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.runtime = append(q.runtime, fn)
	q.armLocked()
}

// QueueAnalytics schedules an analytics mutation
func (q *WriteQueue) QueueAnalytics(fn func(*types.AnalyticsState)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.analytics = append(q.analytics, fn)
	q.armLocked()
}

func (q *WriteQueue) armLocked() {
	if q.closed {
		return
	}
	if q.delay <= 0 {
		// flush synchronously from a fresh goroutine so callers never block on I/O
		go q.flushLogged()
		return
	}
	if q.timer == nil {
		q.timer = time.AfterFunc(q.delay, q.flushLogged)
	}
}

func (q *WriteQueue) flushLogged() {
	if err := q.Flush(); err != nil {
		q.logger.Error().Err(err).Msg("Failed to flush queued writes")
	}
}

// Runtime returns the stored runtime with pending mutations applied
func (q *WriteQueue) Runtime() (types.FallbackRuntime, error) {
	q.flushing.RLock()
	defer q.flushing.RUnlock()

	rt, err := q.store.Runtime()
	if err != nil {
		return rt, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, fn := range q.runtime {
		fn(&rt)
	}
	return rt, nil
}

// Analytics returns the stored analytics with pending mutations applied
func (q *WriteQueue) Analytics() (types.AnalyticsState, error) {
	q.flushing.RLock()
	defer q.flushing.RUnlock()

	a, err := q.store.Analytics()
	if err != nil {
		return a, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, fn := range q.analytics {
		fn(&a)
	}
	return a, nil
}

// Pending reports the number of queued mutations per record
func (q *WriteQueue) Pending() map[Record]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return map[Record]int{
		RecordRuntime:   len(q.runtime),
		RecordAnalytics: len(q.analytics),
	}
}

// Flush commits every pending mutation now
func (q *WriteQueue) Flush() error {
	q.flushing.Lock()
	defer q.flushing.Unlock()

	q.mu.Lock()
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	runtime := q.runtime
	analytics := q.analytics
	q.runtime = nil
	q.analytics = nil
	q.mu.Unlock()

	var errs []error
	if len(runtime) > 0 {
		_, err := q.store.UpdateRuntime(func(rt *types.FallbackRuntime) error {
			for _, fn := range runtime {
				fn(rt)
			}
			return nil
		})
		if err != nil {
			// keep them ahead of anything queued meanwhile; the next Flush retries
			q.mu.Lock()
			q.runtime = append(runtime, q.runtime...)
			q.mu.Unlock()
			errs = append(errs, fmt.Errorf("flush %s: %w", RecordRuntime, err))
		}
	}
	if len(analytics) > 0 {
		_, err := q.store.UpdateAnalytics(func(a *types.AnalyticsState) error {
			for _, fn := range analytics {
				fn(a)
			}
			return nil
		})
		if err != nil {
			q.mu.Lock()
			q.analytics = append(analytics, q.analytics...)
			q.mu.Unlock()
			errs = append(errs, fmt.Errorf("flush %s: %w", RecordAnalytics, err))
		}
	}

	if len(runtime)+len(analytics) > 0 {
		q.logger.Debug().
			Int("runtime", len(runtime)).
			Int("analytics", len(analytics)).
			Msg("Flushed queued writes")
	}
	return errors.Join(errs...)
}

// Close flushes outstanding writes and stops accepting timers
func (q *WriteQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return q.Flush()
}
