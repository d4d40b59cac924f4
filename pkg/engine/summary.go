package engine

import (
	"github.com/cuemby/warden/pkg/events"
	"github.com/cuemby/warden/pkg/reconciler"
	"github.com/cuemby/warden/pkg/types"
)

// buildSummary assembles the compact status from the latest records
func (e *Engine) buildSummary() types.Summary {
	settings, err := e.store.Settings()
	if err != nil {
		settings = e.settings
	}
	channels := e.latestChannels()

	target := reconciler.TargetOf(channels)
	live := 0
	for _, ch := range channels {
		if ch.IsLive {
			live++
		}
	}

	st := e.sched.Status()
	s := types.Summary{
		Enabled:         settings.AutoSwitchEnabled,
		Live:            target != nil,
		Target:          nameOf(target),
		LiveCount:       live,
		SchedulerState:  string(st.State),
		SchedulerReason: string(st.Reason),
		LastError:       e.lastErr,
		LastCycleAt:     e.lastCycleAt,
		Badge:           types.BadgeText(settings.AutoSwitchEnabled, target != nil),
	}

	if rt, err := e.queue.Runtime(); err == nil && rt.Active {
		s.Fallback = rt.CurrentChannel
	}
	return s
}

// publishSummary stores the summary and announces it when it changed
func (e *Engine) publishSummary() {
	next := e.buildSummary()
	prev := e.summary.Swap(&next)
	if prev != nil && *prev == next {
		return
	}
	e.publish(&events.Event{Type: events.EventSummaryUpdated, Summary: &next})
}
