package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/warden/pkg/events"
	"github.com/cuemby/warden/pkg/fallback"
	"github.com/cuemby/warden/pkg/host"
	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/metrics"
	"github.com/cuemby/warden/pkg/reconciler"
	"github.com/cuemby/warden/pkg/switcher"
	"github.com/cuemby/warden/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const notifyTimeout = 10 * time.Second

// runCycle executes one poll cycle. A failing step skips the rest of the
// cycle; writes already committed stay.
func (e *Engine) runCycle(ctx context.Context) (err error) {
	start := e.now()
	logger := log.WithCycleID(e.logger, uuid.New().String())
	timer := metrics.NewTimer()
	e.sched.CycleStarted(start)

	defer func() {
		timer.ObserveDuration(metrics.PollCycleDuration)
		e.sched.CycleFinished(e.now(), err)
		e.updateSchedulerHealth()
		e.lastCycleAt = start

		if err != nil {
			e.lastErr = err.Error()
			metrics.PollCyclesTotal.WithLabelValues("failed").Inc()
			logger.Warn().Err(err).Msg("Poll cycle failed")
			e.publish(&events.Event{Type: events.EventPollFailed, Message: err.Error()})
		} else {
			e.lastErr = ""
			metrics.PollCyclesTotal.WithLabelValues("ok").Inc()
			logger.Debug().Dur("took", timer.Duration()).Msg("Poll cycle complete")
		}
		e.publishSummary()
	}()

	// writes queued since the last cycle land before anything is read
	if err := e.queue.Flush(); err != nil {
		return e.storeFailed(fmt.Errorf("flush pending writes: %w", err))
	}

	settings, err := e.store.Settings()
	if err != nil {
		return e.storeFailed(fmt.Errorf("read settings: %w", err))
	}
	e.settings = settings

	channels, err := e.store.Channels()
	if err != nil {
		return e.storeFailed(fmt.Errorf("read channels: %w", err))
	}

	statuses, err := e.status.CheckStatuses(ctx, types.ChannelNames(channels))
	if err != nil {
		metrics.UpdateComponent(metrics.ComponentUpstream, false, err.Error())
		return fmt.Errorf("check statuses: %w", err)
	}
	metrics.UpdateComponent(metrics.ComponentUpstream, true, "")

	res := reconciler.Reconcile(channels, statuses)

	// the list may have been edited while the lookup was in flight
	merged, err := e.store.UpdateChannels(func(latest []types.ChannelEntry) ([]types.ChannelEntry, error) {
		return reconciler.Merge(latest, res.Channels), nil
	})
	if err != nil {
		return e.storeFailed(fmt.Errorf("merge channel statuses: %w", err))
	}
	metrics.UpdateComponent(metrics.ComponentStore, true, "")

	target := reconciler.TargetOf(merged)
	e.announceEdges(logger, settings, res, merged)

	decision, err := e.switcher.Evaluate(ctx, settings, target)
	if err != nil {
		return fmt.Errorf("switch managed surface: %w", err)
	}
	e.afterDecision(decision)

	if err := e.applyFallback(ctx, logger, settings, target, decision); err != nil {
		return err
	}

	e.accrueViewing(start, settings, decision)

	logger.Info().
		Int("channels", len(merged)).
		Int("live", res.LiveCount).
		Str("target", nameOf(target)).
		Str("switch", string(decision.State)).
		Msg("Poll cycle")
	return nil
}

func (e *Engine) storeFailed(err error) error {
	metrics.UpdateComponent(metrics.ComponentStore, false, err.Error())
	return err
}

func nameOf(ch *types.ChannelEntry) string {
	if ch == nil {
		return ""
	}
	return ch.Name
}

// announceEdges publishes live/offline edges and dispatches one desktop
// notification per newly-live channel still tracked.
func (e *Engine) announceEdges(logger zerolog.Logger, settings types.Settings, res reconciler.Result, merged []types.ChannelEntry) {
	for _, ch := range res.WentOffline {
		e.publish(&events.Event{
			Type:     events.EventChannelOffline,
			Message:  ch.Name,
			Metadata: map[string]string{"channel": ch.Name},
		})
	}

	for _, ch := range res.NewlyLive {
		if types.FindChannel(merged, ch.Name) < 0 {
			continue
		}
		meta := map[string]string{"channel": ch.Name}
		if ch.LiveMetadata != nil {
			meta["title"] = ch.LiveMetadata.Title
			meta["category"] = ch.LiveMetadata.CategoryName
		}
		e.publish(&events.Event{Type: events.EventChannelLive, Message: ch.Name, Metadata: meta})

		if settings.NotificationsEnabled && e.notifier != nil {
			e.notify(logger, ch)
		}
	}
}

func (e *Engine) notify(logger zerolog.Logger, ch types.ChannelEntry) {
	n := host.Notification{
		ID:        uuid.New().String(),
		Title:     fmt.Sprintf("%s is live", ch.Name),
		Channel:   ch.Name,
		URL:       e.matcher.ChannelURL(ch.Name),
		CreatedAt: e.now(),
	}
	if meta := ch.LiveMetadata; meta != nil {
		n.Message = meta.Title
		if meta.CategoryName != "" {
			n.Message = fmt.Sprintf("%s (%s)", meta.Title, meta.CategoryName)
		}
		n.IconURL = meta.ThumbnailURL
	}

	notifier := e.notifier
	err := e.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := notifier.Notify(ctx, n); err != nil {
			metrics.NotificationsTotal.WithLabelValues("failed").Inc()
			logger.Warn().Err(err).Str("channel", n.Channel).Msg("Notification failed")
			return
		}
		metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	})
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
		logger.Warn().Err(err).Str("channel", n.Channel).Msg("Notification dropped")
	}
}

// afterDecision publishes what the switch executor did
func (e *Engine) afterDecision(d switcher.Decision) {
	switch d.State {
	case switcher.StateSwitched:
		e.publish(&events.Event{
			Type:     events.EventSwitchPerformed,
			Message:  d.Target,
			Metadata: map[string]string{"channel": d.Target, "surface_id": d.SurfaceID},
		})
	case switcher.StatePromptPending:
		if d.PromptID != e.lastPromptID {
			e.lastPromptID = d.PromptID
			e.publish(&events.Event{
				Type:     events.EventPromptRaised,
				Message:  d.Target,
				Metadata: map[string]string{"channel": d.Target, "prompt_id": d.PromptID},
			})
		}
	case switcher.StateNoManagedSurface:
		if e.settings.AutoSwitchEnabled {
			e.publish(&events.Event{Type: events.EventAutoSwitchDisabled, Message: "managed surface unavailable"})
		}
	}
}

func (e *Engine) applyFallback(ctx context.Context, logger zerolog.Logger, settings types.Settings, target *types.ChannelEntry, d switcher.Decision) error {
	rt, err := e.queue.Runtime()
	if err != nil {
		return e.storeFailed(fmt.Errorf("read fallback runtime: %w", err))
	}

	autoSwitch := d.State != switcher.StateDisabled && d.State != switcher.StateNoManagedSurface
	if target != nil || !autoSwitch {
		if e.fallback.Deactivate(rt) {
			e.publish(&events.Event{Type: events.EventFallbackEnded, Message: nameOf(target)})
		}
		return nil
	}
	if !d.FallbackEligible() {
		return nil
	}

	settings.ManagedSurfaceID = d.SurfaceID
	out, err := e.fallback.Apply(ctx, fallback.Request{
		Settings:       settings,
		Runtime:        rt,
		SurfaceID:      d.SurfaceID,
		OnService:      d.Page.OnService,
		SurfaceChannel: d.Page.Channel,
	})
	if err != nil {
		return fmt.Errorf("fallback reroll: %w", err)
	}
	if out.Redirected {
		e.publish(&events.Event{
			Type:     events.EventFallbackSelected,
			Message:  out.Channel,
			Metadata: map[string]string{"channel": out.Channel, "reason": string(types.FallbackReasonAuto)},
		})
	} else if out.Rerolled {
		logger.Debug().Str("category", settings.FallbackCategory).Msg("Fallback reroll found nothing")
	}
	return nil
}

// accrueViewing credits the time since the previous cycle to the channel the
// managed surface showed at both ends of it.
func (e *Engine) accrueViewing(now time.Time, settings types.Settings, d switcher.Decision) {
	channel := d.Page.Channel
	if settings.SupporterMode && d.Page.OnChannelPage() && channel == e.lastViewed && !e.lastViewedAt.IsZero() {
		secs := min(now.Sub(e.lastViewedAt), settings.PollInterval()).Seconds()
		e.queue.QueueAnalytics(func(a *types.AnalyticsState) {
			a.AddViewingTime(channel, secs)
		})
	}

	if d.State == switcher.StateSwitched {
		channel = ""
	}
	e.lastViewed = channel
	e.lastViewedAt = now
}

// latestChannels reads the channel list, tolerating store errors
func (e *Engine) latestChannels() []types.ChannelEntry {
	channels, err := e.store.Channels()
	if err != nil {
		e.logger.Warn().Err(err).Msg("Failed to read channels")
		return nil
	}
	return channels
}
