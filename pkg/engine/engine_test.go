package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/warden/pkg/config"
	"github.com/cuemby/warden/pkg/host"
	"github.com/cuemby/warden/pkg/scheduler"
	"github.com/cuemby/warden/pkg/status"
	"github.com/cuemby/warden/pkg/storage"
	"github.com/cuemby/warden/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeUpstream answers lookups from in-memory state
type fakeUpstream struct {
	mu            sync.Mutex
	live          map[string]*status.LiveInfo
	category      *status.ChannelRef
	err           error
	checks        int
	categoryCalls int
	creds         status.Credentials
	onCheck       func()
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{live: make(map[string]*status.LiveInfo)}
}

func (f *fakeUpstream) setLive(names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live = make(map[string]*status.LiveInfo)
	for _, n := range names {
		f.live[strings.ToLower(n)] = &status.LiveInfo{Login: strings.ToLower(n), Title: n + " stream", CategoryName: "Games"}
	}
}

func (f *fakeUpstream) CheckStatuses(_ context.Context, names []string) (map[string]*status.LiveInfo, error) {
	f.mu.Lock()
	f.checks++
	hook := f.onCheck
	err := f.err
	out := make(map[string]*status.LiveInfo, len(names))
	for _, n := range names {
		out[strings.ToLower(n)] = f.live[strings.ToLower(n)]
	}
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *fakeUpstream) RandomLiveChannelInCategory(_ context.Context, _ string) (*status.ChannelRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.categoryCalls++
	return f.category, nil
}

func (f *fakeUpstream) SetCredentials(creds status.Credentials) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creds = creds
}

func (f *fakeUpstream) Configured() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creds.Configured()
}

func (f *fakeUpstream) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checks, f.categoryCalls
}

type recordingSink struct {
	mu   sync.Mutex
	sent []host.Notification
}

func (r *recordingSink) Notify(_ context.Context, n host.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type testEnv struct {
	engine   *Engine
	store    *storage.BoltStore
	queue    *storage.WriteQueue
	bridge   *host.Bridge
	upstream *fakeUpstream
	sink     *recordingSink
	clock    *fakeClock
}

func newEnv(t *testing.T, now func() time.Time) *testEnv {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	queue := storage.NewWriteQueue(store, time.Hour)
	t.Cleanup(func() { queue.Close() })

	matcher, err := host.NewPageMatcher("twitch.tv", "https://www.twitch.tv/%s")
	require.NoError(t, err)

	env := &testEnv{
		store:    store,
		queue:    queue,
		bridge:   host.NewBridge(),
		upstream: newFakeUpstream(),
		sink:     &recordingSink{},
		clock:    &fakeClock{now: time.Date(2026, 2, 1, 20, 0, 0, 0, time.UTC)},
	}
	if now == nil {
		now = env.clock.Now
	}

	cfg := config.Default().Engine
	e, err := New(Options{
		Store:       store,
		Queue:       queue,
		Status:      env.upstream,
		Credentials: status.Credentials{ClientID: "id", Token: "token"},
		Surfaces:    env.bridge,
		Notifier:    env.sink,
		Prompter:    env.bridge,
		HostEvents:  env.bridge.Events(),
		Matcher:     matcher,
		Config:      cfg,
		Now:         now,
	})
	require.NoError(t, err)
	env.engine = e
	return env
}

func (env *testEnv) addChannels(t *testing.T, names ...string) {
	t.Helper()
	_, err := env.store.UpdateChannels(func(list []types.ChannelEntry) ([]types.ChannelEntry, error) {
		for _, n := range names {
			var err error
			list, err = types.AddChannel(list, n, env.clock.Now())
			if err != nil {
				return nil, err
			}
		}
		return list, nil
	})
	require.NoError(t, err)
}

func (env *testEnv) settings(t *testing.T, fn func(*types.Settings)) {
	t.Helper()
	_, err := env.store.UpdateSettings(func(s *types.Settings) error {
		fn(s)
		return nil
	})
	require.NoError(t, err)
}

// cycle runs one cycle as the loop would after a timer tick
func (env *testEnv) cycle(t *testing.T) {
	t.Helper()
	require.True(t, env.engine.sched.Due(env.clock.Now()), "cycle not due")
	_ = env.engine.runCycle(context.Background())
}

// call serves one command synchronously without the loop
func (env *testEnv) call(cmd command) reply {
	cmd.reply = make(chan reply, 1)
	env.engine.handle(context.Background(), cmd)
	return <-cmd.reply
}

func TestCycleRedirectsToHighestPriorityLive(t *testing.T) {
	env := newEnv(t, nil)
	env.addChannels(t, "alpha", "bravo", "charlie")
	env.upstream.setLive("bravo", "charlie")
	env.bridge.ReportSurface(host.Surface{ID: "tab-1", URL: "https://www.twitch.tv/charlie"})
	env.settings(t, func(s *types.Settings) {
		s.AutoSwitchEnabled = true
		s.ManagedSurfaceID = "tab-1"
	})

	env.engine.startup()
	env.cycle(t)

	nav, ok := env.bridge.TakeNavigation("tab-1")
	require.True(t, ok)
	assert.Equal(t, "https://www.twitch.tv/bravo", nav)

	channels, err := env.store.Channels()
	require.NoError(t, err)
	require.Len(t, channels, 3)
	assert.False(t, channels[0].IsLive)
	assert.True(t, channels[1].IsLive)
	assert.True(t, channels[1].WasLiveLastCycle)
	require.NotNil(t, channels[1].LiveMetadata)
	assert.Equal(t, "bravo stream", channels[1].LiveMetadata.Title)

	sum := env.engine.Summary()
	assert.True(t, sum.Enabled)
	assert.True(t, sum.Live)
	assert.Equal(t, "bravo", sum.Target)
	assert.Equal(t, 2, sum.LiveCount)
	assert.Equal(t, "enabled|live", sum.Badge)
	assert.Equal(t, string(scheduler.StateRunning), sum.SchedulerState)
}

func TestScenarioAdoptDefaultSurfaceThenOnTarget(t *testing.T) {
	env := newEnv(t, nil)
	env.addChannels(t, "alpha")
	env.upstream.setLive("alpha")
	env.bridge.ReportSurface(host.Surface{ID: "tab-9", URL: "https://www.twitch.tv/alpha", Focused: true})
	env.settings(t, func(s *types.Settings) { s.AutoSwitchEnabled = true })

	env.engine.startup()
	env.cycle(t)

	stored, err := env.store.Settings()
	require.NoError(t, err)
	assert.Equal(t, "tab-9", stored.ManagedSurfaceID)
	assert.True(t, stored.AutoSwitchEnabled)

	env.clock.Advance(time.Minute)
	env.cycle(t)

	_, navigated := env.bridge.TakeNavigation("tab-9")
	assert.False(t, navigated)
	assert.Empty(t, env.engine.Summary().LastError)
}

func TestScenarioFallbackAlreadyWatchingDoesNotReroll(t *testing.T) {
	env := newEnv(t, nil)
	env.addChannels(t, "alpha", "bravo")
	env.upstream.category = &status.ChannelRef{Login: "someoneelse"}
	env.bridge.ReportSurface(host.Surface{ID: "tab-1", URL: "https://www.twitch.tv/cozy"})
	env.settings(t, func(s *types.Settings) {
		s.AutoSwitchEnabled = true
		s.ManagedSurfaceID = "tab-1"
		s.FallbackCategory = "Just Chatting"
	})
	_, err := env.store.UpdateRuntime(func(rt *types.FallbackRuntime) error {
		rt.Active = true
		rt.Category = "Just Chatting"
		rt.CurrentChannel = "cozy"
		return nil
	})
	require.NoError(t, err)

	env.engine.startup()
	env.cycle(t)

	_, navigated := env.bridge.TakeNavigation("tab-1")
	assert.False(t, navigated)
	_, categoryCalls := env.upstream.counts()
	assert.Zero(t, categoryCalls)
	assert.Equal(t, "cozy", env.engine.Summary().Fallback)
}

func TestFallbackEntersThenEndsWhenTrackedChannelLive(t *testing.T) {
	env := newEnv(t, nil)
	env.addChannels(t, "alpha")
	env.upstream.category = &status.ChannelRef{Login: "cozy"}
	env.bridge.ReportSurface(host.Surface{ID: "tab-1", URL: "https://www.twitch.tv/directory"})
	env.settings(t, func(s *types.Settings) {
		s.AutoSwitchEnabled = true
		s.ManagedSurfaceID = "tab-1"
		s.FallbackCategory = "Just Chatting"
	})

	env.engine.startup()
	env.cycle(t)

	nav, ok := env.bridge.TakeNavigation("tab-1")
	require.True(t, ok)
	assert.Equal(t, "https://www.twitch.tv/cozy", nav)

	rt, err := env.queue.Runtime()
	require.NoError(t, err)
	assert.True(t, rt.Active)
	assert.Equal(t, "cozy", rt.CurrentChannel)
	assert.Equal(t, types.FallbackReasonAuto, rt.Reason)
	assert.Equal(t, "enabled|waiting", env.engine.Summary().Badge)

	// the companion reports the finished navigation, then alpha goes live
	env.bridge.ReportSurface(host.Surface{ID: "tab-1", URL: "https://www.twitch.tv/cozy"})
	env.upstream.setLive("alpha")
	env.clock.Advance(time.Minute)
	env.cycle(t)

	nav, ok = env.bridge.TakeNavigation("tab-1")
	require.True(t, ok)
	assert.Equal(t, "https://www.twitch.tv/alpha", nav)

	rt, err = env.queue.Runtime()
	require.NoError(t, err)
	assert.False(t, rt.Active)
	assert.Empty(t, env.engine.Summary().Fallback)
}

func TestMergeKeepsChannelsAddedDuringLookup(t *testing.T) {
	env := newEnv(t, nil)
	env.addChannels(t, "alpha", "bravo")
	env.upstream.setLive("alpha")
	env.upstream.onCheck = func() {
		_, err := env.store.UpdateChannels(func(list []types.ChannelEntry) ([]types.ChannelEntry, error) {
			list, err := types.RemoveChannel(list, "bravo")
			if err != nil {
				return nil, err
			}
			return types.AddChannel(list, "delta", env.clock.Now())
		})
		require.NoError(t, err)
	}

	env.engine.startup()
	env.cycle(t)

	channels, err := env.store.Channels()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "delta"}, types.ChannelNames(channels))
	assert.True(t, channels[0].IsLive)
	assert.False(t, channels[1].IsLive)
	assert.Equal(t, 2, channels[1].Priority)
}

func TestNotificationOncePerLiveEdge(t *testing.T) {
	env := newEnv(t, nil)
	env.addChannels(t, "alpha")
	env.upstream.setLive("alpha")

	env.engine.startup()
	env.cycle(t)
	require.Eventually(t, func() bool { return env.sink.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	env.clock.Advance(time.Minute)
	env.cycle(t)

	// offline then live again is a new edge
	env.upstream.setLive()
	env.clock.Advance(time.Minute)
	env.cycle(t)
	env.upstream.setLive("alpha")
	env.clock.Advance(time.Minute)
	env.cycle(t)

	require.Eventually(t, func() bool { return env.sink.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	env.sink.mu.Lock()
	first := env.sink.sent[0]
	env.sink.mu.Unlock()
	assert.Equal(t, "alpha", first.Channel)
	assert.Equal(t, "https://www.twitch.tv/alpha", first.URL)
}

func TestNotificationsDisabled(t *testing.T) {
	env := newEnv(t, nil)
	env.addChannels(t, "alpha")
	env.upstream.setLive("alpha")
	env.settings(t, func(s *types.Settings) { s.NotificationsEnabled = false })

	env.engine.startup()
	env.cycle(t)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, env.sink.count())
}

func TestAuthFailureStopsUntilCredentialsChange(t *testing.T) {
	env := newEnv(t, nil)
	env.addChannels(t, "alpha")
	env.upstream.err = status.ErrAuthFailure

	env.engine.startup()
	env.cycle(t)

	sum := env.engine.Summary()
	assert.Equal(t, string(scheduler.StateStopped), sum.SchedulerState)
	assert.Equal(t, string(scheduler.ReasonAuthFailed), sum.SchedulerReason)
	assert.Contains(t, sum.LastError, "rejected credentials")

	env.clock.Advance(time.Hour)
	assert.False(t, env.engine.sched.Due(env.clock.Now()))

	// unrelated settings and a re-sent identical credential do not retry
	env.settings(t, func(s *types.Settings) { s.NotificationsEnabled = !s.NotificationsEnabled })
	r := env.call(command{kind: cmdSettingsChanged})
	require.NoError(t, r.err)
	r = env.call(command{kind: cmdSetCredentials, creds: status.Credentials{ClientID: "id", Token: "token"}})
	require.NoError(t, r.err)
	assert.Equal(t, string(scheduler.ReasonAuthFailed), env.engine.Summary().SchedulerReason)
	assert.False(t, env.engine.sched.Due(env.clock.Now()))

	env.upstream.mu.Lock()
	env.upstream.err = nil
	env.upstream.mu.Unlock()
	r = env.call(command{kind: cmdSetCredentials, creds: status.Credentials{ClientID: "id", Token: "fresh"}})
	require.NoError(t, r.err)
	assert.Equal(t, "fresh", env.upstream.creds.Token)

	env.cycle(t)
	sum = env.engine.Summary()
	assert.Equal(t, string(scheduler.StateRunning), sum.SchedulerState)
	assert.Empty(t, sum.LastError)
}

func TestUnconfiguredIsReported(t *testing.T) {
	env := newEnv(t, nil)
	env.engine.creds = status.Credentials{}

	env.engine.startup()

	sum := env.engine.Summary()
	assert.Equal(t, string(scheduler.StateStopped), sum.SchedulerState)
	assert.Equal(t, string(scheduler.ReasonUnconfigured), sum.SchedulerReason)
	checks, _ := env.upstream.counts()
	assert.Zero(t, checks)
}

func TestSettingsPropagationClearsFallback(t *testing.T) {
	env := newEnv(t, nil)
	env.settings(t, func(s *types.Settings) {
		s.AutoSwitchEnabled = true
		s.ManagedSurfaceID = "tab-1"
	})
	env.engine.startup()

	env.queue.QueueRuntime(func(rt *types.FallbackRuntime) {
		rt.Active = true
		rt.Category = "Just Chatting"
		rt.CurrentChannel = "cozy"
	})
	env.settings(t, func(s *types.Settings) { s.AutoSwitchEnabled = false })

	r := env.call(command{kind: cmdSettingsChanged})
	require.NoError(t, r.err)

	// written through, not left in the queue
	rt, err := env.store.Runtime()
	require.NoError(t, err)
	assert.False(t, rt.Active)
	assert.Empty(t, rt.CurrentChannel)

	sum := env.engine.Summary()
	assert.False(t, sum.Enabled)
	assert.Equal(t, "disabled|waiting", sum.Badge)
}

func TestSettingsPropagationReschedules(t *testing.T) {
	env := newEnv(t, nil)
	env.engine.startup()
	env.cycle(t)

	env.clock.Advance(10 * time.Second)
	assert.False(t, env.engine.sched.Due(env.clock.Now()))

	env.settings(t, func(s *types.Settings) { s.PollIntervalMs = 20_000 })
	r := env.call(command{kind: cmdSettingsChanged})
	require.NoError(t, r.err)

	assert.True(t, env.engine.sched.Due(env.clock.Now()))
	assert.Equal(t, 20*time.Second, env.engine.SchedulerStatus().Interval)
}

func TestForcePollRespectsSpacing(t *testing.T) {
	env := newEnv(t, nil)
	env.addChannels(t, "alpha")
	env.engine.startup()
	env.cycle(t)

	env.clock.Advance(2 * time.Second)
	r := env.call(command{kind: cmdForcePoll})
	assert.False(t, r.ok)

	env.clock.Advance(4 * time.Second)
	r = env.call(command{kind: cmdForcePoll})
	assert.True(t, r.ok)
	require.NoError(t, r.err)

	checks, _ := env.upstream.counts()
	assert.Equal(t, 2, checks)
}

func TestForceFallbackReroll(t *testing.T) {
	env := newEnv(t, nil)
	env.addChannels(t, "alpha")
	env.upstream.category = &status.ChannelRef{Login: "fresh"}
	env.bridge.ReportSurface(host.Surface{ID: "tab-1", URL: "https://www.twitch.tv/cozy"})
	env.settings(t, func(s *types.Settings) {
		s.AutoSwitchEnabled = true
		s.ManagedSurfaceID = "tab-1"
		s.FallbackCategory = "Just Chatting"
	})
	_, err := env.store.UpdateRuntime(func(rt *types.FallbackRuntime) error {
		rt.Active = true
		rt.Category = "Just Chatting"
		rt.CurrentChannel = "cozy"
		return nil
	})
	require.NoError(t, err)
	env.engine.startup()

	r := env.call(command{kind: cmdForceReroll})
	require.NoError(t, r.err)
	assert.True(t, r.ok)

	nav, ok := env.bridge.TakeNavigation("tab-1")
	require.True(t, ok)
	assert.Equal(t, "https://www.twitch.tv/fresh", nav)

	rt, err := env.queue.Runtime()
	require.NoError(t, err)
	assert.Equal(t, types.FallbackReasonManual, rt.Reason)
	assert.Equal(t, "fresh", rt.CurrentChannel)
}

func TestForceFallbackRerollWithoutBinding(t *testing.T) {
	env := newEnv(t, nil)
	env.engine.startup()

	r := env.call(command{kind: cmdForceReroll})
	require.NoError(t, r.err)
	assert.False(t, r.ok)
	_, categoryCalls := env.upstream.counts()
	assert.Zero(t, categoryCalls)
}

func TestForceFallbackRerollWaitsForLoadingSurface(t *testing.T) {
	env := newEnv(t, nil)
	env.addChannels(t, "alpha")
	env.upstream.category = &status.ChannelRef{Login: "fresh"}
	env.bridge.ReportSurface(host.Surface{ID: "tab-1", URL: "https://www.twitch.tv/cozy", Loading: true})
	env.settings(t, func(s *types.Settings) {
		s.AutoSwitchEnabled = true
		s.ManagedSurfaceID = "tab-1"
		s.FallbackCategory = "Just Chatting"
	})
	env.engine.startup()

	r := env.call(command{kind: cmdForceReroll})
	require.NoError(t, r.err)
	assert.False(t, r.ok)

	_, navigated := env.bridge.TakeNavigation("tab-1")
	assert.False(t, navigated)
	_, categoryCalls := env.upstream.counts()
	assert.Zero(t, categoryCalls)
}

func TestPromptAnsweredThroughCommand(t *testing.T) {
	env := newEnv(t, nil)
	env.addChannels(t, "alpha")
	env.upstream.setLive("alpha")
	env.bridge.ReportSurface(host.Surface{ID: "tab-1", URL: "https://www.twitch.tv/other"})
	env.settings(t, func(s *types.Settings) {
		s.AutoSwitchEnabled = true
		s.ManagedSurfaceID = "tab-1"
		s.PromptBeforeSwitch = true
	})

	env.engine.startup()
	env.cycle(t)

	prompts := env.bridge.DrainPrompts()
	require.Len(t, prompts, 1)
	_, navigated := env.bridge.TakeNavigation("tab-1")
	require.False(t, navigated)

	r := env.call(command{kind: cmdAnswerPrompt, id: prompts[0].ID, accepted: true})
	require.NoError(t, r.err)
	assert.Equal(t, "switched", r.value)

	nav, ok := env.bridge.TakeNavigation("tab-1")
	require.True(t, ok)
	assert.Equal(t, "https://www.twitch.tv/alpha", nav)
}

func TestHostEvents(t *testing.T) {
	env := newEnv(t, nil)
	env.bridge.ReportSurface(host.Surface{ID: "tab-1", URL: "https://www.twitch.tv/alpha"})
	env.settings(t, func(s *types.Settings) {
		s.AutoSwitchEnabled = true
		s.ManagedSurfaceID = "tab-1"
	})
	env.engine.startup()

	env.engine.handleHostEvent(host.Event{Type: host.EventIdleChanged, Idle: host.IdleLocked})
	assert.Equal(t, string(scheduler.ReasonIdle), env.engine.Summary().SchedulerReason)

	env.engine.handleHostEvent(host.Event{Type: host.EventIdleChanged, Idle: host.IdleActive})
	assert.Equal(t, string(scheduler.StateRunning), env.engine.Summary().SchedulerState)

	env.engine.handleHostEvent(host.Event{Type: host.EventSurfaceRemoved, SurfaceID: "tab-1"})
	stored, err := env.store.Settings()
	require.NoError(t, err)
	assert.False(t, stored.AutoSwitchEnabled)
	assert.Empty(t, stored.ManagedSurfaceID)
	assert.False(t, env.engine.Summary().Enabled)
}

func TestViewingAnalyticsInSupporterMode(t *testing.T) {
	env := newEnv(t, nil)
	env.addChannels(t, "alpha")
	env.upstream.setLive("alpha")
	env.bridge.ReportSurface(host.Surface{ID: "tab-1", URL: "https://www.twitch.tv/alpha"})
	env.settings(t, func(s *types.Settings) {
		s.AutoSwitchEnabled = true
		s.ManagedSurfaceID = "tab-1"
		s.SupporterMode = true
	})

	env.engine.startup()
	env.cycle(t)
	env.clock.Advance(time.Minute)
	env.cycle(t)
	env.clock.Advance(time.Minute)
	env.cycle(t)

	a, err := env.queue.Analytics()
	require.NoError(t, err)
	assert.InDelta(t, 120.0, a.ViewingSecondsByChannel["alpha"], 0.001)
}

func TestViewingAnalyticsSkipsNonChannelPages(t *testing.T) {
	env := newEnv(t, nil)
	env.addChannels(t, "alpha")
	env.bridge.ReportSurface(host.Surface{ID: "tab-1", URL: "https://www.twitch.tv/directory"})
	env.settings(t, func(s *types.Settings) {
		s.AutoSwitchEnabled = true
		s.ManagedSurfaceID = "tab-1"
		s.SupporterMode = true
		s.FallbackCategory = ""
	})

	env.engine.startup()
	env.cycle(t)
	env.clock.Advance(time.Minute)
	env.cycle(t)

	a, err := env.queue.Analytics()
	require.NoError(t, err)
	assert.Empty(t, a.ViewingSecondsByChannel)
}

func TestRunServesCommandsQueuedBeforeStart(t *testing.T) {
	env := newEnv(t, time.Now)
	env.addChannels(t, "alpha")
	env.settings(t, func(s *types.Settings) {
		s.AutoSwitchEnabled = true
		s.ManagedSurfaceID = "tab-1"
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		id  string
		err error
	}
	early := make(chan result, 1)
	go func() {
		id, err := env.engine.ManagedSurfaceID(ctx)
		early <- result{id, err}
	}()

	done := make(chan error, 1)
	go func() { done <- env.engine.Run(ctx) }()

	select {
	case r := <-early:
		require.NoError(t, r.err)
		assert.Equal(t, "tab-1", r.id)
	case <-time.After(5 * time.Second):
		t.Fatal("queued command was not served")
	}
	<-env.engine.Ready()

	// a timer-driven cycle and two forced ones inside the spacing floor
	// produce a single lookup
	_, err := env.engine.ForcePollNow(ctx)
	require.NoError(t, err)
	_, err = env.engine.ForcePollNow(ctx)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	checks, _ := env.upstream.counts()
	assert.Equal(t, 1, checks)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
}
