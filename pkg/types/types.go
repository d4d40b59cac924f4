package types

import (
	"strings"
	"time"
)

// ChannelEntry represents a tracked channel in the user's prioritized list
type ChannelEntry struct {
	Name             string        `json:"name"`
	Priority         int           `json:"priority"` // 1-based, dense across the list
	IsLive           bool          `json:"isLive"`
	LiveMetadata     *LiveMetadata `json:"liveMetadata,omitempty"`
	WasLiveLastCycle bool          `json:"wasLiveLastCycle"`
	AddedAt          time.Time     `json:"addedAt"`
}

// LiveMetadata describes a broadcast while a channel is live
type LiveMetadata struct {
	Title        string    `json:"title"`
	CategoryName string    `json:"categoryName"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	ViewerCount  int       `json:"viewerCount,omitempty"`
	StartedAt    time.Time `json:"startedAt,omitempty"`
}

// Settings holds the user-editable engine settings
type Settings struct {
	PollIntervalMs       int64  `json:"pollIntervalMs"`
	FallbackCategory     string `json:"fallbackCategory"`
	AutoSwitchEnabled    bool   `json:"autoSwitchEnabled"`
	PromptBeforeSwitch   bool   `json:"promptBeforeSwitch"`
	NotificationsEnabled bool   `json:"notificationsEnabled"`
	SupporterMode        bool   `json:"supporterMode"`
	ManagedSurfaceID     string `json:"managedSurfaceId,omitempty"` // empty means unbound
}

const (
	DefaultPollInterval = 60 * time.Second
	MinPollInterval     = 10 * time.Second
	MaxPollInterval     = time.Hour
)

// DefaultSettings returns the settings applied underneath any stored record
func DefaultSettings() Settings {
	return Settings{
		PollIntervalMs:       DefaultPollInterval.Milliseconds(),
		NotificationsEnabled: true,
	}
}

// PollInterval returns the poll interval as a duration, clamped to the allowed range
func (s Settings) PollInterval() time.Duration {
	d := time.Duration(s.PollIntervalMs) * time.Millisecond
	switch {
	case d <= 0:
		return DefaultPollInterval
	case d < MinPollInterval:
		return MinPollInterval
	case d > MaxPollInterval:
		return MaxPollInterval
	}
	return d
}

// Normalize clamps the interval and enforces that a surface binding only
// exists while auto-switch is enabled.
func (s *Settings) Normalize() {
	s.PollIntervalMs = s.PollInterval().Milliseconds()
	s.FallbackCategory = strings.TrimSpace(s.FallbackCategory)
	if !s.AutoSwitchEnabled {
		s.ManagedSurfaceID = ""
	}
}

// DisableAutoSwitch clears auto-switch and its surface binding together
func (s *Settings) DisableAutoSwitch() {
	s.AutoSwitchEnabled = false
	s.ManagedSurfaceID = ""
}

// FallbackReason records what triggered the current fallback choice
type FallbackReason string

const (
	FallbackReasonAuto   FallbackReason = "auto"
	FallbackReasonManual FallbackReason = "manual"
)

// FallbackRuntime is the scratch record describing the current fallback state
type FallbackRuntime struct {
	Active         bool           `json:"active"`
	Category       string         `json:"category,omitempty"`
	CurrentChannel string         `json:"currentChannel,omitempty"`
	Reason         FallbackReason `json:"reason,omitempty"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// DefaultFallbackRuntime returns an inactive runtime record
func DefaultFallbackRuntime() FallbackRuntime {
	return FallbackRuntime{Reason: FallbackReasonAuto}
}

// SwitchRecord captures the most recent redirect
type SwitchRecord struct {
	Channel   string    `json:"channel"`
	Timestamp time.Time `json:"timestamp"`
}

// AnalyticsState holds append-only usage counters
type AnalyticsState struct {
	ViewingSecondsByChannel map[string]float64 `json:"viewingSecondsByChannel"`
	SwitchCount             int                `json:"switchCount"`
	LastSwitch              *SwitchRecord      `json:"lastSwitch,omitempty"`
}

// DefaultAnalytics returns an empty analytics record
func DefaultAnalytics() AnalyticsState {
	return AnalyticsState{ViewingSecondsByChannel: make(map[string]float64)}
}

// RecordSwitch counts a redirect to channel
func (a *AnalyticsState) RecordSwitch(channel string, at time.Time) {
	a.SwitchCount++
	a.LastSwitch = &SwitchRecord{Channel: channel, Timestamp: at}
}

// AddViewingTime accrues watched seconds for channel
func (a *AnalyticsState) AddViewingTime(channel string, seconds float64) {
	if seconds <= 0 || channel == "" {
		return
	}
	if a.ViewingSecondsByChannel == nil {
		a.ViewingSecondsByChannel = make(map[string]float64)
	}
	a.ViewingSecondsByChannel[strings.ToLower(channel)] += seconds
}

// Summary is the compact status published for the overlay and badge renderers
type Summary struct {
	Enabled         bool      `json:"enabled"`
	Live            bool      `json:"live"`
	Target          string    `json:"target,omitempty"`
	Fallback        string    `json:"fallback,omitempty"`
	LiveCount       int       `json:"liveCount"`
	SchedulerState  string    `json:"schedulerState"`
	SchedulerReason string    `json:"schedulerReason,omitempty"`
	LastError       string    `json:"lastError,omitempty"`
	LastCycleAt     time.Time `json:"lastCycleAt,omitempty"`
	Badge           string    `json:"badge"`
}

// BadgeText renders the compact indicator, e.g. "enabled|live"
func BadgeText(enabled, live bool) string {
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	if live {
		return state + "|live"
	}
	return state + "|waiting"
}
