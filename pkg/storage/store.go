package storage

import (
	"github.com/cuemby/warden/pkg/types"
)

// Record names the four logical records held by a Store
type Record string

const (
	RecordChannels  Record = "channels"
	RecordSettings  Record = "settings"
	RecordRuntime   Record = "runtime"
	RecordAnalytics Record = "analytics"
)

// Store defines the interface for warden's persisted state.
// Reads overlay stored values onto documented defaults. Update methods run
// the read-modify-write inside a single transaction so fn always sees the
// latest record.
type Store interface {
	// Channels
	Channels() ([]types.ChannelEntry, error)
	UpdateChannels(fn func([]types.ChannelEntry) ([]types.ChannelEntry, error)) ([]types.ChannelEntry, error)

	// Settings
	Settings() (types.Settings, error)
	UpdateSettings(fn func(*types.Settings) error) (types.Settings, error)

	// Fallback runtime
	Runtime() (types.FallbackRuntime, error)
	UpdateRuntime(fn func(*types.FallbackRuntime) error) (types.FallbackRuntime, error)

	// Analytics
	Analytics() (types.AnalyticsState, error)
	UpdateAnalytics(fn func(*types.AnalyticsState) error) (types.AnalyticsState, error)
	ResetAnalytics() error

	// Utility
	Close() error
}
