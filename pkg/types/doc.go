/*
Package types defines the data model shared by every warden component.

The four persisted records live here together with the helpers that keep
their invariants intact:

  - ChannelEntry: one tracked channel. Priorities across the list are always
    a dense 1..N sequence after AddChannel, RemoveChannel or MoveChannel.
  - Settings: user preferences. ManagedSurfaceID is non-empty only while
    AutoSwitchEnabled is true; Normalize and DisableAutoSwitch enforce it.
  - FallbackRuntime: scratch state for the current fallback choice.
  - AnalyticsState: append-only counters, cleared only by explicit reset.

Summary is the compact status the engine publishes after each cycle for the
overlay and badge renderers.

# Usage

	list, err := types.AddChannel(nil, "shroud", time.Now())
	list, err = types.AddChannel(list, "pokimane", time.Now())
	list, err = types.MoveChannel(list, "pokimane", 1)
	// list[0].Name == "pokimane", list[0].Priority == 1

Channel names are compared case-insensitively throughout.
*/
package types
