/*
Package storage provides BoltDB-backed persistence for warden's state.

Four logical records live as JSON values in a single "records" bucket of
<dataDir>/warden.db:

	channels   []types.ChannelEntry   written immediately
	settings   types.Settings         overlaid on types.DefaultSettings
	runtime    types.FallbackRuntime  written through WriteQueue
	analytics  types.AnalyticsState   written through WriteQueue

Every read decodes the stored JSON on top of the record's defaults, so a
record written by an older build that lacks newer fields still loads with
sensible values.

# Read-modify-write

All mutations go through UpdateChannels, UpdateSettings, UpdateRuntime or
UpdateAnalytics. The callback receives the record as it exists inside the
write transaction, never a snapshot taken earlier:

	_, err := store.UpdateChannels(func(latest []types.ChannelEntry) ([]types.ChannelEntry, error) {
		return reconciler.Merge(latest, result.Channels), nil
	})

# Coalesced writes

WriteQueue batches runtime and analytics mutations and commits them after a
short delay. The engine calls Flush at the start of every cycle and Close on
shutdown. Reads through the queue apply pending mutations, so callers see
their own writes before they hit disk.
*/
package storage
