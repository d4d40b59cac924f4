/*
Package reconciler turns one batch of status results into channel state.

Reconcile is a pure function: it walks the channel list in priority order,
marks each entry live or offline from the status map, records newly-live
and went-offline edges against WasLiveLastCycle, and picks the target, the
live channel with the lowest priority number.

Results are persisted through Merge against the list as it exists at write
time, never the snapshot the cycle started with, so edits made while the
upstream request was in flight survive:

	res := reconciler.Reconcile(snapshot, statuses)
	merged, err := store.UpdateChannels(func(latest []types.ChannelEntry) ([]types.ChannelEntry, error) {
		return reconciler.Merge(latest, res.Channels), nil
	})
	target := reconciler.TargetOf(merged)
*/
package reconciler
