package reconciler

import (
	"strings"

	"github.com/cuemby/warden/pkg/status"
	"github.com/cuemby/warden/pkg/types"
)

// Result is the outcome of reconciling one batch of statuses
type Result struct {
	// Channels is the reconciled list in priority order
	Channels []types.ChannelEntry
	// Target is the highest-priority live channel, nil when none is live
	Target *types.ChannelEntry
	// NewlyLive lists channels that went live since the previous cycle
	NewlyLive []types.ChannelEntry
	// WentOffline lists channels that stopped being live
	WentOffline []types.ChannelEntry
	// LiveCount is the number of live channels
	LiveCount int
}

// Reconcile applies statuses to channels. A channel absent from statuses is
// offline. The input slice is not modified.
func Reconcile(channels []types.ChannelEntry, statuses map[string]*status.LiveInfo) Result {
	sorted := types.SortByPriority(channels)
	res := Result{Channels: sorted}

	for i := range sorted {
		ch := &sorted[i]
		info := statuses[strings.ToLower(ch.Name)]

		ch.IsLive = info != nil
		ch.LiveMetadata = info.Metadata()

		// edges compare against the previous cycle's liveness
		switch {
		case ch.IsLive && !ch.WasLiveLastCycle:
			res.NewlyLive = append(res.NewlyLive, *ch)
		case !ch.IsLive && ch.WasLiveLastCycle:
			res.WentOffline = append(res.WentOffline, *ch)
		}
		ch.WasLiveLastCycle = ch.IsLive

		if ch.IsLive {
			res.LiveCount++
		}
	}

	res.Target = TargetOf(sorted)
	return res
}

// TargetOf returns a copy of the lowest-priority-number live channel, or nil
func TargetOf(channels []types.ChannelEntry) *types.ChannelEntry {
	for _, ch := range types.SortByPriority(channels) {
		if ch.IsLive {
			target := ch
			return &target
		}
	}
	return nil
}

// Merge copies liveness fields from reconciled onto latest, the list as it is
// persisted right now. Channels added since the cycle started keep their
// state; channels removed since then stay removed. Name, priority and
// insertion time always come from latest.
func Merge(latest, reconciled []types.ChannelEntry) []types.ChannelEntry {
	byName := make(map[string]types.ChannelEntry, len(reconciled))
	for _, ch := range reconciled {
		byName[strings.ToLower(ch.Name)] = ch
	}

	merged := make([]types.ChannelEntry, len(latest))
	for i, ch := range latest {
		if r, ok := byName[strings.ToLower(ch.Name)]; ok {
			ch.IsLive = r.IsLive
			ch.LiveMetadata = r.LiveMetadata
			ch.WasLiveLastCycle = r.WasLiveLastCycle
		}
		merged[i] = ch
	}
	return types.SortByPriority(merged)
}
