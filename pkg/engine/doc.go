/*
Package engine runs the warden poll loop.

An Engine is built once at startup from explicit dependencies (store, write
queue, status client, host capabilities) and serves a single goroutine in
Run. Everything that mutates engine state happens on that goroutine: timer
ticks from the scheduler, commands from collaborators and host events from
the companion bridge.

# Commands

ForcePollNow, ForceFallbackReroll, ManagedSurfaceID, SettingsChanged,
SetCredentials, SetIdle, SurfaceRemoved and AnswerPrompt may be called from
any goroutine at any time. They are queued on a buffered channel created in
New and answered once Run has finished startup, so callers that arrive
early wait instead of being dropped.

# Cycle

One cycle runs these steps in order, stopping at the first failing one:

 1. flush the write queue
 2. read settings and the channel list
 3. look up live status for every tracked channel
 4. reconcile priorities and merge liveness into the latest channel list
 5. publish live/offline edges and queue desktop notifications
 6. evaluate and redirect the managed surface
 7. apply or end fallback
 8. accrue viewing time (supporter mode)
 9. publish the status summary

Runtime and analytics writes go through the debounced write queue; the
channel list and settings are written immediately.
*/
package engine
