/*
Package scheduler decides when warden's poll cycles run.

The Scheduler is a clock-driven state machine with no goroutines or timers
of its own. The engine loop owns a single time.Timer, arms it from NextWake,
and on every wake-up asks Due. Forced polls go through TryForce. Either way
the engine brackets the cycle with CycleStarted and CycleFinished.

# States

	running                      polling every interval
	stopped / disabled           engine shut down
	stopped / unconfigured       no upstream credentials
	stopped / auth_failed        credentials rejected, waits for Reconfigure
	stopped / idle               host idle or locked, waits for activity
	stopped / backoff            one deferred retry pending

Entering running always schedules an immediate cycle. No cycle of any kind
starts less than MinSpacing after the previous start, and at most one is in
flight. A rate-limited cycle retries after max(RetryDelay, advised wait); a
transient failure after RetryDelay. A pending retry survives idle periods
and reconfiguration with unchanged credentials. Auth failures are never
retried until the credentials change.
*/
package scheduler
