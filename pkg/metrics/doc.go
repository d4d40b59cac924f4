/*
Package metrics provides Prometheus metrics and component health for warden.

All collectors are package-level variables registered with the default
registry in init, and exposed by Handler on /metrics.

# Metric Families

Poll loop:
  - warden_poll_cycles_total{result}          ok, failed, skipped
  - warden_poll_cycle_duration_seconds
  - warden_poll_triggers_skipped_total{trigger} timer, force
  - warden_scheduler_running

Upstream:
  - warden_status_requests_total{outcome}     ok, auth_failed, rate_limited, transient, protocol
  - warden_status_request_duration_seconds{endpoint}
  - warden_status_cache_hits_total

Switching:
  - warden_switches_total{mode}               redirect, prompt_accepted, fallback
  - warden_fallback_rerolls_total{result}     redirected, skipped, no_channel, failed
  - warden_notifications_total{result}        sent, failed, dropped

Control API:
  - warden_api_requests_total{route,status}   route is the mux path template
  - warden_api_request_duration_seconds{route}

State (sampled by Collector):
  - warden_channels_tracked
  - warden_channels_live
  - warden_analytics_switch_count

# Timing

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.PollCycleDuration)

# Health

Components report their state through RegisterComponent and UpdateComponent.
The store, engine and api components are critical: if any of them is
unhealthy /health answers 503 and /ready stays not_ready. A failing
non-critical component such as upstream only marks the daemon degraded.
*/
package metrics
