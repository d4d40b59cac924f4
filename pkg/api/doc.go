/*
Package api implements the warden HTTP control surface.

The API is how collaborators drive the engine: the CLI, the overlay renderer
and the companion browser extension. Routes are served by gorilla/mux under
/v1 and JSON responses are gzip-compressed for clients that accept it.

# Control Routes

	GET    /v1/surface                 managed surface binding
	POST   /v1/poll                    force an out-of-band poll cycle
	POST   /v1/fallback/reroll         force a new fallback channel
	GET    /v1/status                  summary, scheduler and fallback state
	GET    /v1/settings                current settings
	PUT    /v1/settings                overlay fields onto the settings
	GET    /v1/channels                tracked channels by priority
	POST   /v1/channels                track a channel
	DELETE /v1/channels/{name}         stop tracking a channel
	PUT    /v1/channels/{name}/priority
	GET    /v1/analytics               usage counters
	DELETE /v1/analytics               reset usage counters
	GET    /v1/events                  server-sent event stream

# Companion Routes

The companion extension owns the real browser. It reports surfaces and idle
state and polls for what the engine queued:

	PUT    /v1/host/surfaces/{id}
	DELETE /v1/host/surfaces/{id}
	PUT    /v1/host/idle
	GET    /v1/host/navigations/{id}   204 when nothing is pending
	GET    /v1/host/notifications
	GET    /v1/host/prompts
	POST   /v1/host/prompts/{id}       answer a confirmation prompt

# Read-Only Listener

A server built with Options.ReadOnly serves only GET, HEAD and OPTIONS and
never mounts the companion routes. warden run starts one on overlayAddr for
renderers that only need /v1/status and /v1/events.

Every request is logged at debug level and counted in
warden_api_requests_total by route template and status code.
*/
package api
