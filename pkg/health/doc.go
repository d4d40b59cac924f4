/*
Package health probes a warden daemon from the outside.

The daemon reports its own component health through pkg/metrics and serves
it on /health, /ready and /live. This package is the other end: an
HTTPChecker fetches one of those endpoints, and Wait repeats the probe until
enough consecutive probes succeed or the context ends. warden wait uses it
so scripts can block until a freshly started daemon is ready:

	checker := health.NewHTTPChecker("http://127.0.0.1:7878/ready")
	status, err := health.Wait(ctx, checker, health.DefaultConfig())

A probe is healthy when the status code falls in the expected range (2xx by
default). When the body is a daemon health document its status and message
become the result message, e.g. "not_ready: waiting for engine".
*/
package health
