/*
Package status implements the batched live-status client.

Client looks up channel liveness against a Helix-shaped HTTP API:

	GET {base}/streams?user_login=a&user_login=b&first=2
	GET {base}/games?name=Just+Chatting
	GET {base}/streams?game_id=509658&first=100

Every request carries Client-Id and a bearer token. Responses are
{"data":[...]} envelopes that list only live channels.

# Limits

  - At most BatchSize names per physical request (upstream maximum 100).
  - A go.uber.org/ratelimit limiter without slack spaces requests so no
    rolling minute exceeds RequestsPerMinute. RateWindow counts them.
  - Successful bodies are cached by exact request URL for CacheTTL. A cache
    hit never touches the limiter or the counter.

# Errors

	401            ErrAuthFailure, returned at once
	429            wait the advised time and retry, then *RateLimitedError
	5xx / network  retry with doubling backoff, then ErrTransient
	other          ErrProtocol, never retried

CheckStatuses degrades a failed batch to offline unless Fatal(err) holds.
Without credentials every lookup fails fast with ErrUnconfigured.
*/
package status
