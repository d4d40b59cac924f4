// Package fallback picks a random live channel from the configured category
// when none of the tracked channels are live, without flapping away from a
// channel the user is already watching under fallback.
package fallback
