// Package host defines the boundary between warden and the application that
// owns the viewing surfaces: narrow capability interfaces, a URL classifier
// for the tracked service, and a Bridge that implements the interfaces for a
// companion browser extension talking to the control API.
package host
