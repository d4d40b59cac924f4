// Package config loads the warden daemon configuration from YAML, applies
// environment overrides for secrets, and watches the file for hot reloads.
package config
