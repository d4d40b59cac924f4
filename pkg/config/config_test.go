package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
listenAddr: 0.0.0.0:9000
upstream:
  clientID: abc
  requestsPerMinute: 120
  backoff: 250ms
engine:
  minSpacing: 10s
`))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddr)
	assert.Equal(t, "abc", cfg.Upstream.ClientID)
	assert.Equal(t, 120, cfg.Upstream.RequestsPerMinute)
	assert.Equal(t, 250*time.Millisecond, cfg.Upstream.Backoff)
	assert.Equal(t, 10*time.Second, cfg.Engine.MinSpacing)

	// untouched fields keep their defaults
	def := Default()
	assert.Equal(t, def.Upstream.BatchSize, cfg.Upstream.BatchSize)
	assert.Equal(t, def.Upstream.CacheTTL, cfg.Upstream.CacheTTL)
	assert.Equal(t, def.Service, cfg.Service)
	assert.NoError(t, cfg.Validate())
}

func TestParseRejectsBadYAML(t *testing.T) {
	_, err := Parse([]byte("upstream: [unclosed"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvClientID: "client-from-env",
		EnvToken:    "Bearer secret",
		EnvLogLevel: "debug",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	cfg.Upstream.ClientID = "from-file"
	cfg.ApplyEnv(lookup)

	assert.Equal(t, "client-from-env", cfg.Upstream.ClientID)
	assert.Equal(t, "secret", cfg.Upstream.Token)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Upstream.HasCredentials())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "batch too large", mutate: func(c *Config) { c.Upstream.BatchSize = 101 }, wantErr: true},
		{name: "batch zero", mutate: func(c *Config) { c.Upstream.BatchSize = 0 }, wantErr: true},
		{name: "rpm zero", mutate: func(c *Config) { c.Upstream.RequestsPerMinute = 0 }, wantErr: true},
		{name: "spacing zero", mutate: func(c *Config) { c.Engine.MinSpacing = 0 }, wantErr: true},
		{name: "channel url without verb", mutate: func(c *Config) { c.Service.ChannelURL = "https://example.com" }, wantErr: true},
		{name: "no workers", mutate: func(c *Config) { c.Engine.NotificationWorkers = 0 }, wantErr: true},
		{name: "overlay listener", mutate: func(c *Config) { c.OverlayAddr = "127.0.0.1:7879" }},
		{name: "overlay on control address", mutate: func(c *Config) { c.OverlayAddr = c.ListenAddr }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvClientID, "")
	t.Setenv(EnvToken, "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().ListenAddr, cfg.ListenAddr)
	assert.False(t, cfg.Upstream.HasCredentials())
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warden.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listenAddr: 127.0.0.1:1\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) { reloaded <- c })
	}()

	// give the watcher a moment to register
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("listenAddr: 127.0.0.1:2\n"), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "127.0.0.1:2", cfg.ListenAddr)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}

	cancel()
	require.NoError(t, <-done)
}
