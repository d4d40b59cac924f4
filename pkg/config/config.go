package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file values
const (
	EnvClientID = "WARDEN_CLIENT_ID"
	EnvToken    = "WARDEN_TOKEN"
	EnvLogLevel = "WARDEN_LOG_LEVEL"
)

// UpstreamBatchLimit is the most channel names the status API accepts per request
const UpstreamBatchLimit = 100

// Config is the daemon configuration document
type Config struct {
	DataDir     string         `yaml:"dataDir"`
	ListenAddr  string         `yaml:"listenAddr"`
	OverlayAddr string         `yaml:"overlayAddr"` // read-only listener, off when empty
	Log         LogConfig      `yaml:"log"`
	Upstream    UpstreamConfig `yaml:"upstream"`
	Service     ServiceConfig  `yaml:"service"`
	Engine      EngineConfig   `yaml:"engine"`
}

// LogConfig controls the global logger
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// UpstreamConfig describes the status API and the client's limits
type UpstreamConfig struct {
	BaseURL           string        `yaml:"baseURL"`
	ClientID          string        `yaml:"clientID"`
	Token             string        `yaml:"token"`
	BatchSize         int           `yaml:"batchSize"`
	RequestsPerMinute int           `yaml:"requestsPerMinute"`
	MaxRetries        int           `yaml:"maxRetries"`
	Backoff           time.Duration `yaml:"backoff"`
	Timeout           time.Duration `yaml:"timeout"`
	CacheTTL          time.Duration `yaml:"cacheTTL"`
	CategoryPageSize  int           `yaml:"categoryPageSize"`
}

// HasCredentials reports whether both client id and token are set
func (u UpstreamConfig) HasCredentials() bool {
	return u.ClientID != "" && u.Token != ""
}

// ServiceConfig describes the streaming site whose pages the managed surface shows
type ServiceConfig struct {
	Host       string `yaml:"host"`
	ChannelURL string `yaml:"channelURL"`
}

// EngineConfig tunes the poll loop
type EngineConfig struct {
	MinSpacing          time.Duration `yaml:"minSpacing"`
	RetryDelay          time.Duration `yaml:"retryDelay"`
	PromptCooldown      time.Duration `yaml:"promptCooldown"`
	WriteDelay          time.Duration `yaml:"writeDelay"`
	NotificationWorkers int           `yaml:"notificationWorkers"`
}

// Default returns the documented defaults every loaded file is overlaid on
func Default() *Config {
	return &Config{
		DataDir:    "./warden-data",
		ListenAddr: "127.0.0.1:7878",
		Log: LogConfig{
			Level: "info",
		},
		Upstream: UpstreamConfig{
			BaseURL:           "https://api.twitch.tv/helix",
			BatchSize:         UpstreamBatchLimit,
			RequestsPerMinute: 800,
			MaxRetries:        3,
			Backoff:           time.Second,
			Timeout:           30 * time.Second,
			CacheTTL:          30 * time.Second,
			CategoryPageSize:  100,
		},
		Service: ServiceConfig{
			Host:       "twitch.tv",
			ChannelURL: "https://www.twitch.tv/%s",
		},
		Engine: EngineConfig{
			MinSpacing:          5 * time.Second,
			RetryDelay:          30 * time.Second,
			PromptCooldown:      10 * time.Minute,
			WriteDelay:          time.Second,
			NotificationWorkers: 4,
		},
	}
}

// Load reads path, overlays it on the defaults and applies environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			cfg.ApplyEnv(os.LookupEnv)
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a YAML document over the defaults
func Parse(raw []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides secrets and the log level from the environment
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvClientID); ok && v != "" {
		c.Upstream.ClientID = v
	}
	if v, ok := lookup(EnvToken); ok && v != "" {
		c.Upstream.Token = strings.TrimPrefix(v, "Bearer ")
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
}

// Validate rejects values the engine cannot run with
func (c *Config) Validate() error {
	var problems []string

	if c.DataDir == "" {
		problems = append(problems, "dataDir must be set")
	}
	if c.ListenAddr == "" {
		problems = append(problems, "listenAddr must be set")
	}
	if c.OverlayAddr != "" && c.OverlayAddr == c.ListenAddr {
		problems = append(problems, "overlayAddr must differ from listenAddr")
	}
	if c.Upstream.BaseURL == "" {
		problems = append(problems, "upstream.baseURL must be set")
	}
	if c.Upstream.BatchSize < 1 || c.Upstream.BatchSize > UpstreamBatchLimit {
		problems = append(problems, fmt.Sprintf("upstream.batchSize must be between 1 and %d", UpstreamBatchLimit))
	}
	if c.Upstream.RequestsPerMinute <= 0 {
		problems = append(problems, "upstream.requestsPerMinute must be positive")
	}
	if c.Upstream.MaxRetries < 0 {
		problems = append(problems, "upstream.maxRetries must not be negative")
	}
	if c.Upstream.Timeout <= 0 {
		problems = append(problems, "upstream.timeout must be positive")
	}
	if c.Upstream.CategoryPageSize < 1 || c.Upstream.CategoryPageSize > UpstreamBatchLimit {
		problems = append(problems, fmt.Sprintf("upstream.categoryPageSize must be between 1 and %d", UpstreamBatchLimit))
	}
	if c.Service.Host == "" {
		problems = append(problems, "service.host must be set")
	}
	if !strings.Contains(c.Service.ChannelURL, "%s") {
		problems = append(problems, "service.channelURL must contain %s")
	}
	if c.Engine.MinSpacing <= 0 {
		problems = append(problems, "engine.minSpacing must be positive")
	}
	if c.Engine.RetryDelay <= 0 {
		problems = append(problems, "engine.retryDelay must be positive")
	}
	if c.Engine.NotificationWorkers < 1 {
		problems = append(problems, "engine.notificationWorkers must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
