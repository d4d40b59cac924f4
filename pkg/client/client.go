package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuemby/warden/pkg/api"
	"github.com/cuemby/warden/pkg/types"
)

const (
	requestTimeout = 10 * time.Second
	// forced cycles wait for the engine loop and the upstream lookup
	commandTimeout = 45 * time.Second
)

// APIError is a non-2xx answer from the control API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Client wraps the warden control API for easy CLI usage
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for the daemon listening on addr. addr may be
// host:port or a full http(s) URL.
func NewClient(addr string) (*Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("daemon address is empty")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid daemon address %q: %w", addr, err)
	}

	return &Client{
		base: strings.TrimRight(u.String(), "/"),
		http: &http.Client{},
	}, nil
}

// Close releases idle connections
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) do(timeout time.Duration, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach daemon: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			apiErr.Message = e.Error
		}
		// accepted actions that failed still carry a decodable body
		if out != nil {
			_ = json.Unmarshal(raw, out)
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Status returns the daemon status
func (c *Client) Status() (*api.StatusResponse, error) {
	var out api.StatusResponse
	if err := c.do(requestTimeout, http.MethodGet, "/v1/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ManagedSurface returns the managed surface binding
func (c *Client) ManagedSurface() (*api.SurfaceResponse, error) {
	var out api.SurfaceResponse
	if err := c.do(requestTimeout, http.MethodGet, "/v1/surface", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ForcePoll asks for an out-of-band poll cycle
func (c *Client) ForcePoll() (*api.ActionResponse, error) {
	var out api.ActionResponse
	err := c.do(commandTimeout, http.MethodPost, "/v1/poll", nil, &out)
	return &out, err
}

// ForceReroll asks for a new fallback channel
func (c *Client) ForceReroll() (*api.ActionResponse, error) {
	var out api.ActionResponse
	err := c.do(commandTimeout, http.MethodPost, "/v1/fallback/reroll", nil, &out)
	return &out, err
}

// Settings returns the current settings
func (c *Client) Settings() (*types.Settings, error) {
	var out types.Settings
	if err := c.do(requestTimeout, http.MethodGet, "/v1/settings", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateSettings overlays patch onto the settings. Keys use the settings
// JSON names, e.g. "autoSwitchEnabled".
func (c *Client) UpdateSettings(patch map[string]any) (*types.Settings, error) {
	var out types.Settings
	if err := c.do(commandTimeout, http.MethodPut, "/v1/settings", patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListChannels lists tracked channels in priority order
func (c *Client) ListChannels() ([]types.ChannelEntry, error) {
	var out []types.ChannelEntry
	if err := c.do(requestTimeout, http.MethodGet, "/v1/channels", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddChannel tracks name at the lowest priority
func (c *Client) AddChannel(name string) ([]types.ChannelEntry, error) {
	var out []types.ChannelEntry
	if err := c.do(requestTimeout, http.MethodPost, "/v1/channels", api.ChannelRequest{Name: name}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveChannel stops tracking name
func (c *Client) RemoveChannel(name string) ([]types.ChannelEntry, error) {
	var out []types.ChannelEntry
	if err := c.do(requestTimeout, http.MethodDelete, "/v1/channels/"+url.PathEscape(name), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MoveChannel places name at a 1-based priority
func (c *Client) MoveChannel(name string, priority int) ([]types.ChannelEntry, error) {
	var out []types.ChannelEntry
	path := "/v1/channels/" + url.PathEscape(name) + "/priority"
	if err := c.do(requestTimeout, http.MethodPut, path, api.PriorityRequest{Priority: priority}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Analytics returns the usage counters
func (c *Client) Analytics() (*types.AnalyticsState, error) {
	var out types.AnalyticsState
	if err := c.do(requestTimeout, http.MethodGet, "/v1/analytics", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResetAnalytics clears the usage counters
func (c *Client) ResetAnalytics() error {
	return c.do(requestTimeout, http.MethodDelete, "/v1/analytics", nil, nil)
}
