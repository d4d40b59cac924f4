package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/metrics"
	"github.com/cuemby/warden/pkg/types"
	"github.com/rs/zerolog"
	"go.uber.org/ratelimit"
)

// maxBodySize bounds how much of a response body is read
const maxBodySize = 4 << 20

// Clock abstracts time for the limiter, cache and rate window
type Clock interface {
	Now() time.Time
	Sleep(time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// LiveInfo describes a channel that is currently live
type LiveInfo struct {
	Login        string    `json:"user_login"`
	DisplayName  string    `json:"user_name"`
	Title        string    `json:"title"`
	CategoryID   string    `json:"game_id"`
	CategoryName string    `json:"game_name"`
	ViewerCount  int       `json:"viewer_count"`
	StartedAt    time.Time `json:"started_at"`
	ThumbnailURL string    `json:"thumbnail_url"`
}

// Metadata converts the upstream record to the persisted form
func (l *LiveInfo) Metadata() *types.LiveMetadata {
	if l == nil {
		return nil
	}
	return &types.LiveMetadata{
		Title:        l.Title,
		CategoryName: l.CategoryName,
		ThumbnailURL: l.ThumbnailURL,
		ViewerCount:  l.ViewerCount,
		StartedAt:    l.StartedAt,
	}
}

// ChannelRef identifies a live channel picked from a category
type ChannelRef struct {
	Login       string `json:"login"`
	DisplayName string `json:"displayName"`
	Title       string `json:"title"`
	ViewerCount int    `json:"viewerCount"`
}

// RateWindow counts physical requests in the current minute
type RateWindow struct {
	WindowStart   time.Time `json:"windowStart"`
	CountInWindow int       `json:"countInWindow"`
}

// Credentials authenticate upstream requests
type Credentials struct {
	ClientID string
	Token    string
}

// Configured reports whether both parts are present
func (c Credentials) Configured() bool {
	return c.ClientID != "" && c.Token != ""
}

// Options configures a Client
type Options struct {
	BaseURL           string
	Credentials       Credentials
	BatchSize         int
	RequestsPerMinute int
	MaxRetries        int
	Backoff           time.Duration
	Timeout           time.Duration
	CacheTTL          time.Duration
	CategoryPageSize  int

	HTTPClient *http.Client
	Clock      Clock
	// Sleep waits between retries; defaults to a context-aware sleep on Clock
	Sleep func(ctx context.Context, d time.Duration) error
	// Intn picks the random fallback channel; defaults to math/rand/v2
	Intn func(n int) int
}

// Client is the batched, cached, rate-limited status lookup client
type Client struct {
	baseURL    string
	batchSize  int
	maxRetries int
	backoff    time.Duration
	timeout    time.Duration
	pageSize   int

	httpClient *http.Client
	clock      Clock
	sleep      func(ctx context.Context, d time.Duration) error
	intn       func(n int) int
	limiter    ratelimit.Limiter
	cache      *responseCache
	logger     zerolog.Logger

	credMu sync.RWMutex
	creds  Credentials

	windowMu sync.Mutex
	window   RateWindow
}

// NewClient creates a status client
func NewClient(opts Options) *Client {
	if opts.BatchSize <= 0 || opts.BatchSize > 100 {
		opts.BatchSize = 100
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = 800
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.CategoryPageSize <= 0 || opts.CategoryPageSize > 100 {
		opts.CategoryPageSize = 100
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	clock := opts.Clock
	if opts.Sleep == nil {
		if _, ok := clock.(realClock); ok {
			opts.Sleep = sleepContext
		} else {
			opts.Sleep = func(ctx context.Context, d time.Duration) error {
				clock.Sleep(d)
				return ctx.Err()
			}
		}
	}
	if opts.Intn == nil {
		opts.Intn = rand.IntN
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		batchSize:  opts.BatchSize,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		timeout:    opts.Timeout,
		pageSize:   opts.CategoryPageSize,
		httpClient: opts.HTTPClient,
		clock:      clock,
		sleep:      opts.Sleep,
		intn:       opts.Intn,
		limiter: ratelimit.New(opts.RequestsPerMinute,
			ratelimit.Per(time.Minute),
			ratelimit.WithoutSlack,
			ratelimit.WithClock(clock),
		),
		cache:  newResponseCache(opts.CacheTTL, clock),
		logger: log.WithComponent("status-client"),
		creds:  opts.Credentials,
		window: RateWindow{WindowStart: clock.Now()},
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetCredentials swaps the credentials and drops every cached response
func (c *Client) SetCredentials(creds Credentials) {
	c.credMu.Lock()
	c.creds = creds
	c.credMu.Unlock()
	c.cache.clear()
}

// Configured reports whether credentials are present
func (c *Client) Configured() bool {
	return c.credentials().Configured()
}

func (c *Client) credentials() Credentials {
	c.credMu.RLock()
	defer c.credMu.RUnlock()
	return c.creds
}

// RateWindow returns a snapshot of the request counter
func (c *Client) RateWindow() RateWindow {
	c.windowMu.Lock()
	defer c.windowMu.Unlock()
	c.rollWindowLocked(c.clock.Now())
	return c.window
}

func (c *Client) rollWindowLocked(now time.Time) {
	if now.Sub(c.window.WindowStart) >= time.Minute {
		c.window = RateWindow{WindowStart: now}
	}
}

// throttle blocks until the limiter admits one physical request and counts it
func (c *Client) throttle() {
	c.limiter.Take()

	c.windowMu.Lock()
	c.rollWindowLocked(c.clock.Now())
	c.window.CountInWindow++
	c.windowMu.Unlock()
}

// CheckStatuses looks up every name and returns an entry for each one, nil
// meaning offline. A failed batch degrades its names to offline unless the
// failure is an auth or rate-limit error, which is returned immediately.
func (c *Client) CheckStatuses(ctx context.Context, names []string) (map[string]*LiveInfo, error) {
	if !c.Configured() {
		return nil, ErrUnconfigured
	}

	unique := dedupe(names)
	result := make(map[string]*LiveInfo, len(unique))
	for _, name := range unique {
		result[name] = nil
	}

	for start := 0; start < len(unique); start += c.batchSize {
		end := min(start+c.batchSize, len(unique))
		batch := unique[start:end]

		streams, err := c.fetchStreams(ctx, batch)
		if err != nil {
			if Fatal(err) || ctx.Err() != nil {
				return nil, err
			}
			c.logger.Warn().
				Err(err).
				Int("batch_size", len(batch)).
				Msg("Status batch failed, treating channels as offline")
			continue
		}

		for i := range streams {
			login := strings.ToLower(streams[i].Login)
			if _, requested := result[login]; requested {
				info := streams[i]
				result[login] = &info
			}
		}
	}

	return result, nil
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func (c *Client) fetchStreams(ctx context.Context, logins []string) ([]LiveInfo, error) {
	q := url.Values{}
	for _, l := range logins {
		q.Add("user_login", l)
	}
	q.Set("first", strconv.Itoa(len(logins)))

	var streams []LiveInfo
	if err := c.get(ctx, "streams", "/streams?"+q.Encode(), &streams); err != nil {
		return nil, err
	}
	return streams, nil
}

// FindCategoryID resolves a category name, returning "" when unknown
func (c *Client) FindCategoryID(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}
	if !c.Configured() {
		return "", ErrUnconfigured
	}

	q := url.Values{}
	q.Set("name", name)

	var games []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := c.get(ctx, "games", "/games?"+q.Encode(), &games); err != nil {
		return "", err
	}
	for _, g := range games {
		if strings.EqualFold(g.Name, name) {
			return g.ID, nil
		}
	}
	if len(games) > 0 {
		return games[0].ID, nil
	}
	return "", nil
}

// RandomLiveChannelInCategory picks a uniformly random live channel from the
// first page of the category. Nil means the category is unknown or empty.
func (c *Client) RandomLiveChannelInCategory(ctx context.Context, name string) (*ChannelRef, error) {
	id, err := c.FindCategoryID(ctx, name)
	if err != nil || id == "" {
		return nil, err
	}

	q := url.Values{}
	q.Set("game_id", id)
	q.Set("first", strconv.Itoa(c.pageSize))

	var streams []LiveInfo
	if err := c.get(ctx, "category_streams", "/streams?"+q.Encode(), &streams); err != nil {
		return nil, err
	}
	if len(streams) == 0 {
		return nil, nil
	}

	pick := streams[c.intn(len(streams))]
	return &ChannelRef{
		Login:       pick.Login,
		DisplayName: pick.DisplayName,
		Title:       pick.Title,
		ViewerCount: pick.ViewerCount,
	}, nil
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

// get serves path from the cache or fetches it with retries, decoding the
// data array into out.
func (c *Client) get(ctx context.Context, endpoint, path string, out any) error {
	reqURL := c.baseURL + path

	if body, ok := c.cache.get(reqURL); ok {
		metrics.StatusCacheHits.Inc()
		return decode(body, out)
	}

	for attempt := 0; ; attempt++ {
		c.throttle()

		timer := metrics.NewTimer()
		body, err := c.do(ctx, reqURL)
		timer.ObserveDurationVec(metrics.StatusRequestDuration, endpoint)

		if err == nil {
			if err = decode(body, out); err == nil {
				metrics.StatusRequestsTotal.WithLabelValues("ok").Inc()
				c.cache.put(reqURL, body)
				return nil
			}
		}
		metrics.StatusRequestsTotal.WithLabelValues(outcome(err)).Inc()

		var wait time.Duration
		var rl *RateLimitedError
		switch {
		case errors.As(err, &rl):
			wait = rl.RetryAfter
		case errors.Is(err, ErrTransient):
			wait = c.backoff << attempt
		default:
			return err
		}

		if attempt >= c.maxRetries {
			return err
		}

		c.logger.Debug().
			Err(err).
			Str("endpoint", endpoint).
			Int("attempt", attempt+1).
			Dur("wait", wait).
			Msg("Retrying upstream request")

		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func decode(body []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("%w: missing data array", ErrProtocol)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrAuthFailure):
		return "auth_failed"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	default:
		return "error"
	}
}

// do performs one physical request and classifies the outcome
func (c *Client) do(ctx context.Context, reqURL string) ([]byte, error) {
	creds := c.credentials()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	req.Header.Set("Client-Id", creds.ClientID)
	req.Header.Set("Authorization", "Bearer "+creds.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return nil, fmt.Errorf("%w: reading body: %w", ErrTransient, err)
		}
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrAuthFailure
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitedError{RetryAfter: advisedWait(resp.Header, c.clock.Now())}
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: status %d", ErrProtocol, resp.StatusCode)
	}
}
