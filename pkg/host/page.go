package host

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/grafana/regexp"
)

// reservedPaths are first path segments on the service that are not channels
var reservedPaths = []string{
	"directory", "videos", "settings", "search", "downloads", "jobs", "p",
	"subscriptions", "inventory", "wallet", "drops", "friends", "messages",
	"turbo", "prime", "store", "u", "moderator", "popout", "login", "signup",
	"logout", "following", "clips", "embed", "team", "broadcast",
}

// Page classifies what a surface is showing
type Page struct {
	// OnService is true for any page of the tracked service
	OnService bool
	// Channel is the channel login when the page is a channel page
	Channel string
}

// OnChannelPage reports whether the page is a channel page
func (p Page) OnChannelPage() bool {
	return p.Channel != ""
}

// PageMatcher recognises service and channel pages and builds channel URLs
type PageMatcher struct {
	host       *regexp.Regexp
	channel    *regexp.Regexp
	reserved   map[string]struct{}
	channelURL string
}

// NewPageMatcher builds a matcher for serviceHost (e.g. "twitch.tv").
// channelURL is a format with one %s for the channel login.
func NewPageMatcher(serviceHost, channelURL string) (*PageMatcher, error) {
	serviceHost = strings.ToLower(strings.TrimSpace(serviceHost))
	if serviceHost == "" {
		return nil, fmt.Errorf("service host is required")
	}
	if strings.Count(channelURL, "%s") != 1 {
		return nil, fmt.Errorf("channel URL %q must contain exactly one %%s", channelURL)
	}

	hostRe, err := regexp.Compile(`^([a-z0-9-]+\.)?` + regexp.QuoteMeta(serviceHost) + `$`)
	if err != nil {
		return nil, fmt.Errorf("compile host pattern: %w", err)
	}

	reserved := make(map[string]struct{}, len(reservedPaths))
	for _, p := range reservedPaths {
		reserved[p] = struct{}{}
	}

	return &PageMatcher{
		host:       hostRe,
		channel:    regexp.MustCompile(`^/([A-Za-z0-9_]{1,25})/?$`),
		reserved:   reserved,
		channelURL: channelURL,
	}, nil
}

// Classify inspects a surface URL
func (m *PageMatcher) Classify(raw string) Page {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return Page{}
	}
	if !m.host.MatchString(strings.ToLower(u.Hostname())) {
		return Page{}
	}

	page := Page{OnService: true}
	match := m.channel.FindStringSubmatch(u.EscapedPath())
	if match == nil {
		return page
	}
	login := strings.ToLower(match[1])
	if _, ok := m.reserved[login]; ok {
		return page
	}
	page.Channel = login
	return page
}

// ChannelURL returns the page URL for a channel login
func (m *PageMatcher) ChannelURL(login string) string {
	return fmt.Sprintf(m.channelURL, url.PathEscape(strings.ToLower(login)))
}

// IsChannel reports whether raw is the page of channel login
func (m *PageMatcher) IsChannel(raw, login string) bool {
	return login != "" && strings.EqualFold(m.Classify(raw).Channel, login)
}
