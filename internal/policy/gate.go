// Package policy decides whether a recipe URL may be fetched: the site must
// be on the local allow-list, its robots.txt must permit the path, and
// requests to one host are spaced by a minimum interval.
package policy

import (
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Options configures a Gate.
type Options struct {
	// Sites overrides the built-in allow-list when non-empty.
	Sites         []string
	UserAgent     string
	RobotsTimeout time.Duration
	MinInterval   time.Duration
	HTTPClient    *http.Client
}

// Gate holds the site allow-list and the settings shared by every Batch.
// A Gate is immutable and safe for concurrent use.
type Gate struct {
	sites         map[string]struct{}
	userAgent     string
	robotsTimeout time.Duration
	minInterval   time.Duration
	httpClient    *http.Client
}

// NewGate creates a Gate.
func NewGate(opts Options) *Gate {
	sites := opts.Sites
	if len(sites) == 0 {
		sites = defaultSites
	}
	set := make(map[string]struct{}, len(sites))
	for _, s := range sites {
		if h := NormalizeHost(s); h != "" {
			set[h] = struct{}{}
		}
	}

	if opts.UserAgent == "" {
		opts.UserAgent = "GroceryPlanBot/1.0"
	}
	if opts.RobotsTimeout <= 0 {
		opts.RobotsTimeout = 5 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}

	return &Gate{
		sites:         set,
		userAgent:     opts.UserAgent,
		robotsTimeout: opts.RobotsTimeout,
		minInterval:   opts.MinInterval,
		httpClient:    opts.HTTPClient,
	}
}

// UserAgent returns the user agent used for robots checks and page fetches.
func (g *Gate) UserAgent() string {
	return g.userAgent
}

// IsSupported reports whether rawURL is an http(s) URL on an allow-listed
// site. It never touches the network.
func (g *Gate) IsSupported(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	_, ok := g.sites[NormalizeHost(u.Host)]
	return ok
}

// SupportedSites returns the allow-listed site identifiers in sorted order.
func (g *Gate) SupportedSites() []string {
	out := make([]string, 0, len(g.sites))
	for s := range g.sites {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// NewBatch starts a batch with its own robots cache and per-host rate gates.
func (g *Gate) NewBatch() *Batch {
	return newBatch(g)
}

// NormalizeHost lower-cases a host, strips any port and a leading "www.".
// A bare site identifier such as "allrecipes.com" normalizes to itself.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if i := strings.Index(host, "://"); i >= 0 {
		if u, err := url.Parse(host); err == nil {
			host = u.Host
		}
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")
	return strings.TrimPrefix(host, "www.")
}
