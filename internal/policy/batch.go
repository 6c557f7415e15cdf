package policy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"github.com/windoze95/groceryplan-api/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrRobotsDisallowed means the site's robots.txt forbids the path for our agent.
	ErrRobotsDisallowed = errors.New("disallowed by robots.txt")
	// ErrRobotsUnavailable means no policy could be confirmed; treated as a deny.
	ErrRobotsUnavailable = errors.New("robots.txt unavailable")
)

const (
	maxRobotsBytes = 512 * 1024
	maxCrawlDelay  = 10 * time.Second
)

type robotsEntry struct {
	ready chan struct{}
	group *robotstxt.Group
	err   error
}

// Batch carries the robots cache and per-host rate gates for one acquisition
// batch. It is safe for concurrent use by the batch's workers and must not be
// shared across batches.
type Batch struct {
	gate *Gate

	mu       sync.Mutex
	robots   map[string]*robotsEntry
	limiters map[string]*rate.Limiter
}

func newBatch(g *Gate) *Batch {
	return &Batch{
		gate:     g,
		robots:   make(map[string]*robotsEntry),
		limiters: make(map[string]*rate.Limiter),
	}
}

// IsAllowedByRobots reports whether the site's robots.txt permits rawURL.
// Any failure to confirm a policy yields false.
func (b *Batch) IsAllowedByRobots(ctx context.Context, rawURL string) bool {
	return b.CheckRobots(ctx, rawURL) == nil
}

// CheckRobots returns nil when robots.txt permits rawURL, ErrRobotsDisallowed
// when it forbids it, and an error wrapping ErrRobotsUnavailable when the
// policy could not be retrieved or parsed.
func (b *Batch) CheckRobots(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: invalid url %q", ErrRobotsUnavailable, rawURL)
	}

	entry, err := b.robotsFor(ctx, u)
	if err != nil {
		return err
	}
	if entry.err != nil {
		return entry.err
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	if !entry.group.Test(path) {
		return ErrRobotsDisallowed
	}
	return nil
}

// robotsFor returns the cached entry for the URL's origin, fetching it once.
// Concurrent callers for the same origin wait on the first caller's fetch.
func (b *Batch) robotsFor(ctx context.Context, u *url.URL) (*robotsEntry, error) {
	origin := strings.ToLower(u.Scheme + "://" + u.Host)

	b.mu.Lock()
	entry, ok := b.robots[origin]
	if !ok {
		entry = &robotsEntry{ready: make(chan struct{})}
		b.robots[origin] = entry
	}
	b.mu.Unlock()

	if !ok {
		// Detached from the caller so a cancelled worker does not poison the
		// cache for its siblings; the robots timeout still bounds it.
		entry.group, entry.err = b.fetchRobots(context.WithoutCancel(ctx), u, origin)
		if entry.group != nil {
			b.applyCrawlDelay(u, entry.group.CrawlDelay)
		}
		close(entry.ready)
		return entry, nil
	}

	select {
	case <-entry.ready:
		return entry, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrRobotsUnavailable, ctx.Err())
	}
}

// fetchRobots retrieves and parses origin's robots.txt. The request counts
// against the host's rate gate like any page fetch. Anything other than a 2xx
// with a parseable body is ErrRobotsUnavailable, including 404 and 410.
func (b *Batch) fetchRobots(ctx context.Context, u *url.URL, origin string) (*robotstxt.Group, error) {
	ctx, cancel := context.WithTimeout(ctx, b.gate.robotsTimeout)
	defer cancel()

	log := logger.With(zap.String("origin", origin))

	if err := b.limiterFor(u).Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRobotsUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRobotsUnavailable, err)
	}
	req.Header.Set("User-Agent", b.gate.userAgent)

	resp, err := b.gate.httpClient.Do(req)
	if err != nil {
		log.Warn("robots.txt fetch failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrRobotsUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn("robots.txt returned non-success status", zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: status %d", ErrRobotsUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRobotsUnavailable, err)
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		log.Warn("robots.txt parse failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrRobotsUnavailable, err)
	}
	return data.FindGroup(b.gate.userAgent), nil
}

// Wait blocks until a request to rawURL's host may be made. Requests to the
// same host are spaced by the gate's minimum interval, or the site's
// Crawl-delay when that is longer. Different hosts never throttle each other.
func (b *Batch) Wait(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	return b.limiterFor(u).Wait(ctx)
}

func (b *Batch) limiterFor(u *url.URL) *rate.Limiter {
	host := strings.ToLower(u.Host)

	b.mu.Lock()
	defer b.mu.Unlock()

	if l, ok := b.limiters[host]; ok {
		return l
	}

	limit := rate.Inf
	if b.gate.minInterval > 0 {
		limit = rate.Every(b.gate.minInterval)
	}
	l := rate.NewLimiter(limit, 1)
	b.limiters[host] = l
	return l
}

// applyCrawlDelay slows the host's gate to the site's Crawl-delay when that
// is longer than the minimum interval, capped at maxCrawlDelay.
func (b *Batch) applyCrawlDelay(u *url.URL, delay time.Duration) {
	interval := min(delay, maxCrawlDelay)
	if interval <= b.gate.minInterval {
		return
	}
	b.limiterFor(u).SetLimit(rate.Every(interval))
}
