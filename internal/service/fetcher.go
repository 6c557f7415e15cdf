package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/windoze95/groceryplan-api/internal/models"
)

// maxPageBytes caps how much of a recipe page is read.
const maxPageBytes = 2 * 1024 * 1024

// PageFetcher retrieves the raw content of a page.
type PageFetcher interface {
	FetchPage(ctx context.Context, pageURL string) ([]byte, error)
}

// RecipePageExtractor turns raw page content into an unsaved recipe.
type RecipePageExtractor interface {
	Extract(ctx context.Context, pageURL string, html []byte) (*models.Recipe, error)
}

// PageArchiver keeps a copy of a page that produced a corpus recipe.
type PageArchiver interface {
	ArchivePage(ctx context.Context, recipeID uint, sourceURL string, html []byte) (string, error)
}

// HTTPFetcher fetches pages over HTTP with a fixed user agent and timeout.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
}

// NewHTTPFetcher creates an HTTPFetcher. A zero timeout means no deadline
// beyond the caller's context.
func NewHTTPFetcher(userAgent string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client:    &http.Client{},
		userAgent: userAgent,
		timeout:   timeout,
	}
}

// FetchPage GETs pageURL and returns at most maxPageBytes of its body.
func (f *HTTPFetcher) FetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("URL returned status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return nil, fmt.Errorf("URL returned %s, not HTML", ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read URL body: %w", err)
	}
	return body, nil
}
