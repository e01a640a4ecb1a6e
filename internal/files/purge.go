package files

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Purger invalidates an edge-cache entry for a locally served URL.
type Purger interface {
	Purge(ctx context.Context, url string) error
}

// HTTPPurger issues PURGE requests, the verb reverse proxies and CDNs
// conventionally accept for cache invalidation.
type HTTPPurger struct {
	http *http.Client
}

// NewHTTPPurger creates a purger with the standard client timeout.
func NewHTTPPurger() *HTTPPurger {
	return &HTTPPurger{http: &http.Client{Timeout: clientTimeout}}
}

// Purge asks any intermediary cache to drop its entry for url.
func (p *HTTPPurger) Purge(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, "PURGE", url, nil)
	if err != nil {
		return fmt.Errorf("files: build purge request: %w", err)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("files: purge %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: "purge", StatusCode: resp.StatusCode}
	}
	return nil
}
