// Package tenant scopes requests to a logical site.
//
// Asset metadata always lives on the platform's root site, no matter which
// site a request arrived for. Handlers bracket every metadata read/write
// with OnSite so the switch is applied and reverted in one place rather
// than as manual save/restore pairs on each path.
package tenant

import (
	"context"
	"net/http"
	"strconv"
)

type ctxKey struct{}

// HeaderSiteID is the request header carrying the originating site.
const HeaderSiteID = "X-Site-ID"

// WithSite returns a context pinned to the given site id.
func WithSite(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// SiteID returns the site id pinned in ctx, or fallback when none is set.
func SiteID(ctx context.Context, fallback int64) int64 {
	if id, ok := ctx.Value(ctxKey{}).(int64); ok {
		return id
	}
	return fallback
}

// FromRequest extracts the originating site id from the request headers,
// falling back to the root site when absent or malformed.
func FromRequest(r *http.Request, rootSite int64) int64 {
	raw := r.Header.Get(HeaderSiteID)
	if raw == "" {
		return rootSite
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return rootSite
	}
	return id
}

// OnSite runs fn with the scope switched to the given site. The previous
// scope is restored on every exit path; contexts are immutable, so the
// caller's ctx is untouched whether fn succeeds or fails.
func OnSite(ctx context.Context, id int64, fn func(context.Context) error) error {
	return fn(WithSite(ctx, id))
}
