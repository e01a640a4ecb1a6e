package middleware

import (
	"net/http"

	"github.com/gatherly/files/internal/tenant"
)

// SiteScope stamps the originating site id into the request context. The
// asset service later switches to the root site around metadata access;
// this middleware records which site the request actually arrived for.
func SiteScope(rootSite int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := tenant.WithSite(r.Context(), tenant.FromRequest(r, rootSite))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
