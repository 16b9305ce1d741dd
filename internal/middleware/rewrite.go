package middleware

import (
	"net/http"
	"strings"

	"github.com/pagefeedhq/pagefeed/internal/tenant"
	"github.com/pagefeedhq/pagefeed/pkg/metrics"
)

// excludedPrefixes are namespaces dispatched as-is, without tenant rewriting.
var excludedPrefixes = []string{
	"/api/",
	"/_next/",
	"/assets/",
	"/static/",
	"/health",
	"/metrics",
}

// TenantRewrite wraps the router and rewrites tenant-facing paths onto the
// internal sites namespace before routing happens. The client never sees the
// rewritten path; this is an internal dispatch rewrite, not a redirect.
//
// Resolution failures still rewrite, carrying the sentinel key, so the
// not-found decision is made downstream where it renders identically to an
// inactive subscription.
func TenantRewrite(resolver *tenant.Resolver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if skipRewrite(path) {
			next.ServeHTTP(w, r)
			return
		}

		// The internal namespace is not directly addressable from outside:
		// a spoofed prefix would let callers pick their own tenant key.
		if strings.HasPrefix(path, tenant.InternalPrefix+"/") || path == tenant.InternalPrefix {
			http.NotFound(w, r)
			return
		}

		res := resolver.Resolve(r.Host)
		metrics.TenantResolutions.WithLabelValues(res.Outcome()).Inc()

		r2 := r.Clone(r.Context())
		r2.URL.Path = tenant.InternalPrefix + "/" + res.Key() + path
		r2.URL.RawPath = ""

		next.ServeHTTP(w, r2)
	})
}

func skipRewrite(path string) bool {
	for _, prefix := range excludedPrefixes {
		if strings.HasPrefix(path, prefix) || path == strings.TrimSuffix(prefix, "/") {
			return true
		}
	}

	// Bare static files at the root, e.g. /favicon.ico or /robots.txt.
	if idx := strings.LastIndexByte(path, '/'); idx == 0 && strings.Contains(path[1:], ".") {
		return true
	}

	return false
}
