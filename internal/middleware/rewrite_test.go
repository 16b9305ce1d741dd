package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pagefeedhq/pagefeed/internal/tenant"
)

func serveRewrite(t *testing.T, host, target string) (string, string, int) {
	t.Helper()

	resolver := tenant.NewResolver("pagefeed.io", "demo", ".pagefeed.dev")

	var gotPath, gotQuery string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Host = host
	rec := httptest.NewRecorder()

	TenantRewrite(resolver, next).ServeHTTP(rec, req)
	return gotPath, gotQuery, rec.Code
}

func TestTenantRewriteSubdomain(t *testing.T) {
	path, query, code := serveRewrite(t, "acme.pagefeed.io", "/changelog?page=2")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "/_sites/acme/changelog", path)
	require.Equal(t, "page=2", query)
}

func TestTenantRewriteCustomDomain(t *testing.T) {
	path, _, code := serveRewrite(t, "updates.example.com:443", "/")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "/_sites/updates.example.com/", path)
}

func TestTenantRewriteSentinelForUnresolvableHost(t *testing.T) {
	path, _, code := serveRewrite(t, "pagefeed.io", "/changelog")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "/_sites/-/changelog", path)
}

func TestTenantRewriteSkipsExcludedPrefixes(t *testing.T) {
	for _, target := range []string{
		"/api/auth/me",
		"/assets/app.js",
		"/static/logo.png",
		"/health",
		"/metrics",
		"/favicon.ico",
		"/robots.txt",
	} {
		path, _, code := serveRewrite(t, "acme.pagefeed.io", target)
		require.Equal(t, http.StatusOK, code, "target %s", target)
		require.Equal(t, target, path, "target %s", target)
	}
}

func TestTenantRewriteDottedSubdirectoryFileIsRewritten(t *testing.T) {
	// Only bare root-level files skip the rewrite.
	path, _, _ := serveRewrite(t, "acme.pagefeed.io", "/docs/intro.html")
	require.Equal(t, "/_sites/acme/docs/intro.html", path)
}

func TestTenantRewriteBlocksDirectInternalPaths(t *testing.T) {
	path, _, code := serveRewrite(t, "acme.pagefeed.io", "/_sites/other/changelog")
	require.Equal(t, http.StatusNotFound, code)
	require.Empty(t, path)
}
