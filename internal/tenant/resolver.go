package tenant

import "strings"

const (
	// SentinelKey is the rewrite key used when no tenant resolves. Downstream
	// handlers treat it exactly like an unknown page.
	SentinelKey = "-"

	// InternalPrefix is the tenant-scoped path prefix used by the edge rewrite.
	InternalPrefix = "/_sites"
)

// Resolution is the outcome of mapping a request host to a tenant key.
// At most one of Slug and Domain is populated; both empty means no tenant.
type Resolution struct {
	Slug   string
	Domain string
}

// IsZero reports whether the host resolved to no tenant at all.
func (r Resolution) IsZero() bool {
	return r.Slug == "" && r.Domain == ""
}

// Key returns the single path segment carried by the edge rewrite. Slugs never
// contain dots, so the two namespaces stay distinguishable in one segment.
func (r Resolution) Key() string {
	switch {
	case r.Slug != "":
		return r.Slug
	case r.Domain != "":
		return r.Domain
	default:
		return SentinelKey
	}
}

// Outcome labels the resolution for metrics.
func (r Resolution) Outcome() string {
	switch {
	case r.Slug != "":
		return "slug"
	case r.Domain != "":
		return "domain"
	default:
		return "none"
	}
}

// Resolver maps raw Host headers to tenant keys. It is pure and total:
// malformed input resolves to the zero Resolution, never an error.
type Resolver struct {
	rootDomain    string
	devSlug       string
	stagingSuffix string
}

// NewResolver builds a Resolver for the platform root domain. devSlug is the
// fixed tenant served on loopback hosts and staging preview deployments.
func NewResolver(rootDomain, devSlug, stagingSuffix string) *Resolver {
	return &Resolver{
		rootDomain:    strings.ToLower(strings.TrimSpace(rootDomain)),
		devSlug:       devSlug,
		stagingSuffix: strings.ToLower(strings.TrimSpace(stagingSuffix)),
	}
}

// Resolve maps a Host header (possibly carrying a port) to a Resolution.
//
// Rules, in order: development markers resolve to the fixed dev slug; hosts
// outside the root domain are custom-domain lookup keys; exactly one
// subdomain label under the root domain is a tenant slug; everything else,
// including the apex itself, resolves to no tenant.
func (r *Resolver) Resolve(host string) Resolution {
	host = strings.ToLower(strings.TrimSpace(host))
	host = stripPort(host)
	if host == "" {
		return Resolution{}
	}

	if strings.Contains(host, "localhost") || host == "127.0.0.1" {
		return Resolution{Slug: r.devSlug}
	}
	if r.stagingSuffix != "" && strings.HasSuffix(host, r.stagingSuffix) {
		return Resolution{Slug: r.devSlug}
	}

	if r.rootDomain == "" || host == r.rootDomain {
		return Resolution{}
	}

	if !strings.HasSuffix(host, "."+r.rootDomain) {
		return Resolution{Domain: host}
	}

	labels := strings.Split(host, ".")
	rootLabels := strings.Count(r.rootDomain, ".") + 1
	if len(labels) == rootLabels+1 && labels[0] != "" {
		return Resolution{Slug: labels[0]}
	}

	return Resolution{}
}

// stripPort removes a :port suffix from the Host header when present.
func stripPort(host string) string {
	if i := strings.IndexByte(host, ':'); i != -1 {
		return host[:i]
	}
	return host
}
