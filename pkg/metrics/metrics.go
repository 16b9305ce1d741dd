package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TenantResolutions records host resolution outcomes (slug|domain|dev|none).
	TenantResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagefeed_tenant_resolutions_total",
			Help: "Total number of host to tenant resolutions",
		},
		[]string{"result"},
	)

	// MagicLinksIssued counts magic-link issuance attempts by result
	// (issued|rate_limited|rejected|error).
	MagicLinksIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagefeed_magic_links_issued_total",
			Help: "Total number of magic link issuance attempts",
		},
		[]string{"result"},
	)

	// MagicLinkVerifications counts token redemptions by result
	// (verified|rejected|error).
	MagicLinkVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagefeed_magic_link_verifications_total",
			Help: "Total number of magic link verification attempts",
		},
		[]string{"result"},
	)

	// MailDispatches counts background email deliveries by result (sent|failed|dropped).
	MailDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagefeed_mail_dispatches_total",
			Help: "Total number of background mail dispatch attempts",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagefeed_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
