package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "favthing",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, route and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "favthing",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	UpstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "favthing",
		Name:      "upstream_requests_total",
		Help:      "Outbound calls to third-party APIs by upstream and outcome.",
	}, []string{"upstream", "status"})

	UpstreamRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "favthing",
		Name:      "upstream_request_duration_seconds",
		Help:      "Outbound call duration in seconds.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
	}, []string{"upstream"})

	EnrichmentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "favthing",
		Name:      "song_enrichment_total",
		Help:      "Album art enrichment outcomes by winning tier (or none/failed).",
	}, []string{"outcome"})

	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "favthing",
		Name:      "upstream_cache_hits_total",
		Help:      "Upstream response cache hits.",
	}, []string{"upstream"})

	CacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "favthing",
		Name:      "upstream_cache_misses_total",
		Help:      "Upstream response cache misses.",
	}, []string{"upstream"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		UpstreamRequestsTotal,
		UpstreamRequestDuration,
		EnrichmentTotal,
		CacheHitsTotal,
		CacheMissesTotal,
	)
}
