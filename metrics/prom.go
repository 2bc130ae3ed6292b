package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PasteCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snipbin_paste_created_total",
		Help: "no. of pastes created",
	})
	PasteRetrieved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snipbin_paste_retrieved_total",
		Help: "no. of pastes retrieved",
	})
	TokensIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snipbin_tokens_issued_total",
		Help: "no. of tokens issued by the identity pipeline",
	})
	ClockSkewFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snipbin_clock_skew_failures_total",
		Help: "no. of ID issuance failures due to backwards clock",
	})
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snipbin_cache_hits_total",
			Help: "no. of cache hits",
		},
		[]string{"layer"},
	)
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snipbin_cache_misses_total",
		Help: "no. of reads that fell through to the repository",
	})
	RateLimitHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snipbin_rate_limit_hits_total",
		Help: "no. of creations rejected by the rate limiter",
	})
	PruneCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snipbin_prune_cycles_total",
		Help: "no. of expired-paste cleanup cycles",
	})
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snipbin_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
)

// Init forces package initialization so collectors register before the
// first request is served.
func Init() {
}
