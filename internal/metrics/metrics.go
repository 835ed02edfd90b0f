package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counter: cache lookups by tier and result (hit | miss | error).
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Total cache lookups by tier and result.",
		},
		[]string{"tier", "result"},
	)

	// Counter: incremented once when the remote cache tier degrades to L1-only.
	CacheDegradedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_degraded_total",
			Help: "Times the remote cache tier was disabled after a failure.",
		},
	)

	// Counter: embeddings produced, labelled by the provider that served them.
	EmbeddingsGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embeddings_generated_total",
			Help: "Total embedding vectors generated by provider.",
		},
		[]string{"provider"},
	)

	// Histogram: provider call latency in seconds.
	ProviderLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "embedding_provider_latency_seconds",
			Help:    "Embedding provider call latency in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider"},
	)

	// Histogram: HTTP latency in seconds.
	HTTPLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_latency_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"path", "method", "status_code"},
	)
)

// Register is called once in main() to register metrics.
func Register() {
	prometheus.MustRegister(
		CacheLookupsTotal,
		CacheDegradedTotal,
		EmbeddingsGeneratedTotal,
		ProviderLatencySeconds,
		HTTPLatencySeconds,
	)
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures HTTP latency for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		HTTPLatencySeconds.
			WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(rec.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
