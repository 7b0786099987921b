package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ephemgo_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ephemgo_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	upstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ephemgo_upstream_requests_total",
			Help: "Total number of calls to the Horizons API, by result.",
		},
		[]string{"result"},
	)

	upstreamDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ephemgo_upstream_duration_seconds",
			Help:    "Horizons API call duration in seconds.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	cacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ephemgo_cache_hits_total",
		Help: "Report cache hits.",
	})

	cacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ephemgo_cache_misses_total",
		Help: "Report cache misses.",
	})

	cacheEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ephemgo_cache_evictions_total",
		Help: "Reports evicted from the cache to stay within capacity.",
	})

	cacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ephemgo_cache_entries",
		Help: "Reports currently held in the cache.",
	})
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(upstreamRequestsTotal)
	prometheus.MustRegister(upstreamDurationSeconds)
	prometheus.MustRegister(cacheHitsTotal)
	prometheus.MustRegister(cacheMissesTotal)
	prometheus.MustRegister(cacheEvictionsTotal)
	prometheus.MustRegister(cacheEntries)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Upstream call results.
const (
	UpstreamOK     = "ok"
	UpstreamStatus = "status"
	UpstreamError  = "error"
)

// ObserveUpstream records one Horizons API call.
func ObserveUpstream(result string, d time.Duration) {
	upstreamRequestsTotal.WithLabelValues(result).Inc()
	upstreamDurationSeconds.Observe(d.Seconds())
}

// IncCacheHits increments the report cache hit counter.
func IncCacheHits() { cacheHitsTotal.Inc() }

// IncCacheMisses increments the report cache miss counter.
func IncCacheMisses() { cacheMissesTotal.Inc() }

// IncCacheEvictions increments the report cache eviction counter.
func IncCacheEvictions() { cacheEvictionsTotal.Inc() }

// SetCacheEntries sets the current cache size gauge.
func SetCacheEntries(n int) {
	cacheEntries.Set(float64(n))
}

var knownRoutes = map[string]bool{
	"/":         true,
	"/healthz":  true,
	"/readyz":   true,
	"/metrics":  true,
	"/planets":  true,
	"/planets/": true,
}

// normalizeRoute maps a request path to a bounded set of label values so
// arbitrary body IDs and scanner traffic don't explode label cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if id, ok := strings.CutPrefix(path, "/planet/"); ok && id != "" && !strings.Contains(id, "/") {
		return "/planet/{planet_id}"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
