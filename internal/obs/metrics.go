package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	authTokenValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_validations_total",
			Help: "Token validations at the edge gate, by terminal result.",
		},
		[]string{"result"},
	)

	authCacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_cache_events_total",
			Help: "Hits and misses on the auth caches.",
		},
		[]string{"cache", "event"},
	)

	authRevocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_revocations_total",
			Help: "Revocations recorded in the blacklist, by kind.",
		},
		[]string{"kind"},
	)
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		authTokenValidations,
		authCacheEvents,
		authRevocations,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// TokenValidation records one gate decision: allowed, rejected, revoked...
func TokenValidation(result string) {
	authTokenValidations.WithLabelValues(result).Inc()
}

// CacheHit records a hit on the named auth cache.
func CacheHit(cache string) {
	authCacheEvents.WithLabelValues(cache, "hit").Inc()
}

// CacheMiss records a miss on the named auth cache.
func CacheMiss(cache string) {
	authCacheEvents.WithLabelValues(cache, "miss").Inc()
}

// Revocation records one blacklist entry, kind is "token" or "user".
func Revocation(kind string) {
	authRevocations.WithLabelValues(kind).Inc()
}

// Instrument wraps the handler with request rate/latency/in-flight metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for metrics labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
