// Package metrics provides Prometheus instrumentation for casfad.
package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, route pattern, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "casfa",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route pattern, and status bucket.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and route pattern.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "casfa",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// DelegatesCreatedTotal counts delegates created, roots included.
	DelegatesCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "casfa",
		Name:      "delegates_created_total",
		Help:      "Total delegates created.",
	})

	// DelegatesRevokedTotal counts delegates revoked, cascade members included.
	DelegatesRevokedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "casfa",
		Name:      "delegates_revoked_total",
		Help:      "Total delegates revoked.",
	})

	// TokensRefreshedTotal counts refresh attempts by outcome.
	TokensRefreshedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "casfa",
			Name:      "tokens_refreshed_total",
			Help:      "Total token refresh attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// AuthCodesIssuedTotal counts authorization codes issued.
	AuthCodesIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "casfa",
		Name:      "auth_codes_issued_total",
		Help:      "Total OAuth authorization codes issued.",
	})

	// AuthCodesConsumedTotal counts code-exchange attempts by outcome.
	AuthCodesConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "casfa",
			Name:      "auth_codes_consumed_total",
			Help:      "Total OAuth authorization code consumption attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		DelegatesCreatedTotal,
		DelegatesRevokedTotal,
		TokensRefreshedTotal,
		AuthCodesIssuedTotal,
		AuthCodesConsumedTotal,
	)
}

// Middleware records request metrics. The route pattern is read back from
// chi after the handler runs so the label set stays bounded regardless of
// path parameters.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(r.Method, pattern, statusBucket(ww.Status())).Inc()
	})
}

// Handler returns the Prometheus scrape handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
