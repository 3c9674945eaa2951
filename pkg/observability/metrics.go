package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authentication and authorization
	AuthResolutionsTotal *prometheus.CounterVec
	AuthzDenialsTotal    *prometheus.CounterVec
	LoginAttemptsTotal   *prometheus.CounterVec
	SignupsTotal         *prometheus.CounterVec

	// Rate limiting
	RateLimitDecisionsTotal *prometheus.CounterVec
	RateLimitErrorsTotal    *prometheus.CounterVec

	// Store
	StoreOperationDuration *prometheus.HistogramVec
	StoreErrorsTotal       *prometheus.CounterVec

	// Avatar URL cache
	AvatarCacheHitsTotal   prometheus.Counter
	AvatarCacheMissesTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "larder_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "larder_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "larder_auth_resolutions_total",
				Help: "Identity resolutions by outcome",
			},
			[]string{"outcome"},
		),
		AuthzDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "larder_authz_denials_total",
				Help: "Authorization denials by reason",
			},
			[]string{"reason"},
		),
		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "larder_login_attempts_total",
				Help: "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		SignupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "larder_signups_total",
				Help: "Signups by outcome",
			},
			[]string{"outcome"},
		),
		RateLimitDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "larder_rate_limit_decisions_total",
				Help: "Rate limit decisions by limiter and outcome",
			},
			[]string{"limiter", "outcome"},
		),
		RateLimitErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "larder_rate_limit_errors_total",
				Help: "Rate limit counter store failures",
			},
			[]string{"limiter"},
		),
		StoreOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "larder_store_operation_duration_seconds",
				Help:    "Membership store operation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),
		StoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "larder_store_errors_total",
				Help: "Membership store errors",
			},
			[]string{"operation"},
		),
		AvatarCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "larder_avatar_cache_hits_total",
				Help: "Presigned avatar URL cache hits",
			},
		),
		AvatarCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "larder_avatar_cache_misses_total",
				Help: "Presigned avatar URL cache misses",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthResolutionsTotal,
		m.AuthzDenialsTotal,
		m.LoginAttemptsTotal,
		m.SignupsTotal,
		m.RateLimitDecisionsTotal,
		m.RateLimitErrorsTotal,
		m.StoreOperationDuration,
		m.StoreErrorsTotal,
		m.AvatarCacheHitsTotal,
		m.AvatarCacheMissesTotal,
	)

	return m
}

// RecordAuthResolution counts an identity resolution outcome
func (m *Metrics) RecordAuthResolution(outcome string) {
	if m == nil {
		return
	}
	m.AuthResolutionsTotal.WithLabelValues(outcome).Inc()
}

// RecordAuthzDenial counts a denied authorization check
func (m *Metrics) RecordAuthzDenial(reason string) {
	if m == nil {
		return
	}
	m.AuthzDenialsTotal.WithLabelValues(reason).Inc()
}

// RecordLogin counts a login attempt outcome
func (m *Metrics) RecordLogin(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordSignup counts a signup outcome
func (m *Metrics) RecordSignup(outcome string) {
	if m == nil {
		return
	}
	m.SignupsTotal.WithLabelValues(outcome).Inc()
}

// RecordRateLimit counts an allow/deny decision for a named limiter
func (m *Metrics) RecordRateLimit(limiter string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.RateLimitDecisionsTotal.WithLabelValues(limiter, outcome).Inc()
}

// RecordRateLimitError counts a counter store failure
func (m *Metrics) RecordRateLimitError(limiter string) {
	if m == nil {
		return
	}
	m.RateLimitErrorsTotal.WithLabelValues(limiter).Inc()
}

// ObserveStore records a store operation's duration and error
func (m *Metrics) ObserveStore(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.StoreOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		m.StoreErrorsTotal.WithLabelValues(operation).Inc()
	}
}

// RecordAvatarCache counts a presigned URL cache lookup
func (m *Metrics) RecordAvatarCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.AvatarCacheHitsTotal.Inc()
		return
	}
	m.AvatarCacheMissesTotal.Inc()
}

// statusRecorder wraps http.ResponseWriter to capture the status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled with the mux route template to bound cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeTemplate(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
