// Package obs exposes the Prometheus metrics for the governance core.
package obs

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
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

	// AccessDenials counts patient-access denials by reason.
	AccessDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patient_access_denials_total",
			Help: "Patient access checks that ended in denial.",
		},
		[]string{"reason"},
	)

	// VersionConflicts counts optimistic-concurrency losers by entity type.
	VersionConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transition_version_conflicts_total",
			Help: "Status transitions rejected on a stale version.",
		},
		[]string{"entity"},
	)

	// InvalidTransitions counts transitions rejected by the table.
	InvalidTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalid_transitions_total",
			Help: "Status transitions outside the declared table.",
		},
		[]string{"entity"},
	)

	// DomainEventsRecorded counts appended ledger events.
	DomainEventsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domain_events_recorded_total",
			Help: "Domain events appended to the audit ledger.",
		},
		[]string{"domain", "event_type"},
	)

	// Overrides counts admin transitions outside the declared table.
	Overrides = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transition_overrides_total",
			Help: "Status transitions committed via the admin override.",
		},
		[]string{"entity"},
	)

	// BreakGlassGrants counts emergency override grants.
	BreakGlassGrants = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "break_glass_grants_total",
			Help: "Emergency patient-access overrides granted.",
		},
	)
)

// Init registers all metrics with the default registry. Call once at startup.
func Init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		AccessDenials,
		VersionConflicts,
		InvalidTransitions,
		Overrides,
		DomainEventsRecorded,
		BreakGlassGrants,
	)
}

// Handler serves the Prometheus exposition endpoint.
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}

// Instrument records request counts and latencies. The routed path pattern is
// used as the label so ids do not explode cardinality.
func Instrument() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			status := strconv.Itoa(c.Response().Status)
			method := c.Request().Method

			httpRequestsTotal.WithLabelValues(method, path, status).Inc()
			httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
