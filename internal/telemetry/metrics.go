// Package telemetry provides application-level observability for the beta portal.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<BETA_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text exposition
// format (Content-Type: text/plain; version=0.0.4) and is intended to be scraped by
// a Prometheus server every 15–60 seconds.  It is NOT served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Signup, referral attribution, and milestone counters
//   - Device link and license issuance counters
//   - Rate limiter rejections and store failovers
//   - Admin login attempt outcomes and email delivery counters
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/dotctl/referral/status)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied query strings or path segments.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
// The path label holds the Gin route template, NOT the raw URL, to prevent
// unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and exponential-ish
// buckets from 5 ms to 30 s.  Use histogram_quantile to compute latency percentiles.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Signup and referral ledger metrics.
//
// SignupsTotal is a CounterVec with label {referred} ("true"/"false") incremented
// once per successfully created beta account.
//
// ReferralsAttributedTotal counts successful referral attributions (the referrer's
// counters were incremented).
//
// MilestonesReachedTotal is a CounterVec with label {milestone} incremented once per
// milestone recorded. Because milestone detection is exact-threshold, a spike here
// for the same account would indicate an atomicity bug worth alerting on:
//
//	increase(milestones_reached_total[1h])
var (
	SignupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signups_total",
			Help: "Total number of beta signups, by whether a referral code was used.",
		},
		[]string{"referred"},
	)

	ReferralsAttributedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "referrals_attributed_total",
			Help: "Total number of referrals successfully attributed to a referrer.",
		},
	)

	MilestonesReachedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milestones_reached_total",
			Help: "Total number of referral milestones recorded, by milestone key.",
		},
		[]string{"milestone"},
	)
)

// Device licensing metrics.
//
// DevicesLinkedTotal counts successful first-time device links. LicensesIssuedTotal
// counts every license key minted (currently 1:1 with device links; kept separate so
// future re-issue/extension flows can share the counter).
var (
	DevicesLinkedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devices_linked_total",
			Help: "Total number of hardware devices successfully linked to a beta account.",
		},
	)

	LicensesIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "licenses_issued_total",
			Help: "Total number of device license keys issued.",
		},
	)
)

// Rate limiter metrics.
//
// RateLimitExceededTotal is a CounterVec with label {policy} incremented each time a
// request is rejected with 429.
//
// RateLimitStoreFailoversTotal counts transitions from the distributed counter store
// to the in-process fallback. Any nonzero rate here means Redis is unhealthy:
//
//	increase(rate_limit_store_failovers_total[10m]) > 0
var (
	RateLimitExceededTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_exceeded_total",
			Help: "Total number of requests rejected by the rate limiter, by policy name.",
		},
		[]string{"policy"},
	)

	RateLimitStoreFailoversTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_store_failovers_total",
			Help: "Total number of failovers from the distributed counter store to the in-process fallback.",
		},
	)
)

// AdminLoginAttemptsTotal is a CounterVec with label {result} — one of "success",
// "failure", "locked", "2fa_pending" — incremented once per login attempt.
// An alert on the failure rate is a cheap brute-force detector:
//
//	increase(admin_login_attempts_total{result="failure"}[15m]) > 20
var AdminLoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "admin_login_attempts_total",
		Help: "Total number of admin login attempts, by result.",
	},
	[]string{"result"},
)

// EmailsSentTotal is a CounterVec with labels {kind, result} incremented once per
// outbound notification email attempt. kind is the template kind (welcome, referral,
// milestone, otp, magic_link, security_alert); result is "ok" or "error".
// A stalled "ok" counter combined with ongoing signups is a useful alert signal for
// SMTP delivery failures.
var EmailsSentTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "emails_sent_total",
		Help: "Total number of notification email attempts, by template kind and result.",
	},
	[]string{"kind", "result"},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go:
//
//	telemetry.StartDBStatsCollector(database)
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
