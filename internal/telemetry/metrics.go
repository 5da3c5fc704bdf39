// Package telemetry provides application-level observability for the contact
// vault.
//
// All metrics are registered against the default Prometheus registry and are
// served by the side-channel HTTP listener started in cmd/server:
//
//	GET http://<host>:<CV_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint returns the Prometheus text exposition
// format and is intended to be scraped every 15–60 seconds. It is NOT served
// by the Gin router, so the scrape path stays off the public ingress and
// outside the rate-limiting middleware.
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/contacts/:id)
// rather than the raw request URL so user-supplied path segments cannot
// explode label cardinality.
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
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
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

// Commit metrics — incremented by the unit-of-work commit path.
//
// ContactCommitsTotal counts successful commits by action kind (Created,
// Modified, Deleted). ContactConflictsTotal counts conditional writes that
// lost to a concurrent writer; a rising rate means clients are editing the
// same records simultaneously and may need merge tooling.
//
// AuditBackfillFailuresTotal counts second-phase audit identity patches that
// failed after the business commit stood. Each failure leaves one Created
// audit entry unlinked (contact_id = 0); the entries can be re-linked by
// hand, so this is a warning signal rather than data loss.
//
// Example PromQL queries:
//   - Conflict ratio: rate(contact_conflicts_total[5m]) / sum(rate(contact_commits_total[5m]))
//   - Alert:          increase(audit_backfill_failures_total[1h]) > 0
var (
	ContactCommitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contact_commits_total",
			Help: "Total number of committed contact mutations, by action kind.",
		},
		[]string{"action"},
	)

	ContactConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contact_conflicts_total",
			Help: "Total number of optimistic concurrency conflicts detected at commit time.",
		},
	)

	AuditBackfillFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_backfill_failures_total",
			Help: "Total number of failed post-commit audit identity backfills.",
		},
	)

	AuditShipFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_ship_failures_total",
			Help: "Total number of audit entries that could not be shipped to an external destination.",
		},
	)
)

// AuditOrphanEntries tracks how many Created audit entries are currently
// unlinked (contact_id still 0). Sampled periodically by the orphan watcher
// job. A non-zero value that does not drain means automatic backfills were
// lost and the maintenance relink endpoint is needed:
//
//	audit_orphan_entries > 0
var AuditOrphanEntries = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "audit_orphan_entries",
		Help: "Current number of Created audit entries whose contact link was never backfilled.",
	},
)

// DBOpenConnections tracks the number of open connections currently held by
// the sql.DB pool. It is sampled every 30 seconds by StartDBStatsCollector
// rather than per-request to avoid the overhead of sql.DB.Stats().
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB
// connection pool statistics every 30 seconds and updates DBOpenConnections.
// The goroutine exits cleanly when the database becomes unreachable, which
// happens automatically on shutdown once the deferred db.Close() runs.
//
// Call this once, immediately after db.Connect() succeeds in main.go.
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
