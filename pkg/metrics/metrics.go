// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "greenledger"

// ─── HTTP ───────────────────────────────────────────────────────────────────

// HTTPRequests counts served requests by route pattern and status.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "Total HTTP requests by method, route pattern and status code.",
}, []string{"method", "route", "status"})

// HTTPDuration observes request latency by route pattern.
var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency by method and route pattern.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route"})

// ─── Credits ────────────────────────────────────────────────────────────────

// CreditIssuances counts issuance outcomes: issued, already_credited,
// no_reduction or failed.
var CreditIssuances = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "credits",
	Name:      "issuances_total",
	Help:      "Credit issuance attempts by outcome.",
}, []string{"outcome"})

// CreditsEarned sums credits granted by new credit records.
var CreditsEarned = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "credits",
	Name:      "earned_total",
	Help:      "Total carbon credits granted.",
})

// CreditIssueRetries counts ledger writes retried after a transient failure.
var CreditIssueRetries = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "credits",
	Name:      "ledger_retries_total",
	Help:      "Ledger writes retried after a transient failure.",
})

// ─── Green Score ────────────────────────────────────────────────────────────

// GreenScoreRecalculations counts recalculations by outcome (ok or failed).
var GreenScoreRecalculations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "green_score",
	Name:      "recalculations_total",
	Help:      "Green Score recalculations by outcome.",
}, []string{"outcome"})

// ─── Housekeeping ───────────────────────────────────────────────────────────

// CacheLookups counts response cache lookups by cache name and result.
var CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "cache",
	Name:      "lookups_total",
	Help:      "Response cache lookups by cache and result (hit or miss).",
}, []string{"cache", "result"})

// CacheEvictions counts entries dropped to make room (capacity) or found
// past their TTL (expired).
var CacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "cache",
	Name:      "evictions_total",
	Help:      "Response cache evictions by cache and reason.",
}, []string{"cache", "reason"})

// AuditEventsPruned counts audit events removed by the retention worker.
var AuditEventsPruned = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "audit",
	Name:      "events_pruned_total",
	Help:      "Audit events deleted by the retention worker.",
})

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records HTTPRequests and HTTPDuration. Routes are labelled with
// the chi pattern, not the raw path, to keep label cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
