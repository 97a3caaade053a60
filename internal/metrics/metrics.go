// Package metrics exposes Prometheus collectors for the lead engine.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadengine_fetch_requests_total",
			Help: "Total fetch attempts, labeled by host and status class.",
		},
		[]string{"host", "status"},
	)

	fetchRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadengine_fetch_retries_total",
			Help: "Total fetch retries triggered by transient failures.",
		},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadengine_rate_limit_delay_seconds",
			Help:    "Histogram of per-host rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	leadsUpsertedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadengine_leads_upserted_total",
			Help: "Leads written by the upsert engine, labeled by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	enrichmentRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadengine_enrichment_runs_total",
			Help: "Per-module enrichment runs, labeled by module and outcome.",
		},
		[]string{"module", "outcome"},
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "leadengine_active_workers",
			Help: "Workers currently processing a scrape or enrichment unit.",
		},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadengine_http_request_duration_seconds",
			Help:    "API request latency by method, route and status.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// IncFetch records one fetch attempt. Status 0 means no response was
// received (network error or timeout).
func IncFetch(rawURL string, status int) {
	fetchRequestsTotal.WithLabelValues(sanitizeHost(rawURL), statusClass(status)).Inc()
}

// IncFetchRetry records one retry of a transient fetch failure.
func IncFetchRetry() {
	fetchRetriesTotal.Inc()
}

// ObserveRateLimitDelay records time spent waiting on the per-host limiter.
func ObserveRateLimitDelay(host string, d time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}

// IncLeadUpserted records one upsert outcome ("new", "updated", "skipped").
func IncLeadUpserted(source, outcome string) {
	leadsUpsertedTotal.WithLabelValues(source, outcome).Inc()
}

// IncEnrichment records one enricher run outcome ("ok", "error").
func IncEnrichment(module, outcome string) {
	enrichmentRunsTotal.WithLabelValues(module, outcome).Inc()
}

// ObserveHTTPRequest records one API request for the latency histogram.
func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	httpRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// WorkerStarted / WorkerDone track the active worker gauge.
func WorkerStarted() { activeWorkers.Inc() }
func WorkerDone()    { activeWorkers.Dec() }

// Handler returns the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func sanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

func statusClass(status int) string {
	if status == 0 {
		return "none"
	}
	return strconv.Itoa(status/100) + "xx"
}
