// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Page strategies.
const (
	StrategyFast     = "fast"
	StrategyRendered = "rendered"
)

var (
	pagesTotal                 *prometheus.CounterVec
	bytesTotal                 *prometheus.CounterVec
	jobsTotal                  *prometheus.CounterVec
	decisionsTotal             *prometheus.CounterVec
	classifierFailuresTotal    *prometheus.CounterVec
	childrenEnqueuedTotal      *prometheus.CounterVec
	linkFilterFallbacksTotal   *prometheus.CounterVec
	resultsStoredTotal         *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	browserPagesInUse          prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscout_pages_total",
				Help: "Total number of pages fetched, labeled by site, strategy and status.",
			},
			[]string{"site", "strategy", "status"},
		)

		bytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscout_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscout_jobs_total",
				Help: "Total number of crawl jobs processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		decisionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscout_decisions_total",
				Help: "Total number of page decisions, labeled by kind.",
			},
			[]string{"kind"},
		)

		classifierFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscout_classifier_failures_total",
				Help: "Total number of classifier failures, labeled by operation and reason.",
			},
			[]string{"op", "reason"},
		)

		childrenEnqueuedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscout_children_enqueued_total",
				Help: "Total number of child jobs offered to the queue, labeled by result.",
			},
			[]string{"result"},
		)

		linkFilterFallbacksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscout_link_filter_fallbacks_total",
				Help: "Total number of times the link filter fell back to local heuristics.",
			},
			[]string{"reason"},
		)

		resultsStoredTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscout_results_stored_total",
				Help: "Total number of result records upserted, labeled by status.",
			},
			[]string{"status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "jobscout_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		browserPagesInUse = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "jobscout_browser_pages_in_use",
				Help: "Number of browser tabs currently held from the render pool.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobscout_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObservePage records one fetched page.
func ObservePage(site, strategy, status string, bytesFetched int) {
	Init()
	sanitizedSite := SanitizeSite(site)
	pagesTotal.WithLabelValues(sanitizedSite, strategy, status).Inc()
	if bytesFetched > 0 {
		bytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveJob increments the job counter for the given outcome.
func ObserveJob(outcome string) {
	Init()
	jobsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDecision counts a decision machine outcome.
func ObserveDecision(kind string) {
	Init()
	decisionsTotal.WithLabelValues(kind).Inc()
}

// ObserveClassifierFailure counts a failed classifier call.
func ObserveClassifierFailure(op, reason string) {
	Init()
	classifierFailuresTotal.WithLabelValues(op, reason).Inc()
}

// ObserveChildren counts accepted and duplicate child enqueues.
func ObserveChildren(accepted, duplicates int) {
	Init()
	if accepted > 0 {
		childrenEnqueuedTotal.WithLabelValues("accepted").Add(float64(accepted))
	}
	if duplicates > 0 {
		childrenEnqueuedTotal.WithLabelValues("duplicate").Add(float64(duplicates))
	}
}

// ObserveLinkFilterFallback counts a heuristic fallback in the link filter.
func ObserveLinkFilterFallback(reason string) {
	Init()
	linkFilterFallbacksTotal.WithLabelValues(reason).Inc()
}

// ObserveResultStored counts a result upsert.
func ObserveResultStored(status string) {
	Init()
	resultsStoredTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// SetBrowserPagesInUse reports the render pool reference count.
func SetBrowserPagesInUse(n int64) {
	Init()
	browserPagesInUse.Set(float64(n))
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
