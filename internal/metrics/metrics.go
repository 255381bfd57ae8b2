// Package metrics exposes Prometheus collectors for PWA checks, batch runs and
// the HTTP API.
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

var (
	pwaChecksTotal             *prometheus.CounterVec
	pwaCheckDurationSeconds    *prometheus.HistogramVec
	headlessPromotionsTotal    prometheus.Counter
	sourceDomainsTotal         *prometheus.CounterVec
	batchItemsTotal            *prometheus.CounterVec
	batchActiveWorkers         prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry. It is safe to call
// more than once and every Observe helper calls it.
func Init() {
	once.Do(func() {
		pwaChecksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pwa_checks_total",
				Help: "Total number of PWA checks, labeled by strategy and verdict.",
			},
			[]string{"strategy", "verdict"},
		)

		pwaCheckDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pwa_check_duration_seconds",
				Help:    "Histogram of end-to-end PWA check latencies, labeled by strategy.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 45},
			},
			[]string{"strategy"},
		)

		headlessPromotionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pwa_headless_promotions_total",
				Help: "Total number of static checks re-run in a headless browser.",
			},
		)

		sourceDomainsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pwa_source_domains_total",
				Help: "Total number of candidate domains returned, labeled by source.",
			},
			[]string{"source"},
		)

		batchItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pwa_batch_items_total",
				Help: "Total number of batch items processed, labeled by operation and status.",
			},
			[]string{"op", "status"},
		)

		batchActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pwa_batch_active_workers",
				Help: "Number of batch workers currently processing an item.",
			},
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

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pwa_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations, labeled by host.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
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
	return promhttp.Handler()
}

// Verdict labels for ObserveCheck.
const (
	VerdictPWA    = "pwa"
	VerdictNotPWA = "not_pwa"
	VerdictError  = "error"
)

// ObserveCheck records one classifier run.
func ObserveCheck(strategy, verdict string, duration time.Duration) {
	Init()
	pwaChecksTotal.WithLabelValues(strategy, verdict).Inc()
	pwaCheckDurationSeconds.WithLabelValues(strategy).Observe(duration.Seconds())
}

// ObserveHeadlessPromotion counts a static check escalated to a browser.
func ObserveHeadlessPromotion() {
	Init()
	headlessPromotionsTotal.Inc()
}

// ObserveSourceDomains adds the number of candidates a source produced.
func ObserveSourceDomains(source string, count int) {
	Init()
	sourceDomainsTotal.WithLabelValues(source).Add(float64(count))
}

// ObserveBatchItem counts one batch outcome.
func ObserveBatchItem(op, status string) {
	Init()
	batchItemsTotal.WithLabelValues(op, status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	batchActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	batchActiveWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}
