// Package metrics exposes Prometheus collectors for the analyzer service.
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
	analyzerPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyzer_pages_total",
			Help: "Total number of analyzed pages fetched, labeled by site and status class.",
		},
		[]string{"site", "status"},
	)

	analyzerLinksProbedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyzer_links_probed_total",
			Help: "Total number of link probes, labeled by result.",
		},
		[]string{"result"},
	)

	analyzerJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyzer_jobs_total",
			Help: "Total number of job executions finished, labeled by status.",
		},
		[]string{"status"},
	)

	analyzerActiveExecutions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "analyzer_active_executions",
			Help: "Number of job executions currently in flight.",
		},
	)

	analyzerPollErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "analyzer_poll_errors_total",
			Help: "Total number of scheduler polls that failed to list queued jobs.",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyzer_http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analyzer_http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// Link probe results.
const (
	ProbeReachable = "reachable"
	ProbeBroken    = "broken"
)

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

// StatusClass buckets an HTTP status code into 2xx..5xx, or "error" when no
// response was received.
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "error"
	}
	return strconv.Itoa(code/100) + "xx"
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage records one page fetch.
func ObservePage(site string, statusCode int) {
	analyzerPagesTotal.WithLabelValues(SanitizeSite(site), StatusClass(statusCode)).Inc()
}

// ObserveLinkProbe records one link probe.
func ObserveLinkProbe(broken bool) {
	result := ProbeReachable
	if broken {
		result = ProbeBroken
	}
	analyzerLinksProbedTotal.WithLabelValues(result).Inc()
}

// ObserveJob increments the job counter for the given status.
func ObserveJob(status string) {
	analyzerJobsTotal.WithLabelValues(status).Inc()
}

// IncActiveExecutions increments the in-flight executions gauge.
func IncActiveExecutions() {
	analyzerActiveExecutions.Inc()
}

// DecActiveExecutions decrements the in-flight executions gauge.
func DecActiveExecutions() {
	analyzerActiveExecutions.Dec()
}

// ObservePollError increments the scheduler poll error counter.
func ObservePollError() {
	analyzerPollErrorsTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
