// Package metrics exposes Prometheus collectors for the policy scraper.
package metrics

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scraperSitesTotal             *prometheus.CounterVec
	scraperFetchesTotal           *prometheus.CounterVec
	scraperFetchDurationSeconds   *prometheus.HistogramVec
	scraperFetchBytesTotal        *prometheus.CounterVec
	scraperProbesTotal            *prometheus.CounterVec
	scraperActiveWorkers          prometheus.Gauge
	scraperRateLimitDelaysSeconds *prometheus.HistogramVec
	scraperCourtesyDelaySeconds   prometheus.Histogram
	scraperExtractedCharacters    prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scraperSitesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "policy_scraper_sites_total",
				Help: "Total number of sites processed, labeled by terminal status.",
			},
			[]string{"status"},
		)

		scraperFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "policy_scraper_fetches_total",
				Help: "Total number of outbound requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		scraperFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "policy_scraper_fetch_duration_seconds",
				Help:    "Histogram of outbound request latencies, labeled by method.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
			},
			[]string{"method"},
		)

		scraperFetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "policy_scraper_fetch_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		scraperProbesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "policy_scraper_fallback_probes_total",
				Help: "Fallback path probes issued by the resolver, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		scraperActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "policy_scraper_active_workers",
				Help: "Number of workers currently processing a site.",
			},
		)

		scraperRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "policy_scraper_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		scraperCourtesyDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "policy_scraper_courtesy_delay_seconds",
				Help:    "Randomized pause taken before each site.",
				Buckets: []float64{0.5, 1, 1.5, 2, 2.5, 3, 5},
			},
		)

		scraperExtractedCharacters = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "policy_scraper_extracted_characters",
				Help:    "Length of extracted policy text in characters.",
				Buckets: prometheus.ExponentialBuckets(100, 2, 10),
			},
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

// WriteTextfile dumps every registered collector, plus any extra gatherers,
// to path in the text exposition format read by the node exporter textfile
// collector.
func WriteTextfile(path string, extra ...prometheus.Gatherer) error {
	gatherers := append(prometheus.Gatherers{prometheus.DefaultGatherer}, extra...)
	if err := prometheus.WriteToTextfile(path, gatherers); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// ObserveSite increments the per-status site counter.
func ObserveSite(status string) {
	scraperSitesTotal.WithLabelValues(status).Inc()
}

// ObserveFetch records a completed outbound request. A zero code means the
// request failed before a response arrived.
func ObserveFetch(site, method string, code int, bytesFetched int, duration time.Duration) {
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	scraperFetchesTotal.WithLabelValues(method, label).Inc()
	scraperFetchDurationSeconds.WithLabelValues(method).Observe(duration.Seconds())
	if bytesFetched > 0 {
		scraperFetchBytesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(bytesFetched))
	}
}

// ObserveProbe counts a fallback probe outcome ("hit" or "miss").
func ObserveProbe(outcome string) {
	scraperProbesTotal.WithLabelValues(outcome).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	scraperActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	scraperActiveWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	scraperRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveCourtesyDelay records the pause a worker took before a site.
func ObserveCourtesyDelay(duration time.Duration) {
	scraperCourtesyDelaySeconds.Observe(duration.Seconds())
}

// ObserveExtractedCharacters records the size of an extracted policy.
func ObserveExtractedCharacters(n int) {
	scraperExtractedCharacters.Observe(float64(n))
}
