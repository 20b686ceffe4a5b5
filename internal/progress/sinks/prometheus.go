package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/msnabiel/privacy-policy/internal/progress"
)

// PrometheusSink derives run and site lifecycle metrics from progress events.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted prometheus.Counter
	runDuration   prometheus.Histogram

	sitesInFlight  prometheus.Gauge
	sitesResolved  prometheus.Counter
	sitesCompleted *prometheus.CounterVec
	siteDuration   *prometheus.HistogramVec
	extractedChars prometheus.Counter

	tracker *siteTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "policy_runs_started_total",
			Help: "Total scrape runs that have started.",
		}),
		runsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "policy_runs_completed_total",
			Help: "Total scrape runs that have finished.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "policy_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 3600},
		}),
		sitesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "policy_sites_in_flight",
			Help: "Sites currently being processed.",
		}),
		sitesResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "policy_sites_resolved_total",
			Help: "Sites for which a policy URL was found.",
		}),
		sitesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "policy_sites_completed_total",
			Help: "Sites finished partitioned by outcome.",
		}, []string{"outcome"}),
		siteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "policy_site_duration_seconds",
			Help:    "Wall time per site partitioned by outcome.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"outcome"}),
		extractedChars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "policy_extracted_characters_total",
			Help: "Characters of policy text extracted across all sites.",
		}),
		tracker: newSiteTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runDuration,
		s.sitesInFlight,
		s.sitesResolved,
		s.sitesCompleted,
		s.siteDuration,
		s.extractedChars,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
	case progress.StageRunDone:
		s.runsCompleted.Inc()
		if evt.Dur > 0 {
			s.runDuration.Observe(evt.Dur.Seconds())
		}
	case progress.StageSiteStart:
		if s.tracker.start(evt.RunID, evt.Site) {
			s.sitesInFlight.Inc()
		}
	case progress.StageSiteResolved:
		s.sitesResolved.Inc()
	case progress.StageSiteDone:
		s.handleSiteDone(evt)
	}
}

func (s *PrometheusSink) handleSiteDone(evt progress.Event) {
	outcome := evt.Outcome
	if outcome == "" {
		outcome = "unknown"
	}
	s.sitesCompleted.WithLabelValues(outcome).Inc()
	if evt.Dur > 0 {
		s.siteDuration.WithLabelValues(outcome).Observe(evt.Dur.Seconds())
	}
	if evt.Chars > 0 {
		s.extractedChars.Add(float64(evt.Chars))
	}
	if s.tracker.complete(evt.RunID, evt.Site) {
		s.sitesInFlight.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type siteKey struct {
	run  [16]byte
	site string
}

type siteTracker struct {
	mu      sync.Mutex
	running map[siteKey]struct{}
}

func newSiteTracker() *siteTracker {
	return &siteTracker{running: make(map[siteKey]struct{})}
}

func (t *siteTracker) start(run [16]byte, site string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := siteKey{run: run, site: site}
	if _, ok := t.running[key]; ok {
		return false
	}
	t.running[key] = struct{}{}
	return true
}

func (t *siteTracker) complete(run [16]byte, site string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := siteKey{run: run, site: site}
	if _, ok := t.running[key]; !ok {
		return false
	}
	delete(t.running, key)
	return true
}
