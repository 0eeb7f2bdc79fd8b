package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mywebintelligence/mwi/internal/progress"
)

// PrometheusSink exports run metrics. It owns the collectors for run
// lifecycle tracking and per-land page counters.
type PrometheusSink struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runsActive    prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	pagesProcessed *prometheus.CounterVec
	pageDuration   *prometheus.HistogramVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mwi_runs_started_total",
			Help: "Pipeline runs started, partitioned by operation.",
		}, []string{"operation"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mwi_runs_completed_total",
			Help: "Pipeline runs completed, partitioned by operation and result.",
		}, []string{"operation", "result"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mwi_runs_active",
			Help: "Pipeline runs currently in flight.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mwi_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"operation", "result"}),
		pagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mwi_pages_processed_total",
			Help: "Pages processed, partitioned by land and status class.",
		}, []string{"land", "status_class"}),
		pageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mwi_page_duration_seconds",
			Help:    "Per-page processing latency, partitioned by land.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"land"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsActive,
		s.runDuration,
		s.pagesProcessed,
		s.pageDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register run collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch. Safe for concurrent
// use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart, progress.StageRunDone, progress.StageRunError:
			s.handleRunEvent(evt)
		case progress.StagePageDone:
			s.handlePageEvent(evt)
		}
	}
	return nil
}

func (s *PrometheusSink) handleRunEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.WithLabelValues(evt.Operation).Inc()
		if s.tracker.start(evt.RunID) {
			s.runsActive.Inc()
		}
		return
	case progress.StageRunDone:
		s.runsCompleted.WithLabelValues(evt.Operation, "success").Inc()
		s.observeRun(evt, "success")
	case progress.StageRunError:
		s.runsCompleted.WithLabelValues(evt.Operation, "error").Inc()
		s.observeRun(evt, "error")
	}
	if s.tracker.complete(evt.RunID) {
		s.runsActive.Dec()
	}
}

func (s *PrometheusSink) observeRun(evt progress.Event, result string) {
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(evt.Operation, result).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handlePageEvent(evt progress.Event) {
	land := evt.Land
	if land == "" {
		land = "unknown"
	}
	class := string(evt.StatusClass)
	if class == "" {
		class = string(progress.StatusOther)
	}
	s.pagesProcessed.WithLabelValues(land, class).Inc()
	if evt.Dur > 0 {
		s.pageDuration.WithLabelValues(land).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface.
func (s *PrometheusSink) Close(context.Context) error { return nil }

// runTracker deduplicates start/complete pairs so the active gauge
// stays balanced even when events repeat.
type runTracker struct {
	mu     sync.Mutex
	active map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{active: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[id]; ok {
		return false
	}
	t.active[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[id]; !ok {
		return false
	}
	delete(t.active, id)
	return true
}
