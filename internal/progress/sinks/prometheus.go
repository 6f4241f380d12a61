package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/SmallTyrant/hocg-catalog/internal/progress"
)

// PrometheusSink exports crawl progress metrics. It owns the collectors for
// runs started/completed/running and per-set card counters so the serve
// command can expose them on /metrics.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge

	cardsProcessed *prometheus.CounterVec
	cardsSkipped   *prometheus.CounterVec
	pagesFetched   *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_crawl_runs_started_total",
			Help: "Total crawl runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_crawl_runs_completed_total",
			Help: "Total crawl runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catalog_crawl_runs_running",
			Help: "Current number of running crawl sessions.",
		}),
		cardsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_cards_processed_total",
			Help: "Cards parsed and saved partitioned by set.",
		}, []string{"set"}),
		cardsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_cards_skipped_total",
			Help: "Detail pages skipped by dedup or parse failure, per set.",
		}, []string{"set"}),
		pagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_list_pages_fetched_total",
			Help: "Cardlist search pages fetched per set.",
		}, []string{"set"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.cardsProcessed,
		s.cardsSkipped,
		s.pagesFetched,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors from the event. It is safe for
// concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, evt progress.Event) error {
	set := evt.SetCode
	if set == "" {
		set = "ALL"
	}
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageRunDone:
		s.runsCompleted.WithLabelValues("success").Inc()
		if s.tracker.complete(evt.RunID) {
			s.runsRunning.Dec()
		}
	case progress.StageRunError:
		s.runsCompleted.WithLabelValues("error").Inc()
		if s.tracker.complete(evt.RunID) {
			s.runsRunning.Dec()
		}
	case progress.StagePage:
		s.pagesFetched.WithLabelValues(set).Inc()
	case progress.StageItem:
		s.cardsProcessed.WithLabelValues(set).Inc()
	case progress.StageItemSkip:
		s.cardsSkipped.WithLabelValues(set).Inc()
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[uuid.UUID]struct{})}
}

func (t *runTracker) start(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
