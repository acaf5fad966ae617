package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/progress"
)

// PrometheusSink exports chunk lifecycle metrics. It owns the collectors for
// chunks started/completed/running, chunk runtime, chain completions and
// continuation hand-offs.
type PrometheusSink struct {
	chunksStarted   prometheus.Counter
	chunksCompleted *prometheus.CounterVec
	chunksRunning   prometheus.Gauge
	chunkRuntime    *prometheus.HistogramVec
	chainsCompleted prometheus.Counter
	dispatches      *prometheus.CounterVec
	dispatchLatency prometheus.Histogram

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		chunksStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawl_chunks_started_total",
			Help: "Total chunks whose execution started.",
		}),
		chunksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawl_chunks_completed_total",
			Help: "Total chunks finished, partitioned by result.",
		}, []string{"result"}),
		chunksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crawl_chunks_running",
			Help: "Chunks currently executing in this process.",
		}),
		chunkRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawl_chunk_runtime_seconds",
			Help:    "Wall time per executed chunk.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 240, 300, 600},
		}, []string{"result"}),
		chainsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawl_chains_completed_total",
			Help: "Invocations that found nothing left to process.",
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawl_dispatch_total",
			Help: "Continuation hand-offs partitioned by result.",
		}, []string{"result"}),
		dispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crawl_dispatch_duration_seconds",
			Help:    "Time spent handing off to the next chunk.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.chunksStarted,
		s.chunksCompleted,
		s.chunksRunning,
		s.chunkRuntime,
		s.chainsCompleted,
		s.dispatches,
		s.dispatchLatency,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch. It is safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageChunkStart:
		s.chunksStarted.Inc()
		if s.tracker.start(evt.InvocationID) {
			s.chunksRunning.Inc()
		}
	case progress.StageChunkDone:
		s.finishChunk(evt, "success")
	case progress.StageChunkError:
		s.finishChunk(evt, "error")
	case progress.StageChainComplete:
		s.chainsCompleted.Inc()
	case progress.StageDispatchSent:
		s.dispatches.WithLabelValues("sent").Inc()
		s.observeDispatch(evt)
	case progress.StageDispatchFailed:
		s.dispatches.WithLabelValues("failed").Inc()
		s.observeDispatch(evt)
	}
}

func (s *PrometheusSink) finishChunk(evt progress.Event, result string) {
	s.chunksCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.chunkRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.InvocationID) {
		s.chunksRunning.Dec()
	}
}

func (s *PrometheusSink) observeDispatch(evt progress.Event) {
	if evt.Dur > 0 {
		s.dispatchLatency.Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
