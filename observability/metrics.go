package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pipelineOnce sync.Once
	pipelineReg  *PipelineMetrics

	escrowOnce sync.Once
	escrowReg  *EscrowMetrics
)

// PipelineMetrics exposes Prometheus collectors for the mint pipeline.
type PipelineMetrics struct {
	runs        *prometheus.CounterVec
	hopDuration *prometheus.HistogramVec
}

// Pipeline returns the lazily-initialised pipeline metrics registry.
func Pipeline() *PipelineMetrics {
	pipelineOnce.Do(func() {
		pipelineReg = &PipelineMetrics{
			runs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "postmint",
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Total mint pipeline runs segmented by outcome (success or failed hop).",
			}, []string{"outcome"}),
			hopDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "postmint",
				Subsystem: "pipeline",
				Name:      "hop_duration_seconds",
				Help:      "Latency distribution per pipeline hop.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"hop"}),
		}
		prometheus.MustRegister(pipelineReg.runs, pipelineReg.hopDuration)
	})
	return pipelineReg
}

// RecordRun increments the run counter for the supplied outcome. A failed
// run records the hop it failed in.
func (m *PipelineMetrics) RecordRun(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "success"
	}
	m.runs.WithLabelValues(outcome).Inc()
}

// ObserveHop records the duration of a single hop.
func (m *PipelineMetrics) ObserveHop(hop string, d time.Duration) {
	if m == nil {
		return
	}
	m.hopDuration.WithLabelValues(hop).Observe(d.Seconds())
}

// EscrowMetrics exposes Prometheus collectors for escrow lifecycle events.
type EscrowMetrics struct {
	requests *prometheus.CounterVec
	refunds  prometheus.Counter
}

// Escrow returns the lazily-initialised escrow metrics registry.
func Escrow() *EscrowMetrics {
	escrowOnce.Do(func() {
		escrowReg = &EscrowMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "postmint",
				Subsystem: "escrow",
				Name:      "events_total",
				Help:      "Escrow lifecycle events segmented by type.",
			}, []string{"type"}),
			refunds: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "postmint",
				Subsystem: "escrow",
				Name:      "refunds_total",
				Help:      "Total refunds issued back to requesters.",
			}),
		}
		prometheus.MustRegister(escrowReg.requests, escrowReg.refunds)
	})
	return escrowReg
}

// RecordEvent counts an escrow lifecycle event by its type string.
func (m *EscrowMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(eventType).Inc()
}

// RecordRefund counts a refund issued to a requester.
func (m *EscrowMetrics) RecordRefund() {
	if m == nil {
		return
	}
	m.refunds.Inc()
}
