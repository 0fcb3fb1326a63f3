package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
)


// IngestMetrics records pipeline measurements.
type IngestMetrics struct {
	service string

	filesTotal     *prometheus.CounterVec
	fileDuration   *prometheus.HistogramVec
	filesInFlight  prometheus.Gauge
	duplicateTotal *prometheus.CounterVec
	strategyTotal  *prometheus.CounterVec
	chunksTotal    prometheus.Counter
	breakerOpen    *prometheus.GaugeVec
}

var _ ports.IngestObserver = (*IngestMetrics)(nil)

func NewIngestMetrics(service string, registerer prometheus.Registerer) *IngestMetrics {
	labels := prometheus.Labels{"service": service}

	m := &IngestMetrics{
		service: service,
		filesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "pipeline",
				Name:        "files_total",
				Help:        "Processed inputs by format category and status.",
				ConstLabels: labels,
			},
			[]string{"category", "status"},
		),
		fileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   "pipeline",
				Name:        "file_duration_seconds",
				Help:        "Per-input processing duration in seconds.",
				Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
				ConstLabels: labels,
			},
			[]string{"category"},
		),
		filesInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   "pipeline",
				Name:        "files_in_flight",
				Help:        "Inputs currently being converted.",
				ConstLabels: labels,
			},
		),
		duplicateTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "pipeline",
				Name:        "duplicate_decisions_total",
				Help:        "Duplicate detection decisions by action.",
				ConstLabels: labels,
			},
			[]string{"action"},
		),
		strategyTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "scheduler",
				Name:        "batches_total",
				Help:        "File batches by execution strategy.",
				ConstLabels: labels,
			},
			[]string{"strategy"},
		),
		chunksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "pipeline",
				Name:        "chunks_total",
				Help:        "Chunks produced.",
				ConstLabels: labels,
			},
		),
		breakerOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   "collaborator",
				Name:        "circuit_open",
				Help:        "1 while the circuit breaker of a collaborator operation is open.",
				ConstLabels: labels,
			},
			[]string{"operation"},
		),
	}

	registerer.MustRegister(m.filesTotal, m.fileDuration, m.filesInFlight, m.duplicateTotal, m.strategyTotal, m.chunksTotal, m.breakerOpen)
	return m
}

func (m *IngestMetrics) FileStarted() {
	m.filesInFlight.Inc()
}

func (m *IngestMetrics) FileFinished(category domain.FormatCategory, duration time.Duration, err error) {
	m.filesInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.filesTotal.WithLabelValues(string(category), status).Inc()
	m.fileDuration.WithLabelValues(string(category)).Observe(duration.Seconds())
}

func (m *IngestMetrics) DuplicateDecided(action domain.DuplicateAction) {
	m.duplicateTotal.WithLabelValues(string(action)).Inc()
}

func (m *IngestMetrics) StrategyChosen(strategy string) {
	if strategy == "" {
		strategy = "unknown"
	}
	m.strategyTotal.WithLabelValues(strategy).Inc()
}

func (m *IngestMetrics) ChunksProduced(n int) {
	if n <= 0 {
		return
	}
	m.chunksTotal.Add(float64(n))
}

// BreakerChanged matches resilience.Config.OnBreakerChange.
func (m *IngestMetrics) BreakerChanged(operation string, open bool) {
	value := 0.0
	if open {
		value = 1
	}
	m.breakerOpen.WithLabelValues(operation).Set(value)
}
