package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

// WorkerMetrics covers requests consumed from the queue.
type WorkerMetrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	skippedFiles    prometheus.Counter
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	labels := prometheus.Labels{"service": service}
	m := &WorkerMetrics{
		registry: newRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "worker",
				Name:        "requests_total",
				Help:        "Queued ingest requests by input kind and outcome.",
				ConstLabels: labels,
			},
			[]string{"kind", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   "worker",
				Name:        "request_duration_seconds",
				Help:        "Queued ingest request duration in seconds.",
				Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
				ConstLabels: labels,
			},
			[]string{"kind"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   "worker",
				Name:        "requests_in_flight",
				Help:        "Queued ingest requests being processed.",
				ConstLabels: labels,
			},
		),
		skippedFiles: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "worker",
				Name:        "skipped_files_total",
				Help:        "Files skipped as unchanged duplicates.",
				ConstLabels: labels,
			},
		),
	}
	m.registry.MustRegister(m.requestsTotal, m.requestDuration, m.inFlight, m.skippedFiles)
	return m
}

func (m *WorkerMetrics) Registerer() prometheus.Registerer {
	return m.registry
}

func (m *WorkerMetrics) Handler() http.Handler {
	return handlerFor(m.registry)
}

// Track measures one queued request around process.
func (m *WorkerMetrics) Track(req domain.IngestRequest, process func() *domain.ProcessingResult) *domain.ProcessingResult {
	kind := requestKind(req)
	m.inFlight.Inc()
	start := time.Now()
	result := process()
	m.inFlight.Dec()

	status := "success"
	if result == nil || !result.Success {
		status = "failed"
	}
	m.requestsTotal.WithLabelValues(kind, status).Inc()
	m.requestDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if result != nil && len(result.FilesSkipped) > 0 {
		m.skippedFiles.Add(float64(len(result.FilesSkipped)))
	}
	return result
}

func requestKind(req domain.IngestRequest) string {
	switch {
	case len(req.BatchItems) > 0:
		return "batch"
	case len(req.Files) > 0:
		return "files"
	case len(req.URLs) > 0, req.URL != "":
		return "urls"
	case req.TextContent != "":
		return "text"
	default:
		return "invalid"
	}
}
