package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
	"github.com/kirillkom/knowledge-ingest/internal/observability/metrics"
)

type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.ParentDocument, error)
}

// RequestQueue hands requests to the worker instead of processing them inline.
type RequestQueue interface {
	PublishIngestRequest(ctx context.Context, req domain.IngestRequest) error
}

type Options struct {
	MaxUploadBytes int64
	Queue          RequestQueue
	Metrics        *metrics.HTTPServerMetrics
	Logger         *slog.Logger
}

type Router struct {
	ingest    ports.Ingestor
	documents DocumentReader
	queue     RequestQueue
	metrics   *metrics.HTTPServerMetrics
	maxUpload int64
	logger    *slog.Logger
}

func NewRouter(ingest ports.Ingestor, documents DocumentReader, opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 200 << 20
	}
	return &Router{
		ingest:    ingest,
		documents: documents,
		queue:     opts.Queue,
		metrics:   opts.Metrics,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	if rt.metrics != nil {
		r.Use(rt.metrics.Middleware)
	}
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(rt.accessLog)

	r.Get("/healthz", rt.healthz)
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/ingest", rt.ingestJSON)
		r.Post("/ingest/files", rt.ingestMultipart)
		r.Get("/documents/{documentID}", rt.getDocumentByID)
	})

	return r
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	if rt.documents == nil {
		writeError(w, http.StatusNotImplemented, "document lookup is not configured")
		return
	}
	id := chi.URLParam(r, "documentID")
	doc, err := rt.documents.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
