package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
	"github.com/kirillkom/knowledge-ingest/internal/observability/metrics"
)

type ingestFake struct {
	requests []domain.IngestRequest
	result   *domain.ProcessingResult
}

func (f *ingestFake) ProcessInput(_ context.Context, req domain.IngestRequest, _ ports.ProgressFunc) *domain.ProcessingResult {
	f.requests = append(f.requests, req)
	if f.result != nil {
		return f.result
	}
	out := domain.NewProcessingResult()
	out.Success = true
	return out
}

type docsFake struct {
	err error
}

func (f docsFake) GetByID(_ context.Context, id string) (*domain.ParentDocument, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ParentDocument{ID: id, Content: "body"}, nil
}

type queueFake struct {
	requests []domain.IngestRequest
	err      error
}

func (q *queueFake) PublishIngestRequest(_ context.Context, req domain.IngestRequest) error {
	q.requests = append(q.requests, req)
	return q.err
}

func TestHealthzEndpoint(t *testing.T) {
	handler := NewRouter(&ingestFake{}, docsFake{}, Options{}).Handler()
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestRequestIDIsEchoedAndLogged(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	handler := NewRouter(&ingestFake{}, docsFake{}, Options{Logger: logger}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "cli-run-7")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if got := res.Header().Get(requestIDHeader); got != "cli-run-7" {
		t.Fatalf("expected caller request id, got %q", got)
	}
	if !strings.Contains(logs.String(), `"request_id":"cli-run-7"`) || !strings.Contains(logs.String(), `"status":200`) {
		t.Fatalf("access log missing fields: %s", logs.String())
	}
}

func TestIngestJSONPassesRequestThrough(t *testing.T) {
	ingest := &ingestFake{}
	handler := NewRouter(ingest, docsFake{}, Options{}).Handler()

	payload := `{"text_content":"hello","title":"Greeting","options":{"collection_id":"kb","duplicate_policy":"overwrite"}}`
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader(payload)))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if len(ingest.requests) != 1 {
		t.Fatalf("expected one request, got %d", len(ingest.requests))
	}
	got := ingest.requests[0]
	if got.TextContent != "hello" || got.Options.CollectionID != "kb" || !got.Options.Overwrite() {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestIngestJSONReportsFailedResultAs422(t *testing.T) {
	ingest := &ingestFake{result: domain.FailedResult("request must contain one of files, urls, url, text_content or batch_items")}
	handler := NewRouter(ingest, docsFake{}, Options{}).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader(`{}`)))

	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", res.Code)
	}
	var body domain.ProcessingResult
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Success || body.ErrorMessage == "" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestIngestJSONRejectsMalformedAndOversizedBodies(t *testing.T) {
	handler := NewRouter(&ingestFake{}, docsFake{}, Options{MaxUploadBytes: 32}).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader(`{"url":`)))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	big := `{"text_content":"` + strings.Repeat("a", 100) + `"}`
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader(big)))
	if res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", res.Code)
	}
}

func TestIngestJSONRejectsUnknownDuplicatePolicy(t *testing.T) {
	ingest := &ingestFake{}
	handler := NewRouter(ingest, docsFake{}, Options{}).Handler()

	res := httptest.NewRecorder()
	payload := `{"text_content":"hello","options":{"collection_id":"kb","duplicate_policy":"replace"}}`
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader(payload)))

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "duplicate_policy") {
		t.Fatalf("expected the field named in the error, got %s", res.Body.String())
	}
	if len(ingest.requests) != 0 {
		t.Fatalf("request must not reach the pipeline")
	}
}

func TestIngestMultipartBuildsFileRequest(t *testing.T) {
	ingest := &ingestFake{}
	handler := NewRouter(ingest, docsFake{}, Options{}).Handler()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, content := range map[string]string{"a.txt": "alpha", "b.md": "# beta"} {
		part, err := writer.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		_, _ = part.Write([]byte(content))
	}
	_ = writer.WriteField("collection_id", "kb")
	_ = writer.WriteField("use_ai_metadata", "true")
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/ingest/files", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	got := ingest.requests[0]
	if len(got.Files) != 2 || got.Options.CollectionID != "kb" || !got.Options.UseAIMetadata {
		t.Fatalf("unexpected request %+v", got)
	}
	for _, f := range got.Files {
		if len(f.Content) == 0 || f.Size != int64(len(f.Content)) {
			t.Fatalf("expected file bytes for %s", f.Filename)
		}
	}
}

func TestIngestMultipartValidatesInput(t *testing.T) {
	handler := NewRouter(&ingestFake{}, docsFake{}, Options{}).Handler()

	res := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/ingest/files", strings.NewReader("plain-text"))
	req.Header.Set("Content-Type", "text/plain")
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without multipart body, got %d", res.Code)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, _ := writer.CreateFormFile("files", "a.txt")
	_, _ = part.Write([]byte("alpha"))
	_ = writer.WriteField("duplicate_policy", "merge")
	_ = writer.Close()

	req = httptest.NewRequest(http.MethodPost, "/v1/ingest/files", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown duplicate policy, got %d", res.Code)
	}
}

func TestIngestAsyncQueuesRequest(t *testing.T) {
	ingest := &ingestFake{}
	queue := &queueFake{}
	handler := NewRouter(ingest, docsFake{}, Options{Queue: queue}).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/ingest?async=true", strings.NewReader(`{"url":"https://example.com"}`)))
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	if len(queue.requests) != 1 || len(ingest.requests) != 0 {
		t.Fatalf("expected request queued, not processed inline")
	}

	queue.err = domain.WrapError(domain.ErrTemporary, "nats publish", errors.New("disconnected"))
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/ingest?async=true", strings.NewReader(`{"url":"https://example.com"}`)))
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when queue is down, got %d", res.Code)
	}
	if res.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After on 503")
	}

	noQueue := NewRouter(ingest, docsFake{}, Options{}).Handler()
	res = httptest.NewRecorder()
	noQueue.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/ingest?async=1", strings.NewReader(`{"url":"https://example.com"}`)))
	if res.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 without queue, got %d", res.Code)
	}
}

func TestGetDocumentByIDMapsNotFound(t *testing.T) {
	handler := NewRouter(&ingestFake{}, docsFake{err: domain.WrapError(domain.ErrDocumentNotFound, "get", errors.New("id=missing"))}, Options{}).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/documents/missing", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	handler := NewRouter(&ingestFake{}, docsFake{}, Options{Metrics: metrics.NewHTTPServerMetrics("api")}).Handler()

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := res.Body.String()
	if res.Code != http.StatusOK || !strings.Contains(body, "ingest_http_requests_total") {
		t.Fatalf("expected prometheus output, got %d", res.Code)
	}
	if !strings.Contains(body, `route="/healthz"`) {
		t.Fatalf("expected route pattern label, got:\n%s", body)
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := map[error]int{
		domain.ErrInvalidInput:      http.StatusBadRequest,
		domain.ErrUnsupportedFormat: http.StatusUnsupportedMediaType,
		domain.ErrConversionFailed:  http.StatusUnprocessableEntity,
		domain.ErrTemporary:         http.StatusServiceUnavailable,
		errors.New("boom"):          http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := mapErrorToHTTPStatus(domain.WrapError(err, "op", errors.New("x"))); got != want {
			t.Fatalf("mapErrorToHTTPStatus(%v) = %d, want %d", err, got, want)
		}
	}
}
