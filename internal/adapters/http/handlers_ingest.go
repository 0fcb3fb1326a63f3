package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

// ingestJSON accepts the full request shape. File payloads are text in
// "content" or binary in "content_base64".
// ?async=true queues the request for the worker and answers 202.
func (rt *Router) ingestJSON(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUpload)

	var req domain.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request exceeds %d bytes", rt.maxUpload))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if err := req.Options.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}
	rt.dispatch(w, r, req)
}

// ingestMultipart accepts one or more "files" parts plus option fields.
func (rt *Router) ingestMultipart(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "multipart field 'files' is required")
		return
	}

	files := make([]domain.FileDescriptor, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("open %s: %v", header.Filename, err))
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("read %s: %v", header.Filename, err))
			return
		}
		files = append(files, domain.FileDescriptor{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        int64(len(data)),
			Content:     data,
		})
	}

	opts, err := optionsFromForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rt.dispatch(w, r, domain.IngestRequest{Files: files, Options: opts})
}

func (rt *Router) dispatch(w http.ResponseWriter, r *http.Request, req domain.IngestRequest) {
	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		if rt.queue == nil {
			writeError(w, http.StatusNotImplemented, "async ingestion requires a queue")
			return
		}
		if err := rt.queue.PublishIngestRequest(r.Context(), req); err != nil {
			rt.logger.Error("ingest_enqueue_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	result := rt.ingest.ProcessInput(r.Context(), req, nil)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

func optionsFromForm(r *http.Request) (domain.ProcessingOptions, error) {
	opts := domain.ProcessingOptions{
		ProcessingMode:   strings.TrimSpace(r.FormValue("processing_mode")),
		ChunkingStrategy: strings.TrimSpace(r.FormValue("chunking_strategy")),
		CollectionID:     strings.TrimSpace(r.FormValue("collection_id")),
		DuplicatePolicy:  domain.DuplicatePolicy(strings.TrimSpace(r.FormValue("duplicate_policy"))),
	}
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	if v := r.FormValue("use_ai_metadata"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("use_ai_metadata must be a boolean")
		}
		opts.UseAIMetadata = parsed
	}
	return opts, nil
}
