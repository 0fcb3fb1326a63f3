package nats

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/resilience"
)

type publishedMsg struct {
	subject string
	data    []byte
}

type publisherFake struct {
	failures int
	err      error
	calls    int
	msgs     []publishedMsg
}

func (p *publisherFake) Publish(subject string, data []byte) error {
	p.calls++
	if p.calls <= p.failures {
		return p.err
	}
	p.msgs = append(p.msgs, publishedMsg{subject: subject, data: data})
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishDocumentIngestedEncodesEvent(t *testing.T) {
	pub := &publisherFake{}
	q := newQueue(pub, Options{}, testLogger())

	event := domain.IngestedEvent{DocumentID: "doc-1", CollectionID: "kb", Filename: "a.txt", ChunkCount: 3, IngestedAt: time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, q.PublishDocumentIngested(context.Background(), event))

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, DefaultEventSubject, pub.msgs[0].subject)
	var got domain.IngestedEvent
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &got))
	assert.Equal(t, event, got)
}

func TestPublishRetriesDisconnects(t *testing.T) {
	pub := &publisherFake{failures: 2, err: nats.ErrDisconnected}
	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
	})
	q := newQueue(pub, Options{RequestSubject: "custom.requests", ResilienceExecutor: exec}, testLogger())

	require.NoError(t, q.PublishIngestRequest(context.Background(), domain.IngestRequest{URL: "https://example.com"}))
	assert.Equal(t, 3, pub.calls)
	assert.Equal(t, "custom.requests", pub.msgs[0].subject)
}

func TestPublishMarksConnectionErrorsTemporary(t *testing.T) {
	pub := &publisherFake{failures: 10, err: nats.ErrConnectionClosed}
	q := newQueue(pub, Options{}, testLogger())

	err := q.PublishDocumentIngested(context.Background(), domain.IngestedEvent{DocumentID: "doc-1"})
	assert.True(t, domain.IsKind(err, domain.ErrTemporary))

	pub = &publisherFake{failures: 10, err: errors.New("invalid subject")}
	q = newQueue(pub, Options{}, testLogger())
	err = q.PublishDocumentIngested(context.Background(), domain.IngestedEvent{DocumentID: "doc-1"})
	require.Error(t, err)
	assert.False(t, domain.IsKind(err, domain.ErrTemporary))
}

func TestHandleRequestDecodesAndEncodes(t *testing.T) {
	q := newQueue(&publisherFake{}, Options{}, testLogger())

	var seen domain.IngestRequest
	reply := q.handleRequest(context.Background(), []byte(`{"text_content":"hello","options":{"collection_id":"kb"}}`), func(_ context.Context, req domain.IngestRequest) *domain.ProcessingResult {
		seen = req
		out := domain.NewProcessingResult()
		out.Success = true
		return out
	})
	assert.Equal(t, "hello", seen.TextContent)
	assert.Equal(t, "kb", seen.Options.CollectionID)

	var result domain.ProcessingResult
	require.NoError(t, json.Unmarshal(reply, &result))
	assert.True(t, result.Success)
}

func TestHandleRequestRejectsMalformedPayload(t *testing.T) {
	q := newQueue(&publisherFake{}, Options{}, testLogger())

	called := false
	reply := q.handleRequest(context.Background(), []byte(`{not json`), func(context.Context, domain.IngestRequest) *domain.ProcessingResult {
		called = true
		return nil
	})
	assert.False(t, called)

	var result domain.ProcessingResult
	require.NoError(t, json.Unmarshal(reply, &result))
	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "decode request")
}

func TestHandleRequestRejectsUnknownDuplicatePolicy(t *testing.T) {
	q := newQueue(&publisherFake{}, Options{}, testLogger())

	called := false
	reply := q.handleRequest(context.Background(), []byte(`{"text_content":"hi","options":{"duplicate_policy":"replace"}}`), func(context.Context, domain.IngestRequest) *domain.ProcessingResult {
		called = true
		return domain.NewProcessingResult()
	})

	var result domain.ProcessingResult
	require.NoError(t, json.Unmarshal(reply, &result))
	assert.False(t, called)
	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "duplicate_policy")
}

func TestPublishIngestRequestCarriesFileBytesAsBase64(t *testing.T) {
	pub := &publisherFake{}
	q := newQueue(pub, Options{}, testLogger())

	req := domain.IngestRequest{Files: []domain.FileDescriptor{{Filename: "a.txt", Content: []byte("hello")}}}
	require.NoError(t, q.PublishIngestRequest(context.Background(), req))

	var got domain.IngestRequest
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &got))
	require.Len(t, got.Files, 1)
	resolved, err := got.Files[0].Resolve()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), resolved.Content)
	assert.Equal(t, []byte("hello"), req.Files[0].Content)
}

func TestPublishIngestRequestDrainsStreams(t *testing.T) {
	pub := &publisherFake{}
	q := newQueue(pub, Options{}, testLogger())

	req := domain.IngestRequest{Files: []domain.FileDescriptor{{Filename: "b.txt", Reader: strings.NewReader("streamed")}}}
	require.NoError(t, q.PublishIngestRequest(context.Background(), req))

	var got domain.IngestRequest
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &got))
	resolved, err := got.Files[0].Resolve()
	require.NoError(t, err)
	assert.Equal(t, "streamed", string(resolved.Content))
}
