// Package nats publishes ingestion events and feeds ingest requests to the
// worker.
package nats

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/resilience"
)

const (
	DefaultEventSubject   = "documents.ingested"
	DefaultRequestSubject = "ingest.requests"
	workerQueueGroup      = "ingest-workers"
)

type publisher interface {
	Publish(subject string, data []byte) error
}

type Queue struct {
	conn           *nats.Conn
	pub            publisher
	eventSubject   string
	requestSubject string
	executor       *resilience.Executor
	logger         *slog.Logger
}

type Options struct {
	EventSubject         string
	RequestSubject       string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url string) (*Queue, error) {
	return NewWithOptions(url, Options{})
}

func NewWithOptions(url string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("knowledge-ingest"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	q := newQueue(conn, options, logger)
	q.conn = conn
	return q, nil
}

func newQueue(pub publisher, options Options, logger *slog.Logger) *Queue {
	q := &Queue{
		pub:            pub,
		eventSubject:   options.EventSubject,
		requestSubject: options.RequestSubject,
		executor:       options.ResilienceExecutor,
		logger:         logger,
	}
	if q.eventSubject == "" {
		q.eventSubject = DefaultEventSubject
	}
	if q.requestSubject == "" {
		q.requestSubject = DefaultRequestSubject
	}
	return q
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishDocumentIngested(ctx context.Context, event domain.IngestedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal ingested event: %w", err)
	}
	return q.publish(ctx, q.eventSubject, payload)
}

// PublishIngestRequest enqueues a request for the worker.
func (q *Queue) PublishIngestRequest(ctx context.Context, req domain.IngestRequest) error {
	portable, err := portableRequest(req)
	if err != nil {
		return fmt.Errorf("prepare ingest request: %w", err)
	}
	payload, err := json.Marshal(portable)
	if err != nil {
		return fmt.Errorf("marshal ingest request: %w", err)
	}
	return q.publish(ctx, q.requestSubject, payload)
}

func (q *Queue) publish(ctx context.Context, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := q.pub.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	err := q.executor.Execute(ctx, "nats.publish."+subject, call, classifyNATSError)
	return resilience.AsTemporary("nats publish", err, classifyNATSError)
}

// portableRequest makes every payload survive JSON: streams are drained and
// raw bytes move to the base64 field.
func portableRequest(req domain.IngestRequest) (domain.IngestRequest, error) {
	out := req
	out.Files = make([]domain.FileDescriptor, len(req.Files))
	for i, f := range req.Files {
		p, err := portableFile(f)
		if err != nil {
			return domain.IngestRequest{}, err
		}
		out.Files[i] = p
	}
	out.BatchItems = make([]domain.BatchItem, len(req.BatchItems))
	for i, item := range req.BatchItems {
		if item.File != nil {
			p, err := portableFile(*item.File)
			if err != nil {
				return domain.IngestRequest{}, err
			}
			item.File = &p
		}
		out.BatchItems[i] = item
	}
	return out, nil
}

func portableFile(f domain.FileDescriptor) (domain.FileDescriptor, error) {
	if f.Reader != nil && f.Content == nil && f.Base64 == "" {
		resolved, err := f.Resolve()
		if err != nil {
			return domain.FileDescriptor{}, err
		}
		f = resolved
	}
	if f.Content != nil && f.Base64 == "" {
		f.Base64 = base64.StdEncoding.EncodeToString(f.Content)
		f.Content = nil
	}
	return f, nil
}

// RequestHandler processes one queued request. Its result is sent back when
// the publisher asked for a reply.
type RequestHandler func(ctx context.Context, req domain.IngestRequest) *domain.ProcessingResult

func (q *Queue) SubscribeIngestRequests(ctx context.Context, handler RequestHandler) error {
	if q.conn == nil {
		return errors.New("nats subscribe: queue is not connected")
	}
	sub, err := q.conn.QueueSubscribe(q.requestSubject, workerQueueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		reply := q.handleRequest(handlerCtx, msg.Data, handler)
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(reply); err != nil {
			q.logger.Warn("nats_reply_failed", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (q *Queue) handleRequest(ctx context.Context, data []byte, handler RequestHandler) []byte {
	var req domain.IngestRequest
	var result *domain.ProcessingResult
	if err := json.Unmarshal(data, &req); err != nil {
		q.logger.Error("ingest_request_decode_failed", "error", err, "bytes", len(data))
		result = domain.FailedResult(fmt.Sprintf("decode request: %v", err))
	} else if err := req.Options.Validate(); err != nil {
		q.logger.Warn("ingest_request_rejected", "error", err)
		result = domain.FailedResult(err.Error())
	} else {
		result = handler(ctx, req)
	}
	if result == nil {
		result = domain.FailedResult("worker returned no result")
	}

	reply, err := json.Marshal(result)
	if err != nil {
		q.logger.Error("ingest_result_encode_failed", "error", err)
		reply, _ = json.Marshal(domain.FailedResult("encode result failed"))
	}
	return reply
}
