package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

// ClassifyDomainError maps the pipeline's error kinds onto retry decisions.
// Temporary failures are retried; caller mistakes are neither retried nor
// counted against the breaker; cancellation stops immediately.
func ClassifyDomainError(err error) ErrorClassification {
	if class, ok := ClassifyCommon(err); ok {
		return class
	}
	return ErrorClassification{RecordFailure: true}
}

// ClassifyCommon handles the cases every network collaborator shares. The
// second result is false when the caller must decide.
func ClassifyCommon(err error) (ErrorClassification, bool) {
	switch {
	case err == nil:
		return ErrorClassification{}, true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorClassification{}, true
	case IsCircuitOpen(err):
		return ErrorClassification{Retryable: true, RecordFailure: true}, true
	case domain.IsKind(err, domain.ErrTemporary):
		return ErrorClassification{Retryable: true, RecordFailure: true}, true
	case domain.IsKind(err, domain.ErrInvalidInput),
		domain.IsKind(err, domain.ErrUnsupportedFormat),
		domain.IsKind(err, domain.ErrDocumentNotFound):
		return ErrorClassification{}, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassification{Retryable: true, RecordFailure: true}, true
	}
	return ErrorClassification{}, false
}

// ClassifyHTTPStatus retries overload and gateway statuses. Any other status
// is an answer about the request, not about the collaborator's health.
func ClassifyHTTPStatus(code int) ErrorClassification {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return ErrorClassification{}
	}
}

// AsTemporary marks err as domain.ErrTemporary when classifier would have
// retried it, so callers upstream of the executor see a transient failure.
func AsTemporary(operation string, err error, classifier ErrorClassifier) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifier == nil {
		classifier = ClassifyDomainError
	}
	if classifier(err).Retryable || IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
