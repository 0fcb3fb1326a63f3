package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/resilience"
)

type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d for %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("status %d for %s: %s", e.StatusCode, e.URL, e.Body)
}

func classifyFetchError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		// A 500 from one site says nothing about the fetch path.
		if statusErr.StatusCode == http.StatusInternalServerError {
			return resilience.ErrorClassification{}
		}
		return resilience.ClassifyHTTPStatus(statusErr.StatusCode)
	}
	return resilience.ErrorClassification{RecordFailure: true}
}
