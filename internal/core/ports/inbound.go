package ports

import (
	"context"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

// ProgressFunc receives the number of completed files after each completion.
type ProgressFunc func(completed, total int, percent float64)

// Ingestor is the inbound contract for the ingestion pipeline. It never
// returns an error: failures are reported inside the ProcessingResult.
type Ingestor interface {
	ProcessInput(ctx context.Context, req domain.IngestRequest, progress ProgressFunc) *domain.ProcessingResult
}
