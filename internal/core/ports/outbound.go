package ports

import (
	"context"
	"time"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

// DocumentStore persists parent documents and answers duplicate lookups.
type DocumentStore interface {
	CreateDocument(ctx context.Context, collectionID, content string, metadata domain.Metadata) (string, error)
	// FindExisting returns the newest document in the collection stored under
	// filename, or nil when there is none.
	FindExisting(ctx context.Context, collectionID, filename string) (*domain.StoredDocument, error)
	DeleteDocument(ctx context.Context, id string) error
}

// Chunker splits parent documents into retrieval-sized chunks. Chunks keep
// the parent's metadata shape.
type Chunker interface {
	Chunk(ctx context.Context, docs []domain.ParentDocument, strategy string) ([]domain.Chunk, error)
}

// DocumentConverter turns PDF/DOCX/PPTX/HTML files into markdown.
type DocumentConverter interface {
	Convert(ctx context.Context, path string, opts domain.ConversionOptions) (domain.ConversionOutcome, error)
}

// SpreadsheetExtractor reads workbooks with calculated formula values.
type SpreadsheetExtractor interface {
	Extract(ctx context.Context, path, filename string) ([]domain.ParentDocument, error)
}

// VisionAnalyzer describes an image.
type VisionAnalyzer interface {
	Analyze(ctx context.Context, image []byte, format, fallbackTitle string) (domain.ImageAnalysis, error)
}

// BlobStorage keeps raw uploads next to their text representation.
type BlobStorage interface {
	Upload(ctx context.Context, data []byte, filename, contentType, collectionID string) (domain.BlobLocation, error)
}

// MetadataGenerator produces a title and description from document content.
type MetadataGenerator interface {
	Generate(ctx context.Context, content, fallbackName string) (domain.GeneratedMetadata, error)
}

// URLFetcher downloads web pages and video descriptions.
type URLFetcher interface {
	Fetch(ctx context.Context, rawURL string, sourceType string) (*domain.FetchedResource, error)
}

// MemoryProbe reports live memory telemetry. Values are advisory.
type MemoryProbe interface {
	AvailableBytes() (uint64, error)
	ProcessBytes() (uint64, error)
}

// EventPublisher announces persisted documents to downstream stages.
type EventPublisher interface {
	PublishDocumentIngested(ctx context.Context, event domain.IngestedEvent) error
}

// IngestObserver receives pipeline measurements.
type IngestObserver interface {
	FileStarted()
	FileFinished(category domain.FormatCategory, duration time.Duration, err error)
	DuplicateDecided(action domain.DuplicateAction)
	StrategyChosen(strategy string)
	ChunksProduced(n int)
}

// NopObserver discards all measurements.
type NopObserver struct{}

func (NopObserver) FileStarted()                                             {}
func (NopObserver) FileFinished(domain.FormatCategory, time.Duration, error) {}
func (NopObserver) DuplicateDecided(domain.DuplicateAction)                  {}
func (NopObserver) StrategyChosen(string)                                    {}
func (NopObserver) ChunksProduced(int)                                       {}
