package domain

import (
	"fmt"
	"time"
)

// Metadata keys shared by converters, enrichment and chunk linking.
const (
	MetaTitle         = "title"
	MetaDescription   = "description"
	MetaSource        = "source"
	MetaSourceType    = "source_type"
	MetaFilename      = "filename"
	MetaContentHash   = "content_hash"
	MetaContentLength = "content_length"
	MetaDocumentID    = "document_id"
	MetaChunkIndex    = "chunk_index"
	MetaChunkCount    = "chunk_count"
	MetaCollectionID  = "collection_id"
	MetaFormat        = "format_category"
)

// Metadata is the free-form map carried by parent documents and chunks.
type Metadata map[string]any

// Clone returns a shallow copy; chunks never share a map with their parent.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m)+4)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// String returns the value under key when it is a non-empty string.
func (m Metadata) String(key string) string {
	v, _ := m[key].(string)
	return v
}

type DuplicatePolicy string

const (
	DuplicatePolicySkip      DuplicatePolicy = "skip"
	DuplicatePolicyOverwrite DuplicatePolicy = "overwrite"
)

const ChunkingStrategyNone = "none"

// ProcessingOptions is fixed for the lifetime of one request.
type ProcessingOptions struct {
	ProcessingMode   string          `json:"processing_mode,omitempty"`
	ChunkingStrategy string          `json:"chunking_strategy,omitempty"`
	UseAIMetadata    bool            `json:"use_ai_metadata"`
	CollectionID     string          `json:"collection_id,omitempty"`
	DuplicatePolicy  DuplicatePolicy `json:"duplicate_policy,omitempty"`
}

// Valid accepts the empty policy, which means skip.
func (p DuplicatePolicy) Valid() bool {
	switch p {
	case "", DuplicatePolicySkip, DuplicatePolicyOverwrite:
		return true
	default:
		return false
	}
}

// Validate rejects options that would otherwise be silently reinterpreted.
func (o ProcessingOptions) Validate() error {
	if !o.DuplicatePolicy.Valid() {
		return WrapError(ErrInvalidInput, "validate options",
			fmt.Errorf("duplicate_policy must be %q or %q, got %q", DuplicatePolicySkip, DuplicatePolicyOverwrite, o.DuplicatePolicy))
	}
	return nil
}

func (o ProcessingOptions) Overwrite() bool {
	return o.DuplicatePolicy == DuplicatePolicyOverwrite
}

// ParentDocument is the full, unchunked representation of one converted input.
// ID stays empty until the store accepts it.
type ParentDocument struct {
	ID       string   `json:"id,omitempty"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Chunk is a retrieval-sized fragment linked back to its parent via MetaDocumentID.
type Chunk struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// StoredDocument is what the document store reports for duplicate lookups.
type StoredDocument struct {
	ID           string    `json:"id"`
	CollectionID string    `json:"collection_id"`
	Filename     string    `json:"filename"`
	Title        string    `json:"title"`
	ContentHash  string    `json:"content_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// ConversionOptions is handed to the document conversion engine.
type ConversionOptions struct {
	Filename       string
	ContentType    string
	ProcessingMode string
}

type ConversionStatus string

const (
	ConversionSuccess ConversionStatus = "success"
	ConversionFailure ConversionStatus = "failure"
)

// ConversionOutcome is the structured result of the document conversion engine.
type ConversionOutcome struct {
	Status    ConversionStatus
	Markdown  string
	PageCount int
	Metadata  Metadata
	Error     string
}

// ImageAnalysis is returned by the vision collaborator.
type ImageAnalysis struct {
	Title               string `json:"title"`
	ShortDescription    string `json:"short_description"`
	DetailedDescription string `json:"detailed_description"`
}

// BlobLocation describes where raw bytes were uploaded.
type BlobLocation struct {
	StoragePath string `json:"storage_path"`
	Bucket      string `json:"bucket"`
	FilePath    string `json:"file_path"`
}

// GeneratedMetadata is returned by the AI metadata collaborator.
type GeneratedMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// FetchedResource is a downloaded URL body.
type FetchedResource struct {
	URL         string
	FinalURL    string
	ContentType string
	Title       string
	Text        string
	Body        []byte
	SourceType  string
	Metadata    Metadata
}

// IngestedEvent announces a persisted parent document to downstream stages.
type IngestedEvent struct {
	DocumentID   string    `json:"document_id"`
	CollectionID string    `json:"collection_id"`
	Filename     string    `json:"filename"`
	ChunkCount   int       `json:"chunk_count"`
	IngestedAt   time.Time `json:"ingested_at"`
}
