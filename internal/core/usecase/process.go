package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
)

// sourceInfo describes where a file came from when it did not arrive as an upload.
type sourceInfo struct {
	sourceType string
	origin     string
}

// DocumentProcessor runs one input through conversion, enrichment,
// persistence and chunking.
type DocumentProcessor struct {
	converters Converters
	enricher   *MetadataEnricher
	store      ports.DocumentStore
	chunker    ports.Chunker
	publisher  ports.EventPublisher
	observer   ports.IngestObserver
	logger     *slog.Logger
}

func NewDocumentProcessor(
	converters Converters,
	enricher *MetadataEnricher,
	store ports.DocumentStore,
	chunker ports.Chunker,
	publisher ports.EventPublisher,
	observer ports.IngestObserver,
	logger *slog.Logger,
) *DocumentProcessor {
	if observer == nil {
		observer = ports.NopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if enricher == nil {
		enricher = NewMetadataEnricher(nil, logger)
	}
	return &DocumentProcessor{
		converters: converters,
		enricher:   enricher,
		store:      store,
		chunker:    chunker,
		publisher:  publisher,
		observer:   observer,
		logger:     logger,
	}
}

// ProcessFile classifies and converts one resolved file, then finishes every
// parent document it yields. replaceID is deleted right before the first
// parent is persisted.
func (p *DocumentProcessor) ProcessFile(
	ctx context.Context,
	file ScheduledFile,
	decision domain.DuplicateDecision,
	opts domain.ProcessingOptions,
) FileOutcome {
	return p.processFile(ctx, file, decision, opts, sourceInfo{})
}

func (p *DocumentProcessor) processFile(
	ctx context.Context,
	file ScheduledFile,
	decision domain.DuplicateDecision,
	opts domain.ProcessingOptions,
	source sourceInfo,
) (outcome FileOutcome) {
	start := time.Now()
	category := ClassifyFormat(file.File.Filename, file.File.ContentType)
	p.observer.FileStarted()
	defer func() {
		p.observer.FileFinished(category, time.Since(start), outcome.Err)
	}()

	outcome = FileOutcome{Index: file.Index, Filename: file.File.Filename}

	hash := decision.ContentHash
	if hash == "" {
		hash = ContentHash(file.File.Content)
	}
	docs, err := p.converters.Convert(ctx, category, ConvertInput{
		Data:         file.File.Content,
		Filename:     file.File.Filename,
		ContentType:  file.File.ContentType,
		Options:      opts,
		ContentHash:  hash,
		SourceType:   source.sourceType,
		SourceOrigin: source.origin,
	})
	if err != nil {
		outcome.Err = err
		return outcome
	}

	replaceID := ""
	if decision.Action == domain.DuplicateOverwrite {
		replaceID = decision.ExistingDocumentID
	}
	for _, doc := range docs {
		summary, chunks := p.FinishDocument(ctx, doc, file.File.Filename, opts, replaceID)
		summary.Format = category
		replaceID = ""
		outcome.Documents = append(outcome.Documents, summary)
		outcome.Chunks = append(outcome.Chunks, chunks...)
	}

	p.logger.Info("file_processed",
		"index", file.Index,
		"filename", file.File.Filename,
		"format_category", string(category),
		"documents", len(outcome.Documents),
		"chunks", len(outcome.Chunks),
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	return outcome
}

// FinishDocument enriches, persists, chunks and links one parent document.
// Persistence failures are logged and the chunks are returned unlinked.
func (p *DocumentProcessor) FinishDocument(
	ctx context.Context,
	doc domain.ParentDocument,
	filename string,
	opts domain.ProcessingOptions,
	replaceID string,
) (domain.DocumentSummary, []domain.Chunk) {
	if doc.Metadata == nil {
		doc.Metadata = domain.Metadata{}
	}
	p.enrich(ctx, &doc, filename, opts)
	if opts.CollectionID != "" {
		doc.Metadata[domain.MetaCollectionID] = opts.CollectionID
	}
	if _, ok := doc.Metadata[domain.MetaContentLength]; !ok {
		addTextStats(doc.Content, doc.Metadata)
	}

	doc.ID = p.persist(ctx, doc, filename, opts, replaceID)

	chunks := p.chunk(ctx, doc, opts.ChunkingStrategy)
	linkChunks(chunks, doc)
	p.observer.ChunksProduced(len(chunks))

	if doc.ID != "" {
		p.publish(ctx, doc, filename, opts, len(chunks))
	}

	return domain.DocumentSummary{
		ID:            doc.ID,
		Title:         doc.Metadata.String(domain.MetaTitle),
		Filename:      filename,
		Source:        doc.Metadata.String(domain.MetaSource),
		SourceType:    doc.Metadata.String(domain.MetaSourceType),
		ContentLength: len([]rune(doc.Content)),
		ChunkCount:    len(chunks),
		Persisted:     doc.ID != "",
	}, chunks
}

func (p *DocumentProcessor) enrich(ctx context.Context, doc *domain.ParentDocument, filename string, opts domain.ProcessingOptions) {
	// Converters such as the image converter already produce a title.
	if doc.Metadata.String(domain.MetaTitle) != "" {
		if doc.Metadata.String(domain.MetaDescription) == "" {
			doc.Metadata[domain.MetaDescription] = fallbackDescription(filename)
		}
		doc.Metadata["metadata_source"] = MetadataSourceConverter
		return
	}

	enriched := p.enricher.Enrich(ctx, filename, doc.Content, opts.UseAIMetadata, opts.ProcessingMode)
	doc.Metadata[domain.MetaTitle] = enriched.Title
	doc.Metadata[domain.MetaDescription] = enriched.Description
	doc.Metadata["metadata_source"] = enriched.Source
}

func (p *DocumentProcessor) persist(ctx context.Context, doc domain.ParentDocument, filename string, opts domain.ProcessingOptions, replaceID string) string {
	if p.store == nil || opts.CollectionID == "" {
		return ""
	}

	if replaceID != "" {
		if err := p.store.DeleteDocument(ctx, replaceID); err != nil && !domain.IsKind(err, domain.ErrDocumentNotFound) {
			p.logger.Warn("previous_document_delete_failed",
				"filename", filename,
				"document_id", replaceID,
				"error", err,
			)
		} else {
			p.logger.Info("previous_document_deleted", "filename", filename, "document_id", replaceID)
		}
	}

	id, err := p.safeCreate(ctx, opts.CollectionID, doc)
	if err != nil {
		p.logger.Warn("parent_persistence_failed",
			"collection_id", opts.CollectionID,
			"filename", filename,
			"error", err,
		)
		return ""
	}
	return id
}

func (p *DocumentProcessor) safeCreate(ctx context.Context, collectionID string, doc domain.ParentDocument) (id string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("document store panic: %v", r)
		}
	}()
	return p.store.CreateDocument(ctx, collectionID, doc.Content, doc.Metadata)
}

func (p *DocumentProcessor) chunk(ctx context.Context, doc domain.ParentDocument, strategy string) []domain.Chunk {
	strategy = strings.TrimSpace(strategy)
	if strategy == domain.ChunkingStrategyNone || p.chunker == nil {
		return []domain.Chunk{{Content: doc.Content, Metadata: doc.Metadata.Clone()}}
	}

	chunks, err := p.safeChunk(ctx, doc, strategy)
	if err != nil || len(chunks) == 0 {
		p.logger.Warn("chunking_fallback_single_chunk",
			"strategy", strategy,
			"title", doc.Metadata.String(domain.MetaTitle),
			"error", err,
		)
		return []domain.Chunk{{Content: doc.Content, Metadata: doc.Metadata.Clone()}}
	}
	return chunks
}

func (p *DocumentProcessor) safeChunk(ctx context.Context, doc domain.ParentDocument, strategy string) (chunks []domain.Chunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("chunker panic: %v", r)
		}
	}()
	return p.chunker.Chunk(ctx, []domain.ParentDocument{doc}, strategy)
}

func (p *DocumentProcessor) publish(ctx context.Context, doc domain.ParentDocument, filename string, opts domain.ProcessingOptions, chunkCount int) {
	if p.publisher == nil {
		return
	}
	err := p.publisher.PublishDocumentIngested(ctx, domain.IngestedEvent{
		DocumentID:   doc.ID,
		CollectionID: opts.CollectionID,
		Filename:     filename,
		ChunkCount:   chunkCount,
		IngestedAt:   time.Now().UTC(),
	})
	if err != nil {
		p.logger.Warn("ingested_event_publish_failed", "document_id", doc.ID, "error", err)
	}
}

// linkChunks stamps every chunk with its parent's identity. Chunks of an
// unpersisted parent carry no document_id.
func linkChunks(chunks []domain.Chunk, parent domain.ParentDocument) {
	for i := range chunks {
		meta := chunks[i].Metadata.Clone()
		if meta.String(domain.MetaTitle) == "" {
			meta[domain.MetaTitle] = parent.Metadata.String(domain.MetaTitle)
		}
		if parent.ID != "" {
			meta[domain.MetaDocumentID] = parent.ID
		} else {
			delete(meta, domain.MetaDocumentID)
		}
		meta[domain.MetaChunkIndex] = i
		meta[domain.MetaChunkCount] = len(chunks)
		chunks[i].Metadata = meta
	}
}
