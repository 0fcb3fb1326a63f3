package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type storeFake struct {
	mu        sync.Mutex
	seq       int
	docs      map[string]storedFake
	deleted   []string
	createErr error
	findErr   error
	events    []string
}

type storedFake struct {
	collectionID string
	content      string
	metadata     domain.Metadata
	createdAt    time.Time
}

func newStoreFake() *storeFake {
	return &storeFake{docs: map[string]storedFake{}}
}

func (f *storeFake) CreateDocument(_ context.Context, collectionID, content string, metadata domain.Metadata) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.seq++
	id := fmt.Sprintf("doc-%d", f.seq)
	f.docs[id] = storedFake{
		collectionID: collectionID,
		content:      content,
		metadata:     metadata.Clone(),
		createdAt:    time.Unix(int64(f.seq), 0),
	}
	f.events = append(f.events, "create:"+id)
	return id, nil
}

func (f *storeFake) FindExisting(_ context.Context, collectionID, filename string) (*domain.StoredDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	ids := make([]string, 0, len(f.docs))
	for id := range f.docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return f.docs[ids[i]].createdAt.After(f.docs[ids[j]].createdAt) })
	for _, id := range ids {
		doc := f.docs[id]
		if doc.collectionID == collectionID && doc.metadata.String(domain.MetaFilename) == filename {
			return &domain.StoredDocument{
				ID:           id,
				CollectionID: collectionID,
				Filename:     filename,
				Title:        doc.metadata.String(domain.MetaTitle),
				ContentHash:  doc.metadata.String(domain.MetaContentHash),
				CreatedAt:    doc.createdAt,
			}, nil
		}
	}
	return nil, nil
}

func (f *storeFake) DeleteDocument(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "delete document", errors.New(id))
	}
	delete(f.docs, id)
	f.deleted = append(f.deleted, id)
	f.events = append(f.events, "delete:"+id)
	return nil
}

func (f *storeFake) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

// lineChunker splits on blank lines.
type lineChunker struct {
	err error
}

func (c lineChunker) Chunk(_ context.Context, docs []domain.ParentDocument, _ string) ([]domain.Chunk, error) {
	if c.err != nil {
		return nil, c.err
	}
	var out []domain.Chunk
	for _, doc := range docs {
		for _, part := range strings.Split(doc.Content, "\n\n") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			out = append(out, domain.Chunk{Content: part, Metadata: doc.Metadata.Clone()})
		}
	}
	return out, nil
}

type probeFake struct {
	available    uint64
	availableErr error
	process      uint64
}

func (p probeFake) AvailableBytes() (uint64, error) {
	return p.available, p.availableErr
}

func (p probeFake) ProcessBytes() (uint64, error) {
	return p.process, nil
}

type generatorFake struct {
	out domain.GeneratedMetadata
	err error
}

func (g generatorFake) Generate(context.Context, string, string) (domain.GeneratedMetadata, error) {
	return g.out, g.err
}

type visionFake struct {
	analysis domain.ImageAnalysis
	err      error
}

func (v visionFake) Analyze(context.Context, []byte, string, string) (domain.ImageAnalysis, error) {
	return v.analysis, v.err
}

type blobFake struct {
	uploads []string
	err     error
}

func (b *blobFake) Upload(_ context.Context, _ []byte, filename, _, collectionID string) (domain.BlobLocation, error) {
	if b.err != nil {
		return domain.BlobLocation{}, b.err
	}
	b.uploads = append(b.uploads, filename)
	return domain.BlobLocation{
		StoragePath: collectionID + "/" + filename,
		Bucket:      "uploads",
		FilePath:    "/" + collectionID + "/" + filename,
	}, nil
}

type fetcherFake struct {
	resources map[string]*domain.FetchedResource
}

func (f fetcherFake) Fetch(_ context.Context, rawURL, sourceType string) (*domain.FetchedResource, error) {
	res, ok := f.resources[rawURL]
	if !ok {
		return nil, fmt.Errorf("status 404 for %s", rawURL)
	}
	out := *res
	if out.SourceType == "" {
		out.SourceType = sourceType
	}
	return &out, nil
}

type publisherFake struct {
	mu     sync.Mutex
	events []domain.IngestedEvent
}

func (p *publisherFake) PublishDocumentIngested(_ context.Context, event domain.IngestedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

type observerFake struct {
	ports.NopObserver
	mu         sync.Mutex
	strategies []string
	finished   int
}

func (o *observerFake) StrategyChosen(strategy string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.strategies = append(o.strategies, strategy)
}

func (o *observerFake) FileFinished(domain.FormatCategory, time.Duration, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished++
}

type pipelineDeps struct {
	store      ports.DocumentStore
	chunker    ports.Chunker
	converters Converters
	generator  ports.MetadataGenerator
	fetcher    ports.URLFetcher
	publisher  ports.EventPublisher
	observer   ports.IngestObserver
	probe      ports.MemoryProbe
	maxConc    int
}

func newTestIngest(t testing.TB, deps pipelineDeps) *IngestUseCase {
	t.Helper()
	logger := discardLogger()
	if deps.converters == nil {
		deps.converters = Converters{domain.FormatSimpleText: NewTextConverter()}
	}
	if deps.probe == nil {
		deps.probe = probeFake{available: 8 << 30}
	}
	if deps.maxConc == 0 {
		deps.maxConc = 4
	}
	scheduler, err := NewScheduler(SchedulerConfig{MaxConcurrent: deps.maxConc}, deps.probe, logger)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	t.Cleanup(scheduler.Release)

	processor := NewDocumentProcessor(
		deps.converters,
		NewMetadataEnricher(deps.generator, logger),
		deps.store,
		deps.chunker,
		deps.publisher,
		deps.observer,
		logger,
	)
	return NewIngestUseCase(
		processor,
		NewDuplicateDetector(deps.store, deps.observer, logger),
		scheduler,
		deps.fetcher,
		deps.observer,
		logger,
	)
}
