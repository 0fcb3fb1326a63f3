// Package memory keeps parent documents in process memory. It backs the CLI
// and tests when no database is configured.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

type record struct {
	collectionID string
	content      string
	metadata     domain.Metadata
	createdAt    time.Time
	seq          uint64
}

type DocumentStore struct {
	mu      sync.RWMutex
	records map[string]record
	seq     uint64
	now     func() time.Time
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		records: make(map[string]record),
		now:     time.Now,
	}
}

func (s *DocumentStore) CreateDocument(_ context.Context, collectionID, content string, metadata domain.Metadata) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	id := uuid.NewString()
	s.records[id] = record{
		collectionID: collectionID,
		content:      content,
		metadata:     metadata.Clone(),
		createdAt:    s.now().UTC(),
		seq:          s.seq,
	}
	return id, nil
}

func (s *DocumentStore) FindExisting(_ context.Context, collectionID, filename string) (*domain.StoredDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		bestID string
		best   record
	)
	for id, rec := range s.records {
		if rec.collectionID != collectionID || rec.metadata.String(domain.MetaFilename) != filename {
			continue
		}
		if bestID == "" || rec.seq > best.seq {
			bestID, best = id, rec
		}
	}
	if bestID == "" {
		return nil, nil
	}
	return &domain.StoredDocument{
		ID:           bestID,
		CollectionID: best.collectionID,
		Filename:     filename,
		Title:        best.metadata.String(domain.MetaTitle),
		ContentHash:  best.metadata.String(domain.MetaContentHash),
		CreatedAt:    best.createdAt,
	}, nil
}

func (s *DocumentStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "delete document", fmt.Errorf("id=%s", id))
	}
	delete(s.records, id)
	return nil
}

func (s *DocumentStore) GetByID(_ context.Context, id string) (*domain.ParentDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	return &domain.ParentDocument{ID: id, Content: rec.content, Metadata: rec.metadata.Clone()}, nil
}

func (s *DocumentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
