package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

func TestDocumentStoreFindExistingReturnsNewest(t *testing.T) {
	ctx := context.Background()
	store := NewDocumentStore()

	_, err := store.CreateDocument(ctx, "kb", "v1", domain.Metadata{domain.MetaFilename: "a.txt", domain.MetaContentHash: "h1"})
	require.NoError(t, err)
	second, err := store.CreateDocument(ctx, "kb", "v2", domain.Metadata{domain.MetaFilename: "a.txt", domain.MetaContentHash: "h2"})
	require.NoError(t, err)
	_, err = store.CreateDocument(ctx, "other", "v3", domain.Metadata{domain.MetaFilename: "a.txt", domain.MetaContentHash: "h3"})
	require.NoError(t, err)

	found, err := store.FindExisting(ctx, "kb", "a.txt")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, second, found.ID)
	assert.Equal(t, "h2", found.ContentHash)

	missing, err := store.FindExisting(ctx, "kb", "b.txt")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDocumentStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewDocumentStore()

	id, err := store.CreateDocument(ctx, "kb", "body", domain.Metadata{domain.MetaFilename: "a.txt"})
	require.NoError(t, err)
	require.NoError(t, store.DeleteDocument(ctx, id))
	assert.Equal(t, 0, store.Len())

	err = store.DeleteDocument(ctx, id)
	assert.True(t, domain.IsKind(err, domain.ErrDocumentNotFound))

	_, err = store.GetByID(ctx, id)
	assert.True(t, domain.IsKind(err, domain.ErrDocumentNotFound))
}
