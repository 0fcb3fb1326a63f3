package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/kirillkom/knowledge-ingest/internal/config"
	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		AIProvider:      "none",
		BlobBackend:     "local",
		StoragePath:     t.TempDir(),
		ChunkSize:       200,
		ChunkOverlap:    20,
		ChunkStrategy:   "recursive",
		MaxConcurrent:   2,
		SpreadsheetRows: 100,
	}
}

func TestNewWiresInMemoryPipeline(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := New(context.Background(), testConfig(t), logger, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if app.Queue != nil {
		t.Fatalf("expected no queue without NATS_URL")
	}
	result := app.Ingest.ProcessInput(context.Background(), domain.IngestRequest{
		TextContent: "Quarterly goals.\n\nShip the ingest pipeline.",
		Title:       "Goals",
		Options:     domain.ProcessingOptions{CollectionID: "kb"},
	}, nil)
	if !result.Success || len(result.Documents) != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	id := result.Documents[0].ID
	doc, err := app.Documents.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%s) error = %v", id, err)
	}
	if doc.Metadata.String(domain.MetaTitle) != "Goals" {
		t.Fatalf("unexpected stored metadata %+v", doc.Metadata)
	}
}

func TestNewRejectsUnknownProviders(t *testing.T) {
	cfg := testConfig(t)
	cfg.AIProvider = "mystery"
	if _, err := New(context.Background(), cfg, nil, Options{}); err == nil {
		t.Fatalf("expected unknown provider error")
	}

	cfg = testConfig(t)
	cfg.BlobBackend = "ftp"
	if _, err := New(context.Background(), cfg, nil, Options{}); err == nil {
		t.Fatalf("expected unknown blob backend error")
	}
}

func TestNewRequiresQueueWhenAsked(t *testing.T) {
	if _, err := New(context.Background(), testConfig(t), nil, Options{RequireQueue: true}); err == nil {
		t.Fatalf("expected error without NATS_URL")
	}
}
