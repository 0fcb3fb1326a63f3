package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
)

type ingestorFake struct {
	req    domain.IngestRequest
	result *domain.ProcessingResult
}

func (f *ingestorFake) ProcessInput(_ context.Context, req domain.IngestRequest, progress ports.ProgressFunc) *domain.ProcessingResult {
	f.req = req
	if progress != nil {
		progress(len(req.Files), len(req.Files), 100)
	}
	if f.result != nil {
		return f.result
	}
	out := domain.NewProcessingResult()
	out.Success = true
	out.Documents = []domain.DocumentSummary{{ID: "doc-1", Title: "Notes", SourceType: "file", ContentLength: 11, ChunkCount: 1}}
	return out
}

func run(t *testing.T, fake *ingestorFake, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(fake)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestFilesCommandReadsPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o600))

	fake := &ingestorFake{}
	out, err := run(t, fake, "", "files", path, "--collection", "kb", "--duplicate-policy", "overwrite")
	require.NoError(t, err)

	require.Len(t, fake.req.Files, 1)
	assert.Equal(t, "notes.txt", fake.req.Files[0].Filename)
	assert.Equal(t, []byte("hello world"), fake.req.Files[0].Content)
	assert.Equal(t, "kb", fake.req.Options.CollectionID)
	assert.True(t, fake.req.Options.Overwrite())
	assert.Contains(t, out, "processed 1/1")
	assert.Contains(t, out, "[1] Notes (file) 11 chars, 1 chunks, doc-1")
}

func TestURLCommandRoutesByCount(t *testing.T) {
	fake := &ingestorFake{}
	_, err := run(t, fake, "", "url", "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", fake.req.URL)

	_, err = run(t, fake, "", "url", "https://example.com/a", "https://example.com/b")
	require.NoError(t, err)
	assert.Len(t, fake.req.URLs, 2)

	_, err = run(t, fake, "", "url", "--youtube", "https://youtu.be/abc")
	require.NoError(t, err)
	require.Len(t, fake.req.BatchItems, 1)
	assert.Equal(t, domain.BatchItemYouTube, fake.req.BatchItems[0].Type)
}

func TestTextCommandReadsStdin(t *testing.T) {
	fake := &ingestorFake{}
	out, err := run(t, fake, "from stdin", "text", "--title", "Memo", "--json")
	require.NoError(t, err)
	assert.Equal(t, "from stdin", fake.req.TextContent)
	assert.Equal(t, "Memo", fake.req.Title)
	assert.Contains(t, out, `"success": true`)
}

func TestFailedResultReturnsError(t *testing.T) {
	fake := &ingestorFake{result: domain.FailedResult("no readable content")}
	_, err := run(t, fake, "", "text", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no readable content")
}

func TestRejectsUnknownDuplicatePolicy(t *testing.T) {
	fake := &ingestorFake{}
	_, err := run(t, fake, "", "text", "x", "--duplicate-policy", "merge")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInvalidInput))
}
