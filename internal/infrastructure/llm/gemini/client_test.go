package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

type generatorFake struct {
	out   string
	err   error
	parts []genai.Part
}

func (f *generatorFake) generate(_ context.Context, _ string, parts ...genai.Part) (string, error) {
	f.parts = parts
	return f.out, f.err
}

func newTestClient(gen *generatorFake) *Client {
	return &Client{gen: gen, model: defaultModel}
}

func TestVisionAnalyzerSendsImagePart(t *testing.T) {
	gen := &generatorFake{out: `{"title":"Chart","short_description":"Bars","detailed_description":"Revenue bars for 2025"}`}
	got, err := NewVisionAnalyzer(newTestClient(gen)).Analyze(context.Background(), []byte("img"), "png", "Revenue")
	require.NoError(t, err)
	assert.Equal(t, "Chart", got.Title)
	assert.Equal(t, "Revenue bars for 2025", got.DetailedDescription)

	require.Len(t, gen.parts, 2)
	blob, ok := gen.parts[0].(genai.Blob)
	require.True(t, ok)
	assert.Equal(t, "image/png", blob.MIMEType)
}

func TestVisionAnalyzerUsesFallbackTitle(t *testing.T) {
	gen := &generatorFake{out: `{"detailed_description":"Handwritten notes"}`}
	got, err := NewVisionAnalyzer(newTestClient(gen)).Analyze(context.Background(), []byte("img"), "jpeg", "Scan 01")
	require.NoError(t, err)
	assert.Equal(t, "Scan 01", got.Title)
}

func TestMetadataGenerator(t *testing.T) {
	gen := &generatorFake{out: "```json\n{\"name\":\"Runbook\",\"description\":\"How to restart.\"}\n```"}
	got, err := NewMetadataGenerator(newTestClient(gen)).Generate(context.Background(), "restart steps", "runbook.md")
	require.NoError(t, err)
	assert.Equal(t, domain.GeneratedMetadata{Name: "Runbook", Description: "How to restart."}, got)

	text, ok := gen.parts[0].(genai.Text)
	require.True(t, ok)
	assert.True(t, strings.Contains(string(text), "runbook.md"))
}

func TestMetadataGeneratorPropagatesErrors(t *testing.T) {
	gen := &generatorFake{err: domain.WrapError(domain.ErrTemporary, "gemini generate", errors.New("quota"))}
	_, err := NewMetadataGenerator(newTestClient(gen)).Generate(context.Background(), "x", "a.txt")
	assert.True(t, domain.IsKind(err, domain.ErrTemporary))
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(context.Background(), " ", "")
	assert.True(t, domain.IsKind(err, domain.ErrInvalidInput))
}
