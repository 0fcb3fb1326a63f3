package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
)

// MetadataEnricher derives a title and description for a parent document.
// It never fails: AI errors fall back to the filename-derived title.
type MetadataEnricher struct {
	generator ports.MetadataGenerator
	logger    *slog.Logger
}

func NewMetadataEnricher(generator ports.MetadataGenerator, logger *slog.Logger) *MetadataEnricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetadataEnricher{
		generator: generator,
		logger:    logger,
	}
}

// Values stored under the metadata_source key.
const (
	MetadataSourceAI        = "ai"
	MetadataSourceFilename  = "filename"
	MetadataSourceConverter = "converter"
)

// Enrichment is what Enrich settled on. Source tells whether the
// generator's answer was used or the filename fallback.
type Enrichment struct {
	Title       string
	Description string
	Source      string
}

func (e *MetadataEnricher) Enrich(ctx context.Context, filename, content string, useAI bool, mode string) Enrichment {
	out := Enrichment{
		Title:       FallbackTitle(filename),
		Description: fallbackDescription(filename),
		Source:      MetadataSourceFilename,
	}

	if !useAI || e.generator == nil || strings.TrimSpace(content) == "" {
		return out
	}

	generated, err := e.generate(ctx, content, out.Title)
	if err != nil {
		e.logger.Warn("ai_metadata_fallback",
			"filename", filename,
			"processing_mode", mode,
			"error", err,
		)
		return out
	}

	out.Source = MetadataSourceAI
	if name := strings.TrimSpace(generated.Name); name != "" {
		out.Title = name
	}
	if desc := strings.TrimSpace(generated.Description); desc != "" {
		out.Description = desc
	}
	return out
}

func (e *MetadataEnricher) generate(ctx context.Context, content, fallback string) (out domain.GeneratedMetadata, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("metadata generator panic: %v", r)
		}
	}()
	return e.generator.Generate(ctx, content, fallback)
}

// FallbackTitle strips the extension, turns _ - . into spaces and title-cases
// each word.
func FallbackTitle(filename string) string {
	base := filepath.Base(strings.TrimSpace(filename))
	if base == "." || base == string(filepath.Separator) {
		base = ""
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(base)
	words := strings.Fields(base)
	if len(words) == 0 {
		return "Untitled Document"
	}
	caser := cases.Title(language.Und)
	return caser.String(strings.Join(words, " "))
}

func fallbackDescription(filename string) string {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." {
		return "Uploaded content"
	}
	return "Content extracted from " + name
}
