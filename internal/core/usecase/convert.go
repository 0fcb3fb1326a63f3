package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

// ConvertInput is the shared converter contract input.
type ConvertInput struct {
	Data         []byte
	Filename     string
	ContentType  string
	Options      domain.ProcessingOptions
	ContentHash  string
	SourceType   string
	SourceOrigin string
}

// Converter turns raw bytes into parent documents. Implementations return
// errors instead of panicking; the pipeline still recovers if one does.
type Converter interface {
	Convert(ctx context.Context, in ConvertInput) ([]domain.ParentDocument, error)
}

type ConverterFunc func(ctx context.Context, in ConvertInput) ([]domain.ParentDocument, error)

func (f ConverterFunc) Convert(ctx context.Context, in ConvertInput) ([]domain.ParentDocument, error) {
	return f(ctx, in)
}

// Converters dispatches by format category.
type Converters map[domain.FormatCategory]Converter

func (c Converters) Convert(ctx context.Context, category domain.FormatCategory, in ConvertInput) ([]domain.ParentDocument, error) {
	converter, ok := c[category]
	if !ok || category == domain.FormatUnsupported {
		return nil, unsupportedError(in.Filename)
	}
	docs, err := converter.Convert(ctx, in)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, domain.WrapError(domain.ErrConversionFailed, "convert "+in.Filename, fmt.Errorf("%s converter produced no documents", category))
	}
	return docs, nil
}

func unsupportedError(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = "(none)"
	}
	return domain.WrapError(
		domain.ErrUnsupportedFormat,
		"classify "+filename,
		fmt.Errorf("file type %s is not supported; convert it to PDF, DOCX, TXT, MD, CSV, XLSX or an image first", ext),
	)
}

// baseMetadata is stamped on every parent document a converter produces.
func baseMetadata(in ConvertInput, category domain.FormatCategory) domain.Metadata {
	sourceType := in.SourceType
	if sourceType == "" {
		sourceType = "file"
	}
	source := in.SourceOrigin
	if source == "" {
		source = in.Filename
	}
	meta := domain.Metadata{
		domain.MetaSource:     source,
		domain.MetaSourceType: sourceType,
		domain.MetaFilename:   in.Filename,
		domain.MetaFormat:     string(category),
		"file_size":           len(in.Data),
	}
	if in.ContentHash != "" {
		meta[domain.MetaContentHash] = in.ContentHash
	}
	if in.ContentType != "" {
		meta["content_type"] = in.ContentType
	}
	if in.Options.ProcessingMode != "" {
		meta["processing_mode"] = in.Options.ProcessingMode
	}
	return meta
}
