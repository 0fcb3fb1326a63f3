package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
)

// SpreadsheetConverter materializes workbooks to a temporary file and lets
// the extractor resolve calculated values.
type SpreadsheetConverter struct {
	extractor ports.SpreadsheetExtractor
}

func NewSpreadsheetConverter(extractor ports.SpreadsheetExtractor) *SpreadsheetConverter {
	return &SpreadsheetConverter{extractor: extractor}
}

func (c *SpreadsheetConverter) Convert(ctx context.Context, in ConvertInput) ([]domain.ParentDocument, error) {
	if c.extractor == nil {
		return nil, domain.WrapError(domain.ErrConversionFailed, "convert spreadsheet "+in.Filename, errors.New("no spreadsheet extractor configured"))
	}

	var sheets []domain.ParentDocument
	err := withTempFile(in.Data, in.Filename, func(path string) error {
		var extractErr error
		sheets, extractErr = c.extractor.Extract(ctx, path, in.Filename)
		return extractErr
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrConversionFailed, "convert spreadsheet "+in.Filename, err)
	}

	parts := make([]string, 0, len(sheets))
	names := make([]string, 0, len(sheets))
	for _, sheet := range sheets {
		if text := strings.TrimSpace(sheet.Content); text != "" {
			parts = append(parts, text)
		}
		if name := sheet.Metadata.String("sheet_name"); name != "" {
			names = append(names, name)
		}
	}
	content := strings.Join(parts, "\n\n")
	if content == "" {
		return nil, domain.WrapError(domain.ErrConversionFailed, "convert spreadsheet "+in.Filename, errors.New("workbook contains no readable cells"))
	}

	meta := baseMetadata(in, domain.FormatExcel)
	meta["file_type"] = "spreadsheet"
	meta["sheet_count"] = len(sheets)
	meta["sheet_names"] = names
	addTextStats(content, meta)
	return []domain.ParentDocument{{Content: content, Metadata: meta}}, nil
}

// DocumentConverter hands PDF/DOCX/PPTX/HTML to the conversion engine.
type DocumentConverter struct {
	engine ports.DocumentConverter
}

func NewDocumentConverter(engine ports.DocumentConverter) *DocumentConverter {
	return &DocumentConverter{engine: engine}
}

func (c *DocumentConverter) Convert(ctx context.Context, in ConvertInput) ([]domain.ParentDocument, error) {
	if c.engine == nil {
		return nil, domain.WrapError(domain.ErrConversionFailed, "convert document "+in.Filename, errors.New("no document converter configured"))
	}

	var outcome domain.ConversionOutcome
	err := withTempFile(in.Data, in.Filename, func(path string) error {
		var convErr error
		outcome, convErr = c.engine.Convert(ctx, path, domain.ConversionOptions{
			Filename:       in.Filename,
			ContentType:    in.ContentType,
			ProcessingMode: in.Options.ProcessingMode,
		})
		return convErr
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrConversionFailed, "convert document "+in.Filename, err)
	}
	if outcome.Status != domain.ConversionSuccess {
		reason := fmt.Errorf("conversion status %s", outcome.Status)
		if outcome.Error != "" {
			reason = fmt.Errorf("conversion status %s: %s", outcome.Status, outcome.Error)
		}
		return nil, domain.WrapError(domain.ErrConversionFailed, "convert document "+in.Filename, reason)
	}

	content := strings.TrimSpace(outcome.Markdown)
	if content == "" {
		return nil, domain.WrapError(domain.ErrConversionFailed, "convert document "+in.Filename, errors.New("converter returned empty markdown"))
	}

	meta := baseMetadata(in, domain.FormatComplexDocument)
	for k, v := range outcome.Metadata {
		meta[k] = v
	}
	meta["page_count"] = outcome.PageCount
	meta["conversion_status"] = string(outcome.Status)
	addTextStats(content, meta)
	return []domain.ParentDocument{{Content: content, Metadata: meta}}, nil
}
