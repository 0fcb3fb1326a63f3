package usecase

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"
	"testing"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

func TestClassifyFormat(t *testing.T) {
	tests := []struct {
		filename    string
		contentType string
		want        domain.FormatCategory
	}{
		{"notes.txt", "", domain.FormatSimpleText},
		{"README.MD", "", domain.FormatSimpleText},
		{"data.csv", "application/octet-stream", domain.FormatSimpleText},
		{"book.xlsx", "", domain.FormatExcel},
		{"report.pdf", "text/plain", domain.FormatComplexDocument},
		{"slides.pptx", "", domain.FormatComplexDocument},
		{"photo.JPG", "", domain.FormatImage},
		{"upload", "image/png", domain.FormatImage},
		{"upload", "application/pdf; charset=binary", domain.FormatComplexDocument},
		{"setup.exe", "", domain.FormatUnsupported},
		{"blob", "", domain.FormatUnsupported},
	}
	for _, tc := range tests {
		got := ClassifyFormat(tc.filename, tc.contentType)
		if got != tc.want {
			t.Fatalf("ClassifyFormat(%q, %q) = %s, want %s", tc.filename, tc.contentType, got, tc.want)
		}
		if again := ClassifyFormat(tc.filename, tc.contentType); again != got {
			t.Fatalf("classification not deterministic for %q", tc.filename)
		}
	}
}

func TestDecodeTextFallbacks(t *testing.T) {
	text, enc := DecodeText([]byte("\xef\xbb\xbfplain"))
	if text != "plain" || enc != "utf-8" {
		t.Fatalf("expected BOM stripped utf-8, got %q %s", text, enc)
	}

	text, enc = DecodeText([]byte{'c', 'a', 'f', 0xe9})
	if text != "café" || enc != "latin-1" {
		t.Fatalf("expected latin-1 fallback, got %q %s", text, enc)
	}
}

func TestTextConverterCSVSummary(t *testing.T) {
	var b strings.Builder
	b.WriteString("name,age\n")
	for i := 0; i < 12; i++ {
		b.WriteString("bob,42\n")
	}

	docs, err := NewTextConverter().Convert(context.Background(), ConvertInput{Data: []byte(b.String()), Filename: "people.csv"})
	if err != nil {
		t.Fatalf("convert csv: %v", err)
	}
	content := docs[0].Content
	for _, want := range []string{"Columns (2): name, age", "Total rows: 12", "Sample data (first 10 rows):", "Row 1: name: bob, age: 42"} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %q in summary:\n%s", want, content)
		}
	}
	if strings.Contains(content, "Row 11:") {
		t.Fatalf("expected sample capped at 10 rows")
	}
	if docs[0].Metadata["row_count"] != 12 {
		t.Fatalf("unexpected row_count %v", docs[0].Metadata["row_count"])
	}
}

func TestTextConverterMarkdownStats(t *testing.T) {
	md := "# Title\n\nSee [docs](https://example.com).\n\n```go\nfmt.Println()\n```\n"
	docs, err := NewTextConverter().Convert(context.Background(), ConvertInput{Data: []byte(md), Filename: "guide.md"})
	if err != nil {
		t.Fatalf("convert markdown: %v", err)
	}
	meta := docs[0].Metadata
	if docs[0].Content != md {
		t.Fatalf("expected markdown kept verbatim")
	}
	if meta["heading_count"] != 1 || meta["link_count"] != 1 || meta["code_block_count"] != 1 {
		t.Fatalf("unexpected markdown stats %+v", meta)
	}
}

type extractorFake struct {
	sheets []domain.ParentDocument
	err    error
	path   string
}

func (f *extractorFake) Extract(_ context.Context, path, _ string) ([]domain.ParentDocument, error) {
	f.path = path
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return f.sheets, f.err
}

func TestSpreadsheetConverterRemovesTempFile(t *testing.T) {
	fake := &extractorFake{sheets: []domain.ParentDocument{
		{Content: "Sheet: Q1\nrevenue: 10", Metadata: domain.Metadata{"sheet_name": "Q1"}},
		{Content: "Sheet: Q2\nrevenue: 20", Metadata: domain.Metadata{"sheet_name": "Q2"}},
	}}

	docs, err := NewSpreadsheetConverter(fake).Convert(context.Background(), ConvertInput{Data: []byte("xlsx"), Filename: "book.xlsx"})
	if err != nil {
		t.Fatalf("convert spreadsheet: %v", err)
	}
	if !strings.Contains(docs[0].Content, "revenue: 20") || docs[0].Metadata["sheet_count"] != 2 {
		t.Fatalf("unexpected spreadsheet document %+v", docs[0])
	}
	if _, err := os.Stat(fake.path); !os.IsNotExist(err) {
		t.Fatalf("expected temp file %s removed, stat err=%v", fake.path, err)
	}

	fake.err = errors.New("corrupt workbook")
	if _, err := NewSpreadsheetConverter(fake).Convert(context.Background(), ConvertInput{Data: []byte("xlsx"), Filename: "book.xlsx"}); !domain.IsKind(err, domain.ErrConversionFailed) {
		t.Fatalf("expected conversion failure, got %v", err)
	}
	if _, err := os.Stat(fake.path); !os.IsNotExist(err) {
		t.Fatalf("expected temp file removed after failure")
	}
}

type engineFake struct {
	outcome domain.ConversionOutcome
	err     error
}

func (f engineFake) Convert(context.Context, string, domain.ConversionOptions) (domain.ConversionOutcome, error) {
	return f.outcome, f.err
}

func TestDocumentConverterStatus(t *testing.T) {
	ok := engineFake{outcome: domain.ConversionOutcome{
		Status:    domain.ConversionSuccess,
		Markdown:  "# Report\n\nbody",
		PageCount: 3,
		Metadata:  domain.Metadata{"author": "ops"},
	}}
	docs, err := NewDocumentConverter(ok).Convert(context.Background(), ConvertInput{Data: []byte("%PDF"), Filename: "report.pdf"})
	if err != nil {
		t.Fatalf("convert document: %v", err)
	}
	if docs[0].Metadata["page_count"] != 3 || docs[0].Metadata["author"] != "ops" {
		t.Fatalf("unexpected metadata %+v", docs[0].Metadata)
	}

	failed := engineFake{outcome: domain.ConversionOutcome{Status: domain.ConversionFailure, Error: "encrypted"}}
	_, err = NewDocumentConverter(failed).Convert(context.Background(), ConvertInput{Data: []byte("%PDF"), Filename: "report.pdf"})
	if !domain.IsKind(err, domain.ErrConversionFailed) || !strings.Contains(err.Error(), "failure") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestImageConverterUsesDetailedDescription(t *testing.T) {
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(0, 0, color.White)
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	blob := &blobFake{}
	vision := visionFake{analysis: domain.ImageAnalysis{
		Title:               "Whiteboard",
		ShortDescription:    "A whiteboard",
		DetailedDescription: "A whiteboard with a system diagram",
	}}

	docs, err := NewImageConverter(vision, blob, discardLogger()).Convert(context.Background(), ConvertInput{
		Data:     buf.Bytes(),
		Filename: "board.png",
		Options:  domain.ProcessingOptions{CollectionID: "kb"},
	})
	if err != nil {
		t.Fatalf("convert image: %v", err)
	}
	doc := docs[0]
	if doc.Content != "A whiteboard with a system diagram" {
		t.Fatalf("expected detailed description as content, got %q", doc.Content)
	}
	if doc.Metadata.String(domain.MetaTitle) != "Whiteboard" || doc.Metadata["width"] != 4 || doc.Metadata["height"] != 3 {
		t.Fatalf("unexpected image metadata %+v", doc.Metadata)
	}
	if doc.Metadata["storage_path"] != "kb/board.png" || len(blob.uploads) != 1 {
		t.Fatalf("expected upload recorded, got %+v", doc.Metadata)
	}

	blob.err = errors.New("bucket missing")
	docs, err = NewImageConverter(vision, blob, discardLogger()).Convert(context.Background(), ConvertInput{
		Data:     buf.Bytes(),
		Filename: "board.png",
		Options:  domain.ProcessingOptions{CollectionID: "kb"},
	})
	if err != nil {
		t.Fatalf("expected image to succeed without upload, got %v", err)
	}
	if _, ok := docs[0].Metadata["storage_path"]; ok {
		t.Fatalf("expected no storage_path when upload fails")
	}
}

func TestImageFormat(t *testing.T) {
	cases := map[[2]string]string{
		{"a.jpg", ""}:          "jpeg",
		{"a.bin", "image/png"}: "png",
		{"scan.tif", ""}:       "tiff",
		{"x", "image/svg+xml"}: "svg",
		{"noext", ""}:          "jpeg",
	}
	for in, want := range cases {
		if got := ImageFormat(in[0], in[1]); got != want {
			t.Fatalf("ImageFormat(%q, %q) = %q, want %q", in[0], in[1], got, want)
		}
	}
}

func TestUnsupportedConversionSuggestsAlternatives(t *testing.T) {
	_, err := Converters{}.Convert(context.Background(), domain.FormatUnsupported, ConvertInput{Filename: "setup.exe"})
	if !domain.IsKind(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format error, got %v", err)
	}
	if !strings.Contains(err.Error(), ".exe") || !strings.Contains(err.Error(), "convert") {
		t.Fatalf("expected suggestion in %q", err.Error())
	}
}

func TestWithTempFileRemovesOnPanic(t *testing.T) {
	var path string
	func() {
		defer func() { _ = recover() }()
		_ = withTempFile([]byte("data"), "x.pdf", func(p string) error {
			path = p
			panic("converter crashed")
		})
	}()
	if path == "" || !strings.HasSuffix(path, ".pdf") {
		t.Fatalf("unexpected temp path %q", path)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected temp file removed after panic")
	}
}

func TestMetadataEnricher(t *testing.T) {
	if got := FallbackTitle("my_report-final.v2.pdf"); got != "My Report Final V2" {
		t.Fatalf("unexpected fallback title %q", got)
	}
	if got := FallbackTitle(""); got != "Untitled Document" {
		t.Fatalf("unexpected empty title %q", got)
	}

	failing := NewMetadataEnricher(generatorFake{err: errors.New("model offline")}, discardLogger())
	got := failing.Enrich(context.Background(), "weekly_sync.txt", "content", true, "fast")
	if got.Title != "Weekly Sync" || got.Description != "Content extracted from weekly_sync.txt" {
		t.Fatalf("expected deterministic fallback, got %q %q", got.Title, got.Description)
	}
	if got.Source != MetadataSourceFilename {
		t.Fatalf("fallback must report filename source, got %q", got.Source)
	}

	skipped := NewMetadataEnricher(generatorFake{out: domain.GeneratedMetadata{Name: "AI"}}, discardLogger())
	if got := skipped.Enrich(context.Background(), "a.txt", "   ", true, ""); got.Title != "A" || got.Source != MetadataSourceFilename {
		t.Fatalf("expected fallback for empty content, got %+v", got)
	}

	working := NewMetadataEnricher(generatorFake{out: domain.GeneratedMetadata{Name: "Sync Notes"}}, discardLogger())
	if got := working.Enrich(context.Background(), "a.txt", "content", true, ""); got.Title != "Sync Notes" || got.Source != MetadataSourceAI {
		t.Fatalf("expected generated title, got %+v", got)
	}
}
