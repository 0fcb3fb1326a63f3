package usecase

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/encoding/charmap"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

const csvSampleRows = 10

// TextConverter handles txt, md, csv and tsv files.
type TextConverter struct{}

func NewTextConverter() *TextConverter {
	return &TextConverter{}
}

func (c *TextConverter) Convert(_ context.Context, in ConvertInput) ([]domain.ParentDocument, error) {
	content, encoding := DecodeText(in.Data)
	meta := baseMetadata(in, domain.FormatSimpleText)
	meta["encoding"] = encoding

	switch strings.ToLower(filepath.Ext(in.Filename)) {
	case ".csv":
		summary, err := summarizeCSV(content, in.Filename, meta)
		if err != nil {
			return nil, domain.WrapError(domain.ErrConversionFailed, "convert csv "+in.Filename, err)
		}
		content = summary
		meta["file_type"] = "csv"
	case ".md":
		meta["file_type"] = "markdown"
		addMarkdownStats(content, meta)
	default:
		meta["file_type"] = "text"
	}
	addTextStats(content, meta)

	return []domain.ParentDocument{{Content: content, Metadata: meta}}, nil
}

// DecodeText decodes bytes as UTF-8, then Latin-1, then UTF-8 with invalid
// sequences dropped. It never fails.
func DecodeText(data []byte) (string, string) {
	if utf8.Valid(data) {
		return string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))), "utf-8"
	}
	if decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data); err == nil {
		return string(decoded), "latin-1"
	}
	return strings.ToValidUTF8(string(data), ""), "utf-8-ignore"
}

func summarizeCSV(content, filename string, meta domain.Metadata) (string, error) {
	reader := csv.NewReader(strings.NewReader(content))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		meta["row_count"] = 0
		meta["column_count"] = 0
		return fmt.Sprintf("CSV file %s is empty.", filename), nil
	}

	headers := records[0]
	rows := records[1:]
	meta["columns"] = headers
	meta["row_count"] = len(rows)
	meta["column_count"] = len(headers)

	var b strings.Builder
	fmt.Fprintf(&b, "CSV file: %s\n", filename)
	fmt.Fprintf(&b, "Columns (%d): %s\n", len(headers), strings.Join(headers, ", "))
	fmt.Fprintf(&b, "Total rows: %d\n", len(rows))

	sample := rows
	if len(sample) > csvSampleRows {
		sample = sample[:csvSampleRows]
	}
	if len(sample) > 0 {
		fmt.Fprintf(&b, "\nSample data (first %d rows):\n", len(sample))
	}
	for i, row := range sample {
		cells := make([]string, 0, len(row))
		for j, cell := range row {
			if j < len(headers) && headers[j] != "" {
				cells = append(cells, headers[j]+": "+cell)
			} else {
				cells = append(cells, cell)
			}
		}
		fmt.Fprintf(&b, "Row %d: %s\n", i+1, strings.Join(cells, ", "))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func addTextStats(content string, meta domain.Metadata) {
	meta[domain.MetaContentLength] = utf8.RuneCountInString(content)
	meta["char_count"] = utf8.RuneCountInString(content)
	meta["word_count"] = len(strings.Fields(content))
	meta["line_count"] = countLines(content)
}

func addMarkdownStats(content string, meta domain.Metadata) {
	src := []byte(content)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	headings, links, codeBlocks := 0, 0, 0
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindHeading:
			headings++
		case ast.KindLink, ast.KindAutoLink:
			links++
		case ast.KindFencedCodeBlock, ast.KindCodeBlock:
			codeBlocks++
		}
		return ast.WalkContinue, nil
	})
	meta["heading_count"] = headings
	meta["link_count"] = links
	meta["code_block_count"] = codeBlocks
}

// countLines counts lines the way a reader would: a trailing newline does not
// open a new line.
func countLines(content string) int {
	if content == "" {
		return 0
	}
	n := strings.Count(content, "\n")
	if !strings.HasSuffix(content, "\n") {
		n++
	}
	return n
}
