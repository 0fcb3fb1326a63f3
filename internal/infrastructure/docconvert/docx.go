package docconvert

import (
	"fmt"
	"os"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

func convertDOCX(path string) (converted, error) {
	f, err := os.Open(path)
	if err != nil {
		return converted{}, fmt.Errorf("open docx: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return converted{}, fmt.Errorf("stat docx: %w", err)
	}
	doc, err := docx.Parse(f, info.Size())
	if err != nil {
		return converted{}, fmt.Errorf("parse docx: %w", err)
	}

	var (
		blocks     []string
		headings   int
		paragraphs int
		tables     int
	)
	for _, item := range doc.Document.Body.Items {
		switch v := item.(type) {
		case *docx.Paragraph:
			text := paragraphText(v)
			if text == "" {
				continue
			}
			if level := headingLevel(v); level > 0 {
				headings++
				blocks = append(blocks, strings.Repeat("#", level)+" "+text)
				continue
			}
			paragraphs++
			blocks = append(blocks, text)
		case *docx.Table:
			if table := tableMarkdown(v); table != "" {
				tables++
				blocks = append(blocks, table)
			}
		}
	}

	return converted{
		markdown: strings.Join(blocks, "\n\n"),
		pages:    1,
		engine:   "docx",
		meta: domain.Metadata{
			"heading_count":   headings,
			"paragraph_count": paragraphs,
			"table_count":     tables,
		},
	}, nil
}

func headingLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	if !strings.HasPrefix(style, "heading") {
		if style == "title" {
			return 1
		}
		return 0
	}
	level := strings.TrimPrefix(style, "heading")
	if len(level) == 1 && level[0] >= '1' && level[0] <= '6' {
		return int(level[0] - '0')
	}
	return 0
}

func paragraphText(para *docx.Paragraph) string {
	var b strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				b.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func tableMarkdown(table *docx.Table) string {
	var rows [][]string
	for _, row := range table.TableRows {
		var cells []string
		for _, cell := range row.TableCells {
			var parts []string
			for _, para := range cell.Paragraphs {
				if text := paragraphText(para); text != "" {
					parts = append(parts, text)
				}
			}
			cells = append(cells, strings.Join(parts, " "))
		}
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	}
	if len(rows) == 0 {
		return ""
	}

	var b strings.Builder
	for i, cells := range rows {
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		if i == 0 {
			b.WriteString("|" + strings.Repeat(" --- |", len(cells)) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
