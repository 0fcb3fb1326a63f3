package spreadsheet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

const defaultMaxRows = 5000

// Extractor reads xlsx workbooks and resolves formulas to calculated values.
// Each non-empty sheet becomes one document.
type Extractor struct {
	maxRows int
	logger  *slog.Logger
}

func NewExtractor(maxRows int, logger *slog.Logger) *Extractor {
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{maxRows: maxRows, logger: logger}
}

func (e *Extractor) Extract(ctx context.Context, path, filename string) ([]domain.ParentDocument, error) {
	if strings.EqualFold(filepath.Ext(filename), ".xls") {
		return nil, errors.New("legacy .xls workbooks are not supported; save the file as .xlsx")
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			e.logger.Warn("workbook_close_failed", "filename", filename, "error", cerr)
		}
	}()

	var docs []domain.ParentDocument
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := e.sheetRows(f, sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		content, truncated := renderSheet(sheet, rows, e.maxRows)
		docs = append(docs, domain.ParentDocument{
			Content: content,
			Metadata: domain.Metadata{
				"sheet_name":   sheet,
				"row_count":    len(rows) - 1,
				"column_count": len(rows[0]),
				"truncated":    truncated,
			},
		})
	}
	return docs, nil
}

// sheetRows returns trimmed cell values with formulas evaluated.
func (e *Extractor) sheetRows(f *excelize.File, sheet string) ([][]string, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}

	out := make([][]string, 0, len(rows))
	for r, row := range rows {
		values := make([]string, len(row))
		nonEmpty := false
		for c, raw := range row {
			value := strings.TrimSpace(raw)
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err == nil {
				if formula, ferr := f.GetCellFormula(sheet, cell); ferr == nil && formula != "" {
					if calculated, cerr := f.CalcCellValue(sheet, cell); cerr == nil {
						value = strings.TrimSpace(calculated)
					} else {
						e.logger.Debug("formula_calc_failed", "sheet", sheet, "cell", cell, "error", cerr)
					}
				}
			}
			values[c] = value
			if value != "" {
				nonEmpty = true
			}
		}
		if nonEmpty {
			out = append(out, values)
		}
	}
	return out, nil
}

func renderSheet(sheet string, rows [][]string, maxRows int) (string, bool) {
	headers := rows[0]
	data := rows[1:]
	truncated := false
	if len(data) > maxRows {
		data = data[:maxRows]
		truncated = true
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Sheet: %s\n", sheet)
	fmt.Fprintf(&b, "Columns: %s\n", strings.Join(headers, ", "))
	for i, row := range data {
		cells := make([]string, 0, len(row))
		for j, value := range row {
			if value == "" {
				continue
			}
			if j < len(headers) && headers[j] != "" {
				cells = append(cells, headers[j]+": "+value)
			} else {
				cells = append(cells, value)
			}
		}
		fmt.Fprintf(&b, "Row %d: %s\n", i+1, strings.Join(cells, ", "))
	}
	if truncated {
		fmt.Fprintf(&b, "(%d more rows omitted)\n", len(rows)-1-maxRows)
	}
	return strings.TrimRight(b.String(), "\n"), truncated
}
