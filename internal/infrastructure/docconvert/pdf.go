package docconvert

import (
	"fmt"
	"strings"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

func convertPDF(path string) (converted, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return converted{}, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	numPages := reader.NumPage()
	var (
		b     strings.Builder
		empty int
	)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			empty++
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil || strings.TrimSpace(text) == "" {
			empty++
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## Page %d\n\n%s", i, strings.TrimSpace(text))
	}
	if b.Len() == 0 {
		return converted{}, fmt.Errorf("pdf has no extractable text in %d pages", numPages)
	}

	return converted{
		markdown: b.String(),
		pages:    numPages,
		engine:   "pdf",
		meta:     domain.Metadata{"empty_pages": empty},
	}, nil
}
