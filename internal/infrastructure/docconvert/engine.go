// Package docconvert turns PDF, DOCX, PPTX and HTML files into markdown.
package docconvert

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"code.sajari.com/docconv"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

// Engine converts a file on disk. Parsing failures are reported through
// the outcome status, never as panics.
type Engine struct {
	logger *slog.Logger
}

func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

func (e *Engine) Convert(ctx context.Context, path string, opts domain.ConversionOptions) (outcome domain.ConversionOutcome, err error) {
	if err := ctx.Err(); err != nil {
		return domain.ConversionOutcome{}, err
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("document_conversion_panic",
				"filename", opts.Filename,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			outcome = failure(fmt.Sprintf("converter panic: %v", r))
			err = nil
		}
	}()

	ext := strings.ToLower(filepath.Ext(opts.Filename))
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(path))
	}
	if ext == "" {
		ext = extensionForContentType(opts.ContentType)
	}

	var result converted
	switch ext {
	case ".pdf":
		result, err = convertPDF(path)
		if err != nil {
			e.logger.Warn("pdf_native_extraction_failed", "filename", opts.Filename, "error", err)
			result, err = convertWithDocconv(path, ext)
		}
	case ".docx":
		result, err = convertDOCX(path)
	case ".html", ".htm":
		result, err = convertHTMLFile(path)
	default:
		result, err = convertWithDocconv(path, ext)
	}
	if err != nil {
		return failure(err.Error()), nil
	}
	if strings.TrimSpace(result.markdown) == "" {
		return failure("no text could be extracted"), nil
	}

	meta := result.meta
	if meta == nil {
		meta = domain.Metadata{}
	}
	meta["converter"] = result.engine
	return domain.ConversionOutcome{
		Status:    domain.ConversionSuccess,
		Markdown:  strings.TrimSpace(result.markdown),
		PageCount: result.pages,
		Metadata:  meta,
	}, nil
}

type converted struct {
	markdown string
	pages    int
	engine   string
	meta     domain.Metadata
}

func failure(reason string) domain.ConversionOutcome {
	return domain.ConversionOutcome{Status: domain.ConversionFailure, Error: reason}
}

// extensionForContentType is used when neither the filename nor the path
// carries an extension. Parameters such as charset are ignored.
func extensionForContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	switch strings.ToLower(mediaType) {
	case "application/pdf":
		return ".pdf"
	case "text/html", "application/xhtml+xml":
		return ".html"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return ".docx"
	case "application/vnd.openxmlformats-officedocument.presentationml.presentation":
		return ".pptx"
	case "application/msword":
		return ".doc"
	case "application/vnd.ms-powerpoint":
		return ".ppt"
	case "application/vnd.oasis.opendocument.text":
		return ".odt"
	case "application/rtf", "text/rtf":
		return ".rtf"
	default:
		return ""
	}
}

// convertWithDocconv covers pptx, doc, ppt, odt and rtf, and is the PDF
// fallback when the native reader cannot parse a file. ext picks the
// docconv MIME type, so extension-less paths still route correctly.
func convertWithDocconv(path, ext string) (converted, error) {
	f, err := os.Open(path)
	if err != nil {
		return converted{}, fmt.Errorf("open source file: %w", err)
	}
	defer f.Close()

	mimeType := docconv.MimeTypeByExtension("file" + ext)
	res, err := docconv.Convert(f, mimeType, true)
	if err != nil {
		return converted{}, fmt.Errorf("docconv %s: %w", mimeType, err)
	}
	if res.Error != "" {
		return converted{}, fmt.Errorf("docconv %s: %s", mimeType, res.Error)
	}

	meta := domain.Metadata{}
	for k, v := range res.Meta {
		meta["doc_"+strings.ToLower(k)] = v
	}
	pages := strings.Count(res.Body, "\f") + 1
	return converted{
		markdown: strings.ReplaceAll(res.Body, "\f", "\n\n"),
		pages:    pages,
		engine:   "docconv",
		meta:     meta,
	}, nil
}
