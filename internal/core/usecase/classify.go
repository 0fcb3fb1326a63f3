package usecase

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

var extensionCategories = map[string]domain.FormatCategory{
	".txt": domain.FormatSimpleText,
	".md":  domain.FormatSimpleText,
	".csv": domain.FormatSimpleText,
	".tsv": domain.FormatSimpleText,

	".xlsx": domain.FormatExcel,
	".xls":  domain.FormatExcel,

	".pdf":  domain.FormatComplexDocument,
	".docx": domain.FormatComplexDocument,
	".doc":  domain.FormatComplexDocument,
	".pptx": domain.FormatComplexDocument,
	".ppt":  domain.FormatComplexDocument,
	".html": domain.FormatComplexDocument,
	".htm":  domain.FormatComplexDocument,

	".jpg":  domain.FormatImage,
	".jpeg": domain.FormatImage,
	".png":  domain.FormatImage,
	".gif":  domain.FormatImage,
	".webp": domain.FormatImage,
	".bmp":  domain.FormatImage,
	".tiff": domain.FormatImage,
	".tif":  domain.FormatImage,
}

var mimeCategories = map[string]domain.FormatCategory{
	"text/plain":                domain.FormatSimpleText,
	"text/markdown":             domain.FormatSimpleText,
	"text/x-markdown":           domain.FormatSimpleText,
	"text/csv":                  domain.FormatSimpleText,
	"text/tab-separated-values": domain.FormatSimpleText,

	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": domain.FormatExcel,
	"application/vnd.ms-excel": domain.FormatExcel,

	"application/pdf": domain.FormatComplexDocument,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   domain.FormatComplexDocument,
	"application/msword": domain.FormatComplexDocument,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": domain.FormatComplexDocument,
	"application/vnd.ms-powerpoint": domain.FormatComplexDocument,
	"text/html":                     domain.FormatComplexDocument,
	"application/xhtml+xml":         domain.FormatComplexDocument,
}

// ClassifyFormat maps a filename and optional declared content type to a
// format category. The extension always wins over the declared type.
func ClassifyFormat(filename, contentType string) domain.FormatCategory {
	ext := strings.ToLower(filepath.Ext(filename))
	if category, ok := extensionCategories[ext]; ok {
		return category
	}

	if category, ok := categoryForMIME(contentType); ok {
		return category
	}

	if ext != "" {
		if category, ok := categoryForMIME(mime.TypeByExtension(ext)); ok {
			return category
		}
	}
	return domain.FormatUnsupported
}

func categoryForMIME(contentType string) (domain.FormatCategory, bool) {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if mediaType == "" {
		return "", false
	}
	if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = parsed
	}
	if category, ok := mimeCategories[mediaType]; ok {
		return category, true
	}
	if strings.HasPrefix(mediaType, "image/") {
		return domain.FormatImage, true
	}
	return "", false
}
