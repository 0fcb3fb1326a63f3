package usecase

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
)

// ImageConverter describes images through the vision collaborator. The
// detailed description becomes the searchable content.
type ImageConverter struct {
	vision  ports.VisionAnalyzer
	storage ports.BlobStorage
	logger  *slog.Logger
}

func NewImageConverter(vision ports.VisionAnalyzer, storage ports.BlobStorage, logger *slog.Logger) *ImageConverter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageConverter{
		vision:  vision,
		storage: storage,
		logger:  logger,
	}
}

func (c *ImageConverter) Convert(ctx context.Context, in ConvertInput) ([]domain.ParentDocument, error) {
	if len(in.Data) == 0 {
		return nil, domain.WrapError(domain.ErrConversionFailed, "convert image "+in.Filename, errors.New("empty image payload"))
	}
	if c.vision == nil {
		return nil, domain.WrapError(domain.ErrConversionFailed, "convert image "+in.Filename, errors.New("no vision analyzer configured"))
	}

	format := ImageFormat(in.Filename, in.ContentType)
	fallbackTitle := FallbackTitle(in.Filename)

	analysis, err := c.vision.Analyze(ctx, in.Data, format, fallbackTitle)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConversionFailed, "analyze image "+in.Filename, err)
	}
	content := strings.TrimSpace(analysis.DetailedDescription)
	if content == "" {
		content = strings.TrimSpace(analysis.ShortDescription)
	}
	if content == "" {
		return nil, domain.WrapError(domain.ErrConversionFailed, "analyze image "+in.Filename, errors.New("vision analyzer returned no description"))
	}

	meta := baseMetadata(in, domain.FormatImage)
	meta["file_type"] = "image"
	meta["image_format"] = format
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(in.Data)); err == nil {
		meta["width"] = cfg.Width
		meta["height"] = cfg.Height
	}
	title := strings.TrimSpace(analysis.Title)
	if title == "" {
		title = fallbackTitle
	}
	meta[domain.MetaTitle] = title
	meta[domain.MetaDescription] = strings.TrimSpace(analysis.ShortDescription)
	meta["detailed_description_length"] = len(content)

	if c.storage != nil && in.Options.CollectionID != "" {
		contentType := in.ContentType
		if contentType == "" {
			contentType = "image/" + format
		}
		location, err := c.storage.Upload(ctx, in.Data, in.Filename, contentType, in.Options.CollectionID)
		if err != nil {
			c.logger.Warn("image_upload_skipped", "filename", in.Filename, "error", err)
		} else {
			meta["storage_path"] = location.StoragePath
			meta["bucket"] = location.Bucket
			meta["file_path"] = location.FilePath
		}
	}

	addTextStats(content, meta)
	return []domain.ParentDocument{{Content: content, Metadata: meta}}, nil
}

// ImageFormat infers the image format from the content type, then the extension.
func ImageFormat(filename, contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if strings.HasPrefix(ct, "image/") {
		format := strings.TrimPrefix(ct, "image/")
		if idx := strings.IndexAny(format, ";+"); idx >= 0 {
			format = format[:idx]
		}
		return normalizeImageFormat(format)
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return "jpeg"
	}
	return normalizeImageFormat(ext)
}

func normalizeImageFormat(format string) string {
	switch format {
	case "jpg", "pjpeg":
		return "jpeg"
	case "tif":
		return "tiff"
	case "x-ms-bmp":
		return "bmp"
	default:
		return format
	}
}
