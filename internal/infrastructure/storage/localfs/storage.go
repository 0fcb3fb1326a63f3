package localfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

const bucketName = "local"

type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

// Upload writes the blob under <collection>/<uuid>_<filename>.
func (s *Storage) Upload(ctx context.Context, data []byte, filename, _ string, collectionID string) (domain.BlobLocation, error) {
	key := ObjectKey(collectionID, filename)
	if err := s.Save(ctx, key, bytes.NewReader(data)); err != nil {
		return domain.BlobLocation{}, err
	}
	return domain.BlobLocation{
		StoragePath: key,
		Bucket:      bucketName,
		FilePath:    filepath.Join(s.basePath, filepath.FromSlash(key)),
	}, nil
}

func (s *Storage) Save(_ context.Context, key string, data io.Reader) error {
	path := filepath.Join(s.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path := filepath.Join(s.basePath, filepath.FromSlash(key))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// ObjectKey builds the collection-scoped key shared by all blob backends.
func ObjectKey(collectionID, filename string) string {
	collection := SanitizeName(collectionID)
	if collection == "" {
		collection = "default"
	}
	return collection + "/" + uuid.NewString() + "_" + SanitizeName(filename)
}

func SanitizeName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	base = strings.ReplaceAll(base, " ", "_")
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
}
