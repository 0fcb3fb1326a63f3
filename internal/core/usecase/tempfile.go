package usecase

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// withTempFile writes data to a temporary file that exists only for the
// duration of fn. The file is removed on every exit path, panics included.
func withTempFile(data []byte, filename string, fn func(path string) error) error {
	ext := strings.ToLower(filepath.Ext(filename))
	tmp, err := os.CreateTemp("", "ingest-*"+ext)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return fn(path)
}
