package domain

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// FileDescriptor is one input file. Exactly one of Content, Base64 or Reader
// carries the payload; Resolve collapses it to raw bytes.
//
// Over JSON, "content" carries text and "content_base64" carries binary.
type FileDescriptor struct {
	Filename    string
	ContentType string
	Size        int64
	Content     []byte
	Base64      string
	Reader      io.Reader
}

type fileDescriptorJSON struct {
	Filename    string  `json:"filename"`
	ContentType string  `json:"content_type,omitempty"`
	Size        int64   `json:"size,omitempty"`
	Content     *string `json:"content,omitempty"`
	Base64      string  `json:"content_base64,omitempty"`
}

func (f *FileDescriptor) UnmarshalJSON(data []byte) error {
	var wire fileDescriptorJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*f = FileDescriptor{
		Filename:    wire.Filename,
		ContentType: wire.ContentType,
		Size:        wire.Size,
		Base64:      wire.Base64,
	}
	if wire.Content != nil {
		f.Content = append([]byte{}, *wire.Content...)
	}
	return nil
}

// MarshalJSON emits text payloads as "content" and anything else as base64.
// A Reader payload is not serialized.
func (f FileDescriptor) MarshalJSON() ([]byte, error) {
	wire := fileDescriptorJSON{
		Filename:    f.Filename,
		ContentType: f.ContentType,
		Size:        f.Size,
		Base64:      f.Base64,
	}
	if f.Content != nil && wire.Base64 == "" {
		if utf8.Valid(f.Content) {
			text := string(f.Content)
			wire.Content = &text
		} else {
			wire.Base64 = base64.StdEncoding.EncodeToString(f.Content)
		}
	}
	return json.Marshal(wire)
}

// Resolve returns a copy of the descriptor holding raw bytes only.
func (f FileDescriptor) Resolve() (FileDescriptor, error) {
	out := FileDescriptor{
		Filename:    f.Filename,
		ContentType: f.ContentType,
		Size:        f.Size,
	}

	switch {
	case f.Content != nil:
		out.Content = f.Content
	case f.Base64 != "":
		raw, err := decodeBase64(f.Base64)
		if err != nil {
			return FileDescriptor{}, WrapError(ErrInvalidInput, "decode base64 content", err)
		}
		out.Content = raw
	case f.Reader != nil:
		raw, err := io.ReadAll(f.Reader)
		if err != nil {
			return FileDescriptor{}, fmt.Errorf("read file stream: %w", err)
		}
		out.Content = raw
	default:
		return FileDescriptor{}, WrapError(ErrInvalidInput, "resolve file", fmt.Errorf("%q has no content, content_base64 or stream", f.Filename))
	}

	if out.Size <= 0 {
		out.Size = int64(len(out.Content))
	}
	return out, nil
}

// EstimatedSize is the declared size, falling back to the payload length.
func (f FileDescriptor) EstimatedSize() int64 {
	if f.Size > 0 {
		return f.Size
	}
	switch {
	case f.Content != nil:
		return int64(len(f.Content))
	case f.Base64 != "":
		return int64(base64.StdEncoding.DecodedLen(len(f.Base64)))
	default:
		return 0
	}
}

func decodeBase64(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	// data URLs arrive from browser uploads
	if strings.HasPrefix(raw, "data:") {
		if idx := strings.Index(raw, ","); idx >= 0 {
			raw = raw[idx+1:]
		}
	}
	out, err := base64.StdEncoding.DecodeString(raw)
	if err == nil {
		return out, nil
	}
	if alt, altErr := base64.RawStdEncoding.DecodeString(raw); altErr == nil {
		return alt, nil
	}
	return nil, errors.Join(err, errors.New("payload is not valid base64"))
}
