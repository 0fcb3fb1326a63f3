package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestFileDescriptorDecodesTextContent(t *testing.T) {
	var req IngestRequest
	body := `{"files":[{"filename":"notes.txt","content":"hello\nworld"}],"options":{"chunking_strategy":"none"}}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(req.Files) != 1 {
		t.Fatalf("expected one file, got %d", len(req.Files))
	}
	raw, err := req.Files[0].Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if string(raw.Content) != "hello\nworld" || raw.Size != 11 {
		t.Fatalf("unexpected resolved file %q size=%d", raw.Content, raw.Size)
	}
}

func TestFileDescriptorEmptyTextIsStillAPayload(t *testing.T) {
	var f FileDescriptor
	if err := json.Unmarshal([]byte(`{"filename":"empty.txt","content":""}`), &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, err := f.Resolve(); err != nil {
		t.Fatalf("explicit empty content must resolve, got %v", err)
	}
}

func TestResolveRejectsMissingPayload(t *testing.T) {
	var f FileDescriptor
	if err := json.Unmarshal([]byte(`{"filename":"notes.txt"}`), &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	_, err := f.Resolve()
	if !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if !strings.Contains(err.Error(), "notes.txt") {
		t.Fatalf("expected filename in error, got %v", err)
	}
}

func TestFileDescriptorMarshalsBinaryAsBase64(t *testing.T) {
	in := FileDescriptor{Filename: "logo.png", Content: []byte{0x89, 'P', 'N', 'G', 0xff}}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), `"content":`) {
		t.Fatalf("binary payload must not be emitted as text: %s", data)
	}

	var out FileDescriptor
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	raw, err := out.Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if string(raw.Content) != string(in.Content) {
		t.Fatalf("payload changed: %v", raw.Content)
	}
}

func TestProcessingOptionsValidate(t *testing.T) {
	for _, policy := range []DuplicatePolicy{"", DuplicatePolicySkip, DuplicatePolicyOverwrite} {
		if err := (ProcessingOptions{DuplicatePolicy: policy}).Validate(); err != nil {
			t.Fatalf("policy %q: unexpected error %v", policy, err)
		}
	}
	err := ProcessingOptions{DuplicatePolicy: "replace"}.Validate()
	if !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for replace, got %v", err)
	}
}
