package domain

type DuplicateAction string

const (
	DuplicateProcess   DuplicateAction = "process"
	DuplicateSkip      DuplicateAction = "skip"
	DuplicateOverwrite DuplicateAction = "overwrite"
)

// DuplicateDecision is computed once per file, before conversion.
type DuplicateDecision struct {
	Filename           string          `json:"filename"`
	Action             DuplicateAction `json:"action"`
	ContentHash        string          `json:"content_hash"`
	ExistingDocumentID string          `json:"existing_document_id,omitempty"`
}

type DuplicateSummary struct {
	Checked     int `json:"checked"`
	Skipped     int `json:"skipped"`
	ToProcess   int `json:"to_process"`
	Overwritten int `json:"overwritten"`
}

type SkippedFile struct {
	Filename           string `json:"filename"`
	ExistingDocumentID string `json:"existing_document_id"`
	ContentHash        string `json:"content_hash"`
	Reason             string `json:"reason"`
}

type OverwrittenFile struct {
	Filename           string `json:"filename"`
	PreviousDocumentID string `json:"previous_document_id"`
	ContentHash        string `json:"content_hash"`
}

// DocumentSummary describes one parent document produced by the request.
type DocumentSummary struct {
	ID            string         `json:"id,omitempty"`
	Title         string         `json:"title"`
	Filename      string         `json:"filename,omitempty"`
	Source        string         `json:"source,omitempty"`
	SourceType    string         `json:"source_type,omitempty"`
	Format        FormatCategory `json:"format_category,omitempty"`
	ContentLength int            `json:"content_length"`
	ChunkCount    int            `json:"chunk_count"`
	Persisted     bool           `json:"persisted"`
}

// FileError attributes a failure to its 1-based position in the batch.
type FileError struct {
	Index    int    `json:"index"`
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

type FailedItem struct {
	Index int           `json:"index"`
	Type  BatchItemType `json:"type"`
	Name  string        `json:"name,omitempty"`
	Error string        `json:"error"`
}

// ProcessingResult is the terminal output of every ingestion request.
type ProcessingResult struct {
	Success          bool              `json:"success"`
	ErrorMessage     string            `json:"error_message,omitempty"`
	Chunks           []Chunk           `json:"chunks"`
	Metadata         map[string]any    `json:"metadata"`
	Documents        []DocumentSummary `json:"document_records"`
	DuplicateSummary *DuplicateSummary `json:"duplicate_summary,omitempty"`
	FilesSkipped     []SkippedFile     `json:"files_skipped,omitempty"`
	FilesOverwritten []OverwrittenFile `json:"files_overwritten,omitempty"`
	Errors           []FileError       `json:"errors,omitempty"`
	FailedItems      []FailedItem      `json:"failed_items,omitempty"`
}

func NewProcessingResult() *ProcessingResult {
	return &ProcessingResult{
		Chunks:    []Chunk{},
		Metadata:  map[string]any{},
		Documents: []DocumentSummary{},
	}
}

// FailedResult builds the result returned for request-level failures.
func FailedResult(message string) *ProcessingResult {
	out := NewProcessingResult()
	out.Success = false
	out.ErrorMessage = message
	return out
}

// Finalize applies the success policy: at least one document produced or at
// least one file skipped as an unchanged duplicate.
func (r *ProcessingResult) Finalize() {
	r.Success = len(r.Documents) > 0 || len(r.FilesSkipped) > 0
	if !r.Success && r.ErrorMessage == "" {
		switch {
		case len(r.Errors) > 0:
			r.ErrorMessage = r.Errors[0].Error
		case len(r.FailedItems) > 0:
			r.ErrorMessage = r.FailedItems[0].Error
		default:
			r.ErrorMessage = "no documents were produced"
		}
	}
}

// Merge folds another result into r; used by mixed batches.
func (r *ProcessingResult) Merge(other *ProcessingResult) {
	if other == nil {
		return
	}
	r.Chunks = append(r.Chunks, other.Chunks...)
	r.Documents = append(r.Documents, other.Documents...)
	r.FilesSkipped = append(r.FilesSkipped, other.FilesSkipped...)
	r.FilesOverwritten = append(r.FilesOverwritten, other.FilesOverwritten...)
	r.Errors = append(r.Errors, other.Errors...)
	if other.DuplicateSummary != nil {
		if r.DuplicateSummary == nil {
			r.DuplicateSummary = &DuplicateSummary{}
		}
		r.DuplicateSummary.Checked += other.DuplicateSummary.Checked
		r.DuplicateSummary.Skipped += other.DuplicateSummary.Skipped
		r.DuplicateSummary.ToProcess += other.DuplicateSummary.ToProcess
		r.DuplicateSummary.Overwritten += other.DuplicateSummary.Overwritten
	}
}
