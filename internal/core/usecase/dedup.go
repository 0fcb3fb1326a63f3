package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
)

// ContentHash is the stable fingerprint of raw file bytes.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DuplicateReport is the outcome of one detection pass over a batch.
type DuplicateReport struct {
	Decisions   []domain.DuplicateDecision
	Summary     domain.DuplicateSummary
	Skipped     []domain.SkippedFile
	Overwritten []domain.OverwrittenFile
	// Detected is false when detection was skipped or degraded.
	Detected bool
}

// Pending reports whether the decision at index i still needs conversion.
func (r DuplicateReport) Pending(i int) bool {
	if i < 0 || i >= len(r.Decisions) {
		return true
	}
	return r.Decisions[i].Action != domain.DuplicateSkip
}

// Pruned reports whether detection removed or replaced at least one file.
func (r DuplicateReport) Pruned() bool {
	return r.Summary.Skipped > 0 || r.Summary.Overwritten > 0
}

type DuplicateDetector struct {
	store    ports.DocumentStore
	observer ports.IngestObserver
	logger   *slog.Logger
}

func NewDuplicateDetector(store ports.DocumentStore, observer ports.IngestObserver, logger *slog.Logger) *DuplicateDetector {
	if observer == nil {
		observer = ports.NopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DuplicateDetector{
		store:    store,
		observer: observer,
		logger:   logger,
	}
}

// Detect fingerprints every file and decides process, skip or overwrite.
// Files must already be resolved to raw bytes. A store failure degrades to
// processing every file.
func (d *DuplicateDetector) Detect(ctx context.Context, files []domain.FileDescriptor, opts domain.ProcessingOptions) DuplicateReport {
	report := processAll(files)
	if d.store == nil || opts.CollectionID == "" {
		return report
	}

	decisions := make([]domain.DuplicateDecision, len(files))
	for i, file := range files {
		decision, err := d.decide(ctx, file, report.Decisions[i].ContentHash, opts)
		if err != nil {
			d.logger.Warn("duplicate_detection_skipped",
				"collection_id", opts.CollectionID,
				"filename", file.Filename,
				"error", err,
			)
			return processAll(files)
		}
		decisions[i] = decision
	}

	out := DuplicateReport{Decisions: decisions, Detected: true}
	out.Summary.Checked = len(files)
	for _, decision := range decisions {
		d.observer.DuplicateDecided(decision.Action)
		switch decision.Action {
		case domain.DuplicateSkip:
			out.Summary.Skipped++
			out.Skipped = append(out.Skipped, domain.SkippedFile{
				Filename:           decision.Filename,
				ExistingDocumentID: decision.ExistingDocumentID,
				ContentHash:        decision.ContentHash,
				Reason:             "unchanged content already stored",
			})
		case domain.DuplicateOverwrite:
			out.Summary.Overwritten++
			out.Summary.ToProcess++
			out.Overwritten = append(out.Overwritten, domain.OverwrittenFile{
				Filename:           decision.Filename,
				PreviousDocumentID: decision.ExistingDocumentID,
				ContentHash:        decision.ContentHash,
			})
		default:
			out.Summary.ToProcess++
		}
	}

	d.logger.Info("duplicate_detection_completed",
		"collection_id", opts.CollectionID,
		"checked", out.Summary.Checked,
		"skipped", out.Summary.Skipped,
		"overwritten", out.Summary.Overwritten,
		"to_process", out.Summary.ToProcess,
	)
	return out
}

func (d *DuplicateDetector) decide(
	ctx context.Context,
	file domain.FileDescriptor,
	hash string,
	opts domain.ProcessingOptions,
) (decision domain.DuplicateDecision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("duplicate lookup panic: %v", r)
		}
	}()

	decision = domain.DuplicateDecision{
		Filename:    file.Filename,
		Action:      domain.DuplicateProcess,
		ContentHash: hash,
	}

	existing, err := d.store.FindExisting(ctx, opts.CollectionID, file.Filename)
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			return decision, nil
		}
		return decision, fmt.Errorf("find existing document: %w", err)
	}
	if existing == nil {
		return decision, nil
	}
	if existing.ID == "" {
		return decision, errors.New("store returned a document without id")
	}

	switch {
	case opts.Overwrite():
		decision.Action = domain.DuplicateOverwrite
		decision.ExistingDocumentID = existing.ID
	case existing.ContentHash == hash:
		decision.Action = domain.DuplicateSkip
		decision.ExistingDocumentID = existing.ID
	}
	return decision, nil
}

func processAll(files []domain.FileDescriptor) DuplicateReport {
	report := DuplicateReport{Decisions: make([]domain.DuplicateDecision, len(files))}
	for i, file := range files {
		report.Decisions[i] = domain.DuplicateDecision{
			Filename:    file.Filename,
			Action:      domain.DuplicateProcess,
			ContentHash: ContentHash(file.Content),
		}
	}
	report.Summary = domain.DuplicateSummary{ToProcess: len(files)}
	return report
}
