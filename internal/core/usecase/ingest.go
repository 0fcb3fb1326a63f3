package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
)

const invalidShapeMessage = "request must contain one of files, urls, url, text_content or batch_items"

// IngestUseCase is the single entry point of the ingestion pipeline.
type IngestUseCase struct {
	processor *DocumentProcessor
	detector  *DuplicateDetector
	scheduler *Scheduler
	fetcher   ports.URLFetcher
	observer  ports.IngestObserver
	logger    *slog.Logger
}

func NewIngestUseCase(
	processor *DocumentProcessor,
	detector *DuplicateDetector,
	scheduler *Scheduler,
	fetcher ports.URLFetcher,
	observer ports.IngestObserver,
	logger *slog.Logger,
) *IngestUseCase {
	if observer == nil {
		observer = ports.NopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestUseCase{
		processor: processor,
		detector:  detector,
		scheduler: scheduler,
		fetcher:   fetcher,
		observer:  observer,
		logger:    logger,
	}
}

var _ ports.Ingestor = (*IngestUseCase)(nil)

// ProcessInput routes the request by shape. Precedence: files, urls, url,
// text_content, batch_items. It never panics.
func (uc *IngestUseCase) ProcessInput(ctx context.Context, req domain.IngestRequest, progress ports.ProgressFunc) (result *domain.ProcessingResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			uc.logger.Error("ingest_panic",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			result = domain.FailedResult(fmt.Sprintf("ingestion aborted: %v", r))
		}
		result.Metadata["processing_time_ms"] = time.Since(start).Milliseconds()
		uc.logger.Info("ingest_completed",
			"success", result.Success,
			"documents", len(result.Documents),
			"chunks", len(result.Chunks),
			"errors", len(result.Errors),
			"failed_items", len(result.FailedItems),
			"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
		)
	}()

	if err := req.Options.Validate(); err != nil {
		uc.logger.Warn("ingest_invalid_options", "error", err)
		return domain.FailedResult(err.Error())
	}

	switch {
	case len(req.Files) > 0:
		result = uc.processFiles(ctx, req.Files, req.Options, progress)
	case len(req.URLs) > 0:
		result = uc.processURLs(ctx, req.URLs, "", req.Options, progress)
	case strings.TrimSpace(req.URL) != "":
		result = uc.processURLs(ctx, []string{req.URL}, "", req.Options, progress)
	case strings.TrimSpace(req.TextContent) != "":
		result = uc.processText(ctx, req.TextContent, req.Title, req.Options)
	case len(req.BatchItems) > 0:
		result = uc.processBatch(ctx, req.BatchItems, req.Options, progress)
	default:
		uc.logger.Warn("ingest_invalid_request", "error", invalidShapeMessage)
		result = domain.FailedResult(invalidShapeMessage)
	}
	return result
}

func (uc *IngestUseCase) processFiles(
	ctx context.Context,
	files []domain.FileDescriptor,
	opts domain.ProcessingOptions,
	progress ports.ProgressFunc,
) *domain.ProcessingResult {
	result := domain.NewProcessingResult()

	// Payloads collapse to raw bytes once, here.
	resolved := make([]ScheduledFile, 0, len(files))
	for i, file := range files {
		raw, err := file.Resolve()
		if err != nil {
			uc.logger.Error("file_resolve_failed", "index", i+1, "filename", file.Filename, "error", err)
			result.Errors = append(result.Errors, domain.FileError{
				Index:    i + 1,
				Filename: file.Filename,
				Error:    err.Error(),
			})
			continue
		}
		resolved = append(resolved, ScheduledFile{Index: i + 1, File: raw})
	}

	descriptors := make([]domain.FileDescriptor, len(resolved))
	for i, file := range resolved {
		descriptors[i] = file.File
	}
	report := processAll(descriptors)
	if uc.detector != nil {
		report = uc.detector.Detect(ctx, descriptors, opts)
	}

	pending := make([]ScheduledFile, 0, len(resolved))
	decisions := make(map[int]domain.DuplicateDecision, len(resolved))
	pendingFiles := make([]domain.FileDescriptor, 0, len(resolved))
	for i, file := range resolved {
		if !report.Pending(i) {
			continue
		}
		pending = append(pending, file)
		pendingFiles = append(pendingFiles, file.File)
		if i < len(report.Decisions) {
			decisions[file.Index] = report.Decisions[i]
		}
	}

	strategy := uc.scheduler.ChooseStrategy(pendingFiles)
	if report.Pruned() {
		strategy = StrategySequential
	}
	uc.observer.StrategyChosen(strategy)
	uc.logger.Info("batch_strategy_selected",
		"strategy", strategy,
		"files", len(files),
		"pending", len(pending),
		"max_concurrent", uc.scheduler.MaxConcurrent(),
	)

	worker := func(ctx context.Context, file ScheduledFile) FileOutcome {
		return uc.processor.ProcessFile(ctx, file, decisions[file.Index], opts)
	}
	outcome := uc.scheduler.Run(ctx, strategy, pending, worker, progress)

	result.Documents = append(result.Documents, outcome.Documents...)
	result.Chunks = append(result.Chunks, outcome.Chunks...)
	result.Errors = append(result.Errors, outcome.Errors...)
	if report.Detected {
		summary := report.Summary
		result.DuplicateSummary = &summary
		result.FilesSkipped = append(result.FilesSkipped, report.Skipped...)
		result.FilesOverwritten = append(result.FilesOverwritten, report.Overwritten...)
	}

	result.Metadata["strategy"] = strategy
	result.Metadata["max_concurrent"] = uc.scheduler.MaxConcurrent()
	result.Metadata["total_files"] = len(files)
	result.Metadata["files_processed"] = outcome.FilesProcessed
	result.Metadata["files_failed"] = outcome.FilesFailed + (len(files) - len(resolved))
	result.Metadata["total_documents"] = len(result.Documents)
	result.Metadata["total_chunks"] = len(result.Chunks)
	result.Finalize()
	return result
}

type urlOutcome struct {
	documents []domain.DocumentSummary
	chunks    []domain.Chunk
	err       error
}

// processURLs fetches up to MaxConcurrent URLs at a time. Results keep input
// order.
func (uc *IngestUseCase) processURLs(
	ctx context.Context,
	urls []string,
	sourceType string,
	opts domain.ProcessingOptions,
	progress ports.ProgressFunc,
) *domain.ProcessingResult {
	result := domain.NewProcessingResult()
	if uc.fetcher == nil {
		result.ErrorMessage = "url ingestion is not configured"
		result.Finalize()
		return result
	}

	outcomes := make([]urlOutcome, len(urls))
	var (
		mu        sync.Mutex
		completed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.scheduler.MaxConcurrent())
	for i, raw := range urls {
		g.Go(func() error {
			outcomes[i] = uc.safeURL(gctx, i+1, strings.TrimSpace(raw), sourceType, opts)
			mu.Lock()
			completed++
			report(progress, completed, len(urls))
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	processed, failed := 0, 0
	for i, outcome := range outcomes {
		if outcome.err != nil {
			failed++
			uc.logger.Error("url_processing_failed", "index", i+1, "url", urls[i], "error", outcome.err)
			result.Errors = append(result.Errors, domain.FileError{
				Index:    i + 1,
				Filename: urls[i],
				Error:    outcome.err.Error(),
			})
			continue
		}
		processed++
		result.Documents = append(result.Documents, outcome.documents...)
		result.Chunks = append(result.Chunks, outcome.chunks...)
	}

	result.Metadata["total_urls"] = len(urls)
	result.Metadata["urls_processed"] = processed
	result.Metadata["urls_failed"] = failed
	result.Metadata["total_documents"] = len(result.Documents)
	result.Metadata["total_chunks"] = len(result.Chunks)
	result.Finalize()
	return result
}

func (uc *IngestUseCase) safeURL(ctx context.Context, index int, rawURL, sourceType string, opts domain.ProcessingOptions) (out urlOutcome) {
	defer func() {
		if r := recover(); r != nil {
			uc.logger.Error("url_processing_panic", "url", rawURL, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			out = urlOutcome{err: fmt.Errorf("processing %s: %v", rawURL, r)}
		}
	}()
	return uc.processURL(ctx, index, rawURL, sourceType, opts)
}

func (uc *IngestUseCase) processURL(ctx context.Context, index int, rawURL, sourceType string, opts domain.ProcessingOptions) urlOutcome {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return urlOutcome{err: domain.WrapError(domain.ErrInvalidInput, "parse url", err)}
	}

	resource, err := uc.fetcher.Fetch(ctx, rawURL, sourceType)
	if err != nil {
		return urlOutcome{err: fmt.Errorf("fetch %s: %w", rawURL, err)}
	}
	if resource.SourceType == "" {
		resource.SourceType = "url"
		if sourceType != "" {
			resource.SourceType = sourceType
		}
	}

	// Downloads that are not web pages go through the file pipeline.
	if strings.TrimSpace(resource.Text) == "" && len(resource.Body) > 0 {
		file := ScheduledFile{
			Index: index,
			File: domain.FileDescriptor{
				Filename:    filenameFromURL(resource),
				ContentType: resource.ContentType,
				Size:        int64(len(resource.Body)),
				Content:     resource.Body,
			},
		}
		decision := domain.DuplicateDecision{
			Filename:    file.File.Filename,
			Action:      domain.DuplicateProcess,
			ContentHash: ContentHash(resource.Body),
		}
		outcome := uc.processor.processFile(ctx, file, decision, opts, sourceInfo{
			sourceType: resource.SourceType,
			origin:     rawURL,
		})
		return urlOutcome{documents: outcome.Documents, chunks: outcome.Chunks, err: outcome.Err}
	}

	if strings.TrimSpace(resource.Text) == "" {
		return urlOutcome{err: domain.WrapError(domain.ErrConversionFailed, "extract "+rawURL, fmt.Errorf("no readable content"))}
	}

	meta := resource.Metadata.Clone()
	meta[domain.MetaSource] = rawURL
	meta[domain.MetaSourceType] = resource.SourceType
	meta[domain.MetaContentHash] = ContentHash([]byte(resource.Text))
	meta["url"] = rawURL
	if resource.FinalURL != "" && resource.FinalURL != rawURL {
		meta["final_url"] = resource.FinalURL
	}
	if resource.ContentType != "" {
		meta["content_type"] = resource.ContentType
	}
	if title := strings.TrimSpace(resource.Title); title != "" {
		meta[domain.MetaTitle] = title
	}

	name := strings.TrimSpace(resource.Title)
	if name == "" {
		name = filenameFromURL(resource)
	}
	uc.observer.FileStarted()
	start := time.Now()
	summary, chunks := uc.processor.FinishDocument(ctx, domain.ParentDocument{Content: resource.Text, Metadata: meta}, name, opts, "")
	uc.observer.FileFinished(domain.FormatSimpleText, time.Since(start), nil)
	return urlOutcome{documents: []domain.DocumentSummary{summary}, chunks: chunks}
}

func (uc *IngestUseCase) processText(ctx context.Context, text, title string, opts domain.ProcessingOptions) *domain.ProcessingResult {
	result := domain.NewProcessingResult()
	if strings.TrimSpace(text) == "" {
		result.ErrorMessage = "text content is empty"
		result.Finalize()
		return result
	}

	name := strings.TrimSpace(title)
	meta := domain.Metadata{
		domain.MetaSource:      "text_input",
		domain.MetaSourceType:  "text",
		domain.MetaContentHash: ContentHash([]byte(text)),
		"file_type":            "text",
	}
	if name != "" {
		meta[domain.MetaTitle] = name
	} else {
		name = "text_input"
	}
	addTextStats(text, meta)

	uc.observer.FileStarted()
	start := time.Now()
	summary, chunks := uc.processor.FinishDocument(ctx, domain.ParentDocument{Content: text, Metadata: meta}, name, opts, "")
	uc.observer.FileFinished(domain.FormatSimpleText, time.Since(start), nil)

	result.Documents = append(result.Documents, summary)
	result.Chunks = append(result.Chunks, chunks...)
	result.Metadata["total_documents"] = 1
	result.Metadata["total_chunks"] = len(chunks)
	result.Finalize()
	return result
}

// processBatch dispatches each item to its single-item handler. A failing
// item lands in failed_items and never stops the batch.
func (uc *IngestUseCase) processBatch(
	ctx context.Context,
	items []domain.BatchItem,
	opts domain.ProcessingOptions,
	progress ports.ProgressFunc,
) *domain.ProcessingResult {
	result := domain.NewProcessingResult()
	succeeded := 0

	for i, item := range items {
		sub, name := uc.processItem(ctx, item, opts)
		if sub.Success {
			succeeded++
			// Per-item indices refer to the item, not the batch.
			for j := range sub.Errors {
				sub.Errors[j].Index = i + 1
			}
			result.Merge(sub)
		} else {
			uc.logger.Warn("batch_item_failed", "index", i+1, "type", string(item.Type), "name", name, "error", sub.ErrorMessage)
			result.FailedItems = append(result.FailedItems, domain.FailedItem{
				Index: i + 1,
				Type:  item.Type,
				Name:  name,
				Error: sub.ErrorMessage,
			})
		}
		report(progress, i+1, len(items))
	}

	result.Metadata["total_items"] = len(items)
	result.Metadata["successful_items"] = succeeded
	result.Metadata["failed_items"] = len(items) - succeeded
	result.Metadata["total_documents"] = len(result.Documents)
	result.Metadata["total_chunks"] = len(result.Chunks)
	result.Finalize()
	return result
}

func (uc *IngestUseCase) processItem(ctx context.Context, item domain.BatchItem, opts domain.ProcessingOptions) (result *domain.ProcessingResult, name string) {
	defer func() {
		if r := recover(); r != nil {
			uc.logger.Error("batch_item_panic", "type", string(item.Type), "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			result = domain.FailedResult(fmt.Sprintf("processing %s item: %v", item.Type, r))
		}
	}()

	switch item.Type {
	case domain.BatchItemFile:
		if item.File == nil {
			return domain.FailedResult("file item has no file"), ""
		}
		return uc.processFiles(ctx, []domain.FileDescriptor{*item.File}, opts, nil), item.File.Filename
	case domain.BatchItemURL, domain.BatchItemYouTube:
		if strings.TrimSpace(item.URL) == "" {
			return domain.FailedResult(string(item.Type) + " item has no url"), ""
		}
		return uc.processURLs(ctx, []string{item.URL}, string(item.Type), opts, nil), item.URL
	case domain.BatchItemText:
		name = item.Title
		if name == "" {
			name = "text"
		}
		return uc.processText(ctx, item.Text, item.Title, opts), name
	default:
		return domain.FailedResult(fmt.Sprintf("unknown batch item type %q", item.Type)), ""
	}
}

func filenameFromURL(resource *domain.FetchedResource) string {
	raw := resource.FinalURL
	if raw == "" {
		raw = resource.URL
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "download"
	}
	base := path.Base(parsed.Path)
	if base == "" || base == "/" || base == "." {
		if parsed.Host != "" {
			return parsed.Host
		}
		return "download"
	}
	return base
}
