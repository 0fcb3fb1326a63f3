package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
)

const (
	StrategyParallel   = "parallel"
	StrategySequential = "sequential"

	mb = 1024 * 1024
)

type SchedulerConfig struct {
	MaxConcurrent     int
	MemoryBudgetBytes uint64
	MemoryFloorBytes  uint64
	// PressureRatio of the budget above which a task pauses before starting.
	PressureRatio float64
	PressurePause time.Duration
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxConcurrent:     DefaultMaxConcurrent(runtime.NumCPU()),
		MemoryBudgetBytes: 1024 * mb,
		MemoryFloorBytes:  500 * mb,
		PressureRatio:     0.8,
		PressurePause:     500 * time.Millisecond,
	}
}

// DefaultMaxConcurrent is max(1, cpus/2) capped at 3.
func DefaultMaxConcurrent(cpus int) int {
	n := cpus / 2
	if n < 1 {
		n = 1
	}
	if n > 3 {
		n = 3
	}
	return n
}

func (c SchedulerConfig) normalize() SchedulerConfig {
	out := c
	def := DefaultSchedulerConfig()
	if out.MaxConcurrent <= 0 {
		out.MaxConcurrent = def.MaxConcurrent
	}
	if out.MemoryBudgetBytes == 0 {
		out.MemoryBudgetBytes = def.MemoryBudgetBytes
	}
	if out.MemoryFloorBytes == 0 {
		out.MemoryFloorBytes = def.MemoryFloorBytes
	}
	if out.PressureRatio <= 0 || out.PressureRatio > 1 {
		out.PressureRatio = def.PressureRatio
	}
	if out.PressurePause < 0 {
		out.PressurePause = def.PressurePause
	}
	return out
}

// ScheduledFile is a resolved file tagged with its 1-based batch position.
type ScheduledFile struct {
	Index int
	File  domain.FileDescriptor
}

// FileOutcome is what processing one file yields.
type FileOutcome struct {
	Index     int
	Filename  string
	Documents []domain.DocumentSummary
	Chunks    []domain.Chunk
	Err       error
}

// BatchOutcome aggregates file outcomes in completion (parallel) or input
// (sequential) order.
type BatchOutcome struct {
	Strategy       string
	Documents      []domain.DocumentSummary
	Chunks         []domain.Chunk
	Errors         []domain.FileError
	FilesProcessed int
	FilesFailed    int
}

type FileWorker func(ctx context.Context, file ScheduledFile) FileOutcome

// Scheduler decides between parallel and sequential execution and bounds
// concurrency with a fixed-size pool.
type Scheduler struct {
	cfg    SchedulerConfig
	probe  ports.MemoryProbe
	pool   *ants.Pool
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration)
}

func NewScheduler(cfg SchedulerConfig, probe ports.MemoryProbe, logger *slog.Logger) (*Scheduler, error) {
	cfg = cfg.normalize()
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := ants.NewPool(cfg.MaxConcurrent)
	if err != nil {
		return nil, fmt.Errorf("create scheduler pool: %w", err)
	}
	return &Scheduler{
		cfg:    cfg,
		probe:  probe,
		pool:   pool,
		logger: logger,
		sleep:  sleepContext,
	}, nil
}

func (s *Scheduler) MaxConcurrent() int {
	return s.cfg.MaxConcurrent
}

// Release frees the worker pool.
func (s *Scheduler) Release() {
	if s.pool != nil {
		s.pool.Release()
	}
}

// ChooseStrategy returns parallel iff the batch has more than one file and at
// most MaxConcurrent files, fits the memory budget, and the host has more
// available memory than the floor.
func (s *Scheduler) ChooseStrategy(files []domain.FileDescriptor) string {
	count := len(files)
	if count <= 1 || count > s.cfg.MaxConcurrent {
		return StrategySequential
	}

	var total uint64
	for _, file := range files {
		if size := file.EstimatedSize(); size > 0 {
			total += uint64(size)
		}
	}
	if total >= s.cfg.MemoryBudgetBytes {
		return StrategySequential
	}

	if s.probe == nil {
		return StrategySequential
	}
	available, err := s.probe.AvailableBytes()
	if err != nil {
		s.logger.Warn("memory_telemetry_unavailable", "error", err)
		return StrategySequential
	}
	if available <= s.cfg.MemoryFloorBytes {
		return StrategySequential
	}
	return StrategyParallel
}

// Run executes work for every file with the given strategy. A failing or
// panicking file is recorded and never cancels its siblings.
func (s *Scheduler) Run(
	ctx context.Context,
	strategy string,
	files []ScheduledFile,
	work FileWorker,
	progress ports.ProgressFunc,
) BatchOutcome {
	if strategy == StrategyParallel {
		return s.runParallel(ctx, files, work, progress)
	}
	return s.runSequential(ctx, files, work, progress)
}

func (s *Scheduler) runSequential(ctx context.Context, files []ScheduledFile, work FileWorker, progress ports.ProgressFunc) BatchOutcome {
	out := BatchOutcome{Strategy: StrategySequential}
	for i, file := range files {
		outcome := s.safeWork(ctx, file, work)
		out.add(outcome)
		if outcome.Err != nil {
			s.logger.Error("file_processing_failed",
				"strategy", StrategySequential,
				"index", file.Index,
				"filename", file.File.Filename,
				"error", outcome.Err,
			)
		}
		report(progress, i+1, len(files))
	}
	return out
}

func (s *Scheduler) runParallel(ctx context.Context, files []ScheduledFile, work FileWorker, progress ports.ProgressFunc) BatchOutcome {
	out := BatchOutcome{Strategy: StrategyParallel}
	results := make(chan FileOutcome, len(files))

	submitted := 0
	for _, file := range files {
		task := func() {
			// The memory check runs inside safeWork so a failing probe still
			// yields an outcome for this file.
			results <- s.safeWork(ctx, file, func(ctx context.Context, file ScheduledFile) FileOutcome {
				s.waitForMemory(ctx, file)
				return work(ctx, file)
			})
		}
		if err := s.pool.Submit(task); err != nil {
			results <- FileOutcome{
				Index:    file.Index,
				Filename: file.File.Filename,
				Err:      fmt.Errorf("submit to worker pool: %w", err),
			}
		}
		submitted++
	}

	for completed := 1; completed <= submitted; completed++ {
		outcome := <-results
		out.add(outcome)
		if outcome.Err != nil {
			s.logger.Error("file_processing_failed",
				"strategy", StrategyParallel,
				"index", outcome.Index,
				"filename", outcome.Filename,
				"error", outcome.Err,
			)
		}
		report(progress, completed, len(files))
	}
	return out
}

// waitForMemory pauses once when process memory exceeds the pressure share of
// the budget. It never rejects work.
func (s *Scheduler) waitForMemory(ctx context.Context, file ScheduledFile) {
	if s.probe == nil {
		return
	}
	used, err := s.probe.ProcessBytes()
	if err != nil {
		return
	}
	threshold := uint64(float64(s.cfg.MemoryBudgetBytes) * s.cfg.PressureRatio)
	if used <= threshold {
		return
	}
	s.logger.Warn("memory_pressure_pause",
		"index", file.Index,
		"filename", file.File.Filename,
		"process_bytes", used,
		"threshold_bytes", threshold,
		"pause_ms", s.cfg.PressurePause.Milliseconds(),
	)
	s.sleep(ctx, s.cfg.PressurePause)
}

func (s *Scheduler) safeWork(ctx context.Context, file ScheduledFile, work FileWorker) (outcome FileOutcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("file_processing_panic",
				"index", file.Index,
				"filename", file.File.Filename,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			outcome = FileOutcome{
				Index:    file.Index,
				Filename: file.File.Filename,
				Err:      fmt.Errorf("processing %s: %v", file.File.Filename, r),
			}
		}
	}()

	outcome = work(ctx, file)
	outcome.Index = file.Index
	if outcome.Filename == "" {
		outcome.Filename = file.File.Filename
	}
	return outcome
}

func (o *BatchOutcome) add(outcome FileOutcome) {
	if outcome.Err != nil {
		o.FilesFailed++
		o.Errors = append(o.Errors, domain.FileError{
			Index:    outcome.Index,
			Filename: outcome.Filename,
			Error:    outcome.Err.Error(),
		})
		return
	}
	o.FilesProcessed++
	o.Documents = append(o.Documents, outcome.Documents...)
	o.Chunks = append(o.Chunks, outcome.Chunks...)
}

func report(progress ports.ProgressFunc, completed, total int) {
	if progress == nil || total == 0 {
		return
	}
	progress(completed, total, float64(completed)*100/float64(total))
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
