package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/knowledge-ingest/internal/config"
	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
	"github.com/kirillkom/knowledge-ingest/internal/core/usecase"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/chunking"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/docconvert"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/queue/nats"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/repository/memory"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/resilience"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/spreadsheet"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/sysmem"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/web"
)

const mb = 1024 * 1024

// DocumentStore is the persistence surface the hosts need.
type DocumentStore interface {
	ports.DocumentStore
	GetByID(ctx context.Context, id string) (*domain.ParentDocument, error)
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Ingest    *usecase.IngestUseCase
	Documents DocumentStore
	// Queue is nil when NATS_URL is empty.
	Queue *nats.Queue

	closeFns []func()
}

type Options struct {
	// Observer receives pipeline measurements; nil discards them.
	Observer ports.IngestObserver
	// RequireQueue fails startup when NATS is not configured.
	RequireQueue bool
	// OnBreakerChange is told when a collaborator circuit opens or closes.
	OnBreakerChange func(operation string, open bool)
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts: cfg.ResilienceRetryAttempts,
		BreakerEnabled:   cfg.ResilienceBreaker,
		Logger:           logger,
		OnBreakerChange:  opts.OnBreakerChange,
	})

	store, err := app.openStore(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Documents = store

	blob, err := newBlobStorage(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init blob storage: %w", err)
	}

	ai, err := newAIProviders(ctx, cfg, executor)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init ai provider: %w", err)
	}
	if ai.close != nil {
		app.closeFns = append(app.closeFns, ai.close)
	}

	var publisher ports.EventPublisher
	if cfg.NATSURL != "" {
		queue, err := nats.NewWithOptions(cfg.NATSURL, nats.Options{
			EventSubject:       cfg.NATSEventSubject,
			RequestSubject:     cfg.NATSRequestSubject,
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = queue
		publisher = queue
		app.closeFns = append(app.closeFns, queue.Close)
	} else if opts.RequireQueue {
		app.Close()
		return nil, fmt.Errorf("init message queue: NATS_URL is required")
	}

	converters := usecase.Converters{
		domain.FormatSimpleText:      usecase.NewTextConverter(),
		domain.FormatExcel:           usecase.NewSpreadsheetConverter(spreadsheet.NewExtractor(cfg.SpreadsheetRows, logger)),
		domain.FormatComplexDocument: usecase.NewDocumentConverter(docconvert.NewEngine(logger)),
		domain.FormatImage:           usecase.NewImageConverter(ai.vision, blob, logger),
	}

	schedCfg := usecase.DefaultSchedulerConfig()
	if cfg.MaxConcurrent > 0 {
		schedCfg.MaxConcurrent = cfg.MaxConcurrent
	}
	if cfg.MemoryBudgetMB > 0 {
		schedCfg.MemoryBudgetBytes = uint64(cfg.MemoryBudgetMB) * mb
	}
	if cfg.MemoryFloorMB > 0 {
		schedCfg.MemoryFloorBytes = uint64(cfg.MemoryFloorMB) * mb
	}
	scheduler, err := usecase.NewScheduler(schedCfg, sysmem.NewProbe(), logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init scheduler: %w", err)
	}
	app.closeFns = append(app.closeFns, scheduler.Release)

	fetcher := web.NewFetcher(web.Config{
		Timeout:           cfg.FetchTimeout,
		RequestsPerSecond: cfg.FetchRPS,
		Burst:             cfg.FetchBurst,
		MaxBodyBytes:      int64(cfg.MaxUploadMB) * mb,
	}, executor)

	processor := usecase.NewDocumentProcessor(
		converters,
		usecase.NewMetadataEnricher(ai.generator, logger),
		store,
		chunking.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap, cfg.ChunkStrategy),
		publisher,
		opts.Observer,
		logger,
	)
	app.Ingest = usecase.NewIngestUseCase(
		processor,
		usecase.NewDuplicateDetector(store, opts.Observer, logger),
		scheduler,
		fetcher,
		opts.Observer,
		logger,
	)

	logger.Info("ingest_pipeline_ready",
		"store", storeKind(cfg),
		"blob_backend", cfg.BlobBackend,
		"ai_provider", cfg.AIProvider,
		"chunk_strategy", cfg.ChunkStrategy,
		"max_concurrent", scheduler.MaxConcurrent(),
		"events", app.Queue != nil,
	)
	return app, nil
}

func (a *App) openStore(ctx context.Context, cfg config.Config) (DocumentStore, error) {
	if cfg.PostgresDSN == "" {
		return memory.NewDocumentStore(), nil
	}
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	a.closeFns = append(a.closeFns, func() { _ = db.Close() })

	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, nil
}

func storeKind(cfg config.Config) string {
	if cfg.PostgresDSN == "" {
		return "memory"
	}
	return "postgres"
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}
