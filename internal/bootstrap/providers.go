package bootstrap

import (
	"context"
	"fmt"

	"github.com/kirillkom/knowledge-ingest/internal/config"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/resilience"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/storage/s3"
)

type aiProviders struct {
	vision    ports.VisionAnalyzer
	generator ports.MetadataGenerator
	close     func()
}

func newAIProviders(ctx context.Context, cfg config.Config, executor *resilience.Executor) (aiProviders, error) {
	switch cfg.AIProvider {
	case "", "ollama":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaTextModel, cfg.OllamaVisionModel).WithExecutor(executor)
		return aiProviders{
			vision:    ollama.NewVisionAnalyzer(client),
			generator: ollama.NewMetadataGenerator(client),
		}, nil
	case "gemini":
		client, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return aiProviders{}, err
		}
		return aiProviders{
			vision:    gemini.NewVisionAnalyzer(client),
			generator: gemini.NewMetadataGenerator(client),
			close:     func() { _ = client.Close() },
		}, nil
	case "none":
		// Images fail conversion and titles come from filenames.
		return aiProviders{}, nil
	default:
		return aiProviders{}, fmt.Errorf("unknown AI_PROVIDER %q", cfg.AIProvider)
	}
}

func newBlobStorage(ctx context.Context, cfg config.Config) (ports.BlobStorage, error) {
	switch cfg.BlobBackend {
	case "", "local":
		return localfs.New(cfg.StoragePath)
	case "s3":
		return s3.New(ctx, s3.Config{
			Region:        cfg.S3Region,
			Bucket:        cfg.S3Bucket,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Endpoint:      cfg.S3Endpoint,
			UploadTimeout: cfg.UploadTimeout,
		})
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown BLOB_BACKEND %q", cfg.BlobBackend)
	}
}
