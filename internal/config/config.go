package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	APIPort  string
	LogLevel string

	// PostgresDSN empty keeps documents in memory.
	PostgresDSN string

	NATSURL            string
	NATSEventSubject   string
	NATSRequestSubject string

	AIProvider        string
	OllamaURL         string
	OllamaTextModel   string
	OllamaVisionModel string
	GeminiAPIKey      string
	GeminiModel       string

	BlobBackend   string
	StoragePath   string
	S3Region      string
	S3Bucket      string
	S3AccessKey   string
	S3SecretKey   string
	S3Endpoint    string
	UploadTimeout time.Duration

	ChunkSize     int
	ChunkOverlap  int
	ChunkStrategy string

	MaxConcurrent   int
	MemoryBudgetMB  int
	MemoryFloorMB   int
	MaxUploadMB     int
	FetchRPS        float64
	FetchBurst      int
	FetchTimeout    time.Duration
	SpreadsheetRows int

	ResilienceRetryAttempts int
	ResilienceBreaker       bool

	WorkerMetricsPort string
}

// Load reads configuration from the environment. A .env file in the working
// directory and the YAML file named by CONFIG_FILE supply defaults; real
// environment variables win over both.
func Load() (Config, error) {
	_ = godotenv.Load()

	src := source{lookup: os.Getenv}
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		values, err := readYAML(path)
		if err != nil {
			return Config{}, err
		}
		src.file = values
	}
	return load(src), nil
}

func load(src source) Config {
	return Config{
		APIPort:  src.mustEnv("API_PORT", "8080"),
		LogLevel: src.mustEnv("LOG_LEVEL", "info"),

		PostgresDSN: src.mustEnv("POSTGRES_DSN", ""),

		NATSURL:            src.mustEnv("NATS_URL", ""),
		NATSEventSubject:   src.mustEnv("NATS_EVENT_SUBJECT", "documents.ingested"),
		NATSRequestSubject: src.mustEnv("NATS_REQUEST_SUBJECT", "ingest.requests"),

		AIProvider:        strings.ToLower(src.mustEnv("AI_PROVIDER", "ollama")),
		OllamaURL:         src.mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaTextModel:   src.mustEnv("OLLAMA_TEXT_MODEL", "llama3.1:8b"),
		OllamaVisionModel: src.mustEnv("OLLAMA_VISION_MODEL", "llava:7b"),
		GeminiAPIKey:      src.mustEnv("GEMINI_API_KEY", ""),
		GeminiModel:       src.mustEnv("GEMINI_MODEL", "gemini-1.5-flash"),

		BlobBackend:   strings.ToLower(src.mustEnv("BLOB_BACKEND", "local")),
		StoragePath:   src.mustEnv("STORAGE_PATH", "./data/storage"),
		S3Region:      src.mustEnv("S3_REGION", "us-east-1"),
		S3Bucket:      src.mustEnv("S3_BUCKET", ""),
		S3AccessKey:   src.mustEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:   src.mustEnv("S3_SECRET_KEY", ""),
		S3Endpoint:    src.mustEnv("S3_ENDPOINT", ""),
		UploadTimeout: src.mustEnvDuration("UPLOAD_TIMEOUT", 60*time.Second),

		ChunkSize:     src.mustEnvInt("CHUNK_SIZE", 900),
		ChunkOverlap:  src.mustEnvInt("CHUNK_OVERLAP", 150),
		ChunkStrategy: src.mustEnv("CHUNK_STRATEGY", "recursive"),

		MaxConcurrent:   src.mustEnvInt("MAX_CONCURRENT", 0),
		MemoryBudgetMB:  src.mustEnvInt("MEMORY_BUDGET_MB", 1024),
		MemoryFloorMB:   src.mustEnvInt("MEMORY_FLOOR_MB", 500),
		MaxUploadMB:     src.mustEnvInt("MAX_UPLOAD_MB", 200),
		FetchRPS:        src.mustEnvFloat("FETCH_RPS", 5),
		FetchBurst:      src.mustEnvInt("FETCH_BURST", 10),
		FetchTimeout:    src.mustEnvDuration("FETCH_TIMEOUT", 30*time.Second),
		SpreadsheetRows: src.mustEnvInt("SPREADSHEET_MAX_ROWS", 5000),

		ResilienceRetryAttempts: src.mustEnvInt("RESILIENCE_RETRY_ATTEMPTS", 3),
		ResilienceBreaker:       src.mustEnvBool("RESILIENCE_BREAKER_ENABLED", true),

		WorkerMetricsPort: src.mustEnv("WORKER_METRICS_PORT", "9090"),
	}
}

// source resolves a key from the environment first, then the YAML file.
type source struct {
	lookup func(string) string
	file   map[string]string
}

func readYAML(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	out := make(map[string]string, len(doc))
	for k, v := range doc {
		if v == nil {
			continue
		}
		out[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return out, nil
}

func (s source) get(key string) string {
	if v := s.lookup(key); v != "" {
		return v
	}
	return s.file[key]
}

func (s source) mustEnv(key, fallback string) string {
	v := s.get(key)
	if v == "" {
		return fallback
	}
	return v
}

func (s source) mustEnvInt(key string, fallback int) int {
	v := s.get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (s source) mustEnvFloat(key string, fallback float64) float64 {
	v := s.get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func (s source) mustEnvBool(key string, fallback bool) bool {
	v := s.get(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func (s source) mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := s.get(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
