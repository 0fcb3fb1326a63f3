// Package ollama talks to a local Ollama server for image descriptions and
// document metadata.
package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/resilience"
)

type Client struct {
	baseURL     string
	textModel   string
	visionModel string
	httpClient  *http.Client
	executor    *resilience.Executor
}

func New(baseURL, textModel, visionModel string) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		textModel:   textModel,
		visionModel: visionModel,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
	}
}

// WithExecutor routes every request through retry and circuit breaking.
func (c *Client) WithExecutor(executor *resilience.Executor) *Client {
	c.executor = executor
	return c
}

type VisionAnalyzer struct {
	client *Client
}

func NewVisionAnalyzer(client *Client) *VisionAnalyzer {
	return &VisionAnalyzer{client: client}
}

func (v *VisionAnalyzer) Analyze(ctx context.Context, image []byte, format, fallbackTitle string) (domain.ImageAnalysis, error) {
	if len(image) == 0 {
		return domain.ImageAnalysis{}, domain.WrapError(domain.ErrInvalidInput, "analyze image", fmt.Errorf("empty image"))
	}
	reqBody := map[string]any{
		"model":  v.client.visionModel,
		"prompt": buildImagePrompt(format, fallbackTitle),
		"images": []string{base64.StdEncoding.EncodeToString(image)},
		"stream": false,
		"format": "json",
	}
	respText, err := v.client.generate(ctx, reqBody, "vision")
	if err != nil {
		return domain.ImageAnalysis{}, err
	}

	var result domain.ImageAnalysis
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &result); err != nil {
		// Models sometimes answer in prose despite format=json.
		result = domain.ImageAnalysis{DetailedDescription: respText}
	}
	result.Title = strings.TrimSpace(result.Title)
	if result.Title == "" {
		result.Title = fallbackTitle
	}
	if strings.TrimSpace(result.DetailedDescription) == "" {
		result.DetailedDescription = result.ShortDescription
	}
	if strings.TrimSpace(result.DetailedDescription) == "" {
		return domain.ImageAnalysis{}, fmt.Errorf("vision model returned no description")
	}
	return result, nil
}

type MetadataGenerator struct {
	client *Client
}

func NewMetadataGenerator(client *Client) *MetadataGenerator {
	return &MetadataGenerator{client: client}
}

func (g *MetadataGenerator) Generate(ctx context.Context, content, fallbackName string) (domain.GeneratedMetadata, error) {
	respText, err := g.client.generateJSON(ctx, buildMetadataPrompt(content, fallbackName))
	if err != nil {
		return domain.GeneratedMetadata{}, err
	}

	var result domain.GeneratedMetadata
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &result); err != nil {
		return domain.GeneratedMetadata{}, fmt.Errorf("parse metadata json: %w", err)
	}
	result.Name = strings.TrimSpace(result.Name)
	result.Description = strings.TrimSpace(result.Description)
	if result.Name == "" {
		return domain.GeneratedMetadata{}, fmt.Errorf("metadata json missing name")
	}
	return result, nil
}

func (c *Client) generateJSON(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.textModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}
	return c.generate(ctx, reqBody, "generate")
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any, operation string) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	call := func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/generate", reqBody, &response, operation)
	}

	if err := c.executor.Execute(ctx, "ollama."+operation, call, classifyOllamaError); err != nil {
		return "", resilience.AsTemporary("ollama "+operation, err, classifyOllamaError)
	}
	return strings.TrimSpace(response.Response), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
