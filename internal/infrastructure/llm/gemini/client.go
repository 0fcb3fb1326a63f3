// Package gemini implements image analysis and metadata generation on top of
// the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

const defaultModel = "gemini-1.5-flash"

// generator abstracts the SDK call so tests can run without network access.
type generator interface {
	generate(ctx context.Context, model string, parts ...genai.Part) (string, error)
}

type Client struct {
	sdk   *genai.Client
	gen   generator
	model string
}

func New(ctx context.Context, apiKey, model string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "gemini client", errors.New("api key is required"))
	}
	sdk, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	if model == "" {
		model = defaultModel
	}
	c := &Client{sdk: sdk, model: model}
	c.gen = sdkGenerator{client: sdk}
	return c, nil
}

func (c *Client) Close() error {
	if c.sdk != nil {
		return c.sdk.Close()
	}
	return nil
}

type sdkGenerator struct {
	client *genai.Client
}

func (g sdkGenerator) generate(ctx context.Context, model string, parts ...genai.Part) (string, error) {
	m := g.client.GenerativeModel(model)
	m.ResponseMIMEType = "application/json"

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return "", domain.WrapError(domain.ErrTemporary, "gemini generate", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

type VisionAnalyzer struct {
	client *Client
}

func NewVisionAnalyzer(client *Client) *VisionAnalyzer {
	return &VisionAnalyzer{client: client}
}

func (v *VisionAnalyzer) Analyze(ctx context.Context, image []byte, format, fallbackTitle string) (domain.ImageAnalysis, error) {
	if len(image) == 0 {
		return domain.ImageAnalysis{}, domain.WrapError(domain.ErrInvalidInput, "analyze image", errors.New("empty image"))
	}
	out, err := v.client.gen.generate(ctx, v.client.model,
		genai.ImageData(format, image),
		genai.Text(imagePrompt(fallbackTitle)),
	)
	if err != nil {
		return domain.ImageAnalysis{}, err
	}

	var result domain.ImageAnalysis
	if err := json.Unmarshal([]byte(extractJSONObject(out)), &result); err != nil {
		result = domain.ImageAnalysis{DetailedDescription: strings.TrimSpace(out)}
	}
	if strings.TrimSpace(result.Title) == "" {
		result.Title = fallbackTitle
	}
	if strings.TrimSpace(result.DetailedDescription) == "" {
		result.DetailedDescription = result.ShortDescription
	}
	if strings.TrimSpace(result.DetailedDescription) == "" {
		return domain.ImageAnalysis{}, errors.New("gemini returned no description")
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
	out, err := g.client.gen.generate(ctx, g.client.model, genai.Text(metadataPrompt(content, fallbackName)))
	if err != nil {
		return domain.GeneratedMetadata{}, err
	}

	var result domain.GeneratedMetadata
	if err := json.Unmarshal([]byte(extractJSONObject(out)), &result); err != nil {
		return domain.GeneratedMetadata{}, fmt.Errorf("parse metadata json: %w", err)
	}
	result.Name = strings.TrimSpace(result.Name)
	if result.Name == "" {
		return domain.GeneratedMetadata{}, errors.New("metadata json missing name")
	}
	result.Description = strings.TrimSpace(result.Description)
	return result, nil
}

func metadataPrompt(content, fallbackName string) string {
	const maxSnippet = 4000
	snippet := strings.TrimSpace(content)
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet]
	}
	return fmt.Sprintf(`Name this document for a knowledge base.
Return a JSON object with keys name (at most 8 words) and description (one or two sentences).
The file is named %q.

Document:
%s`, fallbackName, snippet)
}

func imagePrompt(fallbackTitle string) string {
	return fmt.Sprintf(`Describe this image for a searchable knowledge base.
Return a JSON object with keys title, short_description and detailed_description.
Include any visible text, charts and their values in detailed_description.
The file is named %q.`, fallbackTitle)
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
