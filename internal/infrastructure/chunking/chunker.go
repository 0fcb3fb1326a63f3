package chunking

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

const (
	StrategyRecursive = "recursive"
	StrategyMarkdown  = "markdown"
	StrategyFixed     = "fixed"
)

// Chunker splits parent documents per strategy. Every chunk receives a copy
// of its parent's metadata.
type Chunker struct {
	chunkSize       int
	overlap         int
	defaultStrategy string
	splitters       map[string]textsplitter.TextSplitter
}

func NewChunker(chunkSize, overlap int, defaultStrategy string) *Chunker {
	fixed := NewSplitter(chunkSize, overlap)
	if defaultStrategy == "" {
		defaultStrategy = StrategyRecursive
	}
	return &Chunker{
		chunkSize:       fixed.ChunkSize,
		overlap:         fixed.Overlap,
		defaultStrategy: defaultStrategy,
		splitters: map[string]textsplitter.TextSplitter{
			StrategyFixed: fixed,
			StrategyRecursive: textsplitter.NewRecursiveCharacter(
				textsplitter.WithChunkSize(fixed.ChunkSize),
				textsplitter.WithChunkOverlap(fixed.Overlap),
			),
			StrategyMarkdown: textsplitter.NewMarkdownTextSplitter(
				textsplitter.WithChunkSize(fixed.ChunkSize),
				textsplitter.WithChunkOverlap(fixed.Overlap),
			),
		},
	}
}

func (c *Chunker) Chunk(ctx context.Context, docs []domain.ParentDocument, strategy string) ([]domain.Chunk, error) {
	strategy = strings.ToLower(strings.TrimSpace(strategy))
	if strategy == "" || strategy == "auto" {
		strategy = c.defaultStrategy
	}

	out := make([]domain.Chunk, 0, len(docs))
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		parts, err := c.split(doc.Content, strategy)
		if err != nil {
			return nil, err
		}
		for _, part := range parts {
			meta := doc.Metadata.Clone()
			meta["chunking_strategy"] = strategy
			out = append(out, domain.Chunk{Content: part, Metadata: meta})
		}
	}
	return out, nil
}

func (c *Chunker) split(text, strategy string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	splitter, ok := c.splitters[strategy]
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk", fmt.Errorf("unknown chunking strategy %q", strategy))
	}
	return splitWith(splitter, text, strategy)
}

func splitWith(splitter textsplitter.TextSplitter, text, strategy string) ([]string, error) {
	parts, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("%s split: %w", strategy, err)
	}
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out, nil
}
