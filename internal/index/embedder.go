package index

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// #region embedder

// Embedder turns text into vectors. langchaingo's embeddings.Embedder satisfies it.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// EmbedderConfig configures an OpenAI-compatible embedding endpoint.
type EmbedderConfig struct {
	Model   string
	BaseURL string
	APIKey  string
}

// NewOpenAIEmbedder builds a langchaingo embedder on the OpenAI client.
func NewOpenAIEmbedder(cfg EmbedderConfig) (Embedder, error) {
	opts := []openai.Option{openai.WithEmbeddingModel(cfg.Model)}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("embedding client: %w", err)
	}
	emb, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	return emb, nil
}

// #endregion embedder

// #region cache

// CachedEmbedder memoises query embeddings. Document batches pass through.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps inner with an LRU of the given size. size <= 0 disables caching.
func NewCachedEmbedder(inner Embedder, size int) (Embedder, error) {
	if size <= 0 {
		return inner, nil
	}
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return &CachedEmbedder{inner: inner, cache: c}, nil
}

func (c *CachedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.EmbedDocuments(ctx, texts)
}

func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return cloneVector(v), nil
	}
	v, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, cloneVector(v))
	return v, nil
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

// #endregion cache
