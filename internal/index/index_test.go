package index

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/danielpatrickdp/agentic-rag/internal/backoff"
	"github.com/danielpatrickdp/agentic-rag/internal/logger"
)

// #region filter-tests

func TestFilterAndRank(t *testing.T) {
	hits := []Scored{
		{Passage: Passage{ID: "a"}, Score: 0.65},
		{Passage: Passage{ID: "b"}, Score: 0.91},
		{Passage: Passage{ID: "c"}, Score: 0.70},
		{Passage: Passage{ID: "d"}, Score: 0.80},
	}
	got := FilterAndRank(hits, 2, 0.7)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Passage.ID)
	assert.Equal(t, "d", got[1].Passage.ID)
	for _, h := range got {
		assert.GreaterOrEqual(t, h.Score, 0.7)
	}
}

func TestPassage_Locator(t *testing.T) {
	assert.Equal(t, "n/a", Passage{}.Locator())
	assert.Equal(t, "3", Passage{Page: 3}.Locator())
}

// #endregion filter-tests

// #region bleve-tests

func seedBleve(t *testing.T) *Bleve {
	t.Helper()
	b, err := OpenBleve("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	n, err := b.Add(context.Background(), []Passage{
		{ID: "p1", Text: "Alice Johnson leads the platform team and owns the deployment pipeline.", Source: "team.pdf", Page: 2},
		{ID: "p2", Text: "The cafeteria serves lunch between noon and two.", Source: "handbook.txt"},
		{ID: "p3", Text: "Deployment pipeline runs nightly and publishes release notes.", Source: "ops.md"},
	})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	return b
}

func TestBleve_CountAndSearch(t *testing.T) {
	b := seedBleve(t)
	ctx := context.Background()

	count, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	hits, err := b.SearchWithScore(ctx, "deployment pipeline", 5, 0)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	ids := map[string]bool{}
	for _, h := range hits {
		ids[h.Passage.ID] = true
		assert.True(t, h.Score > 0 && h.Score < 1, "score %v not normalised", h.Score)
	}
	assert.True(t, ids["p1"])
	assert.True(t, ids["p3"])
	assert.False(t, ids["p2"])
}

func TestBleve_ThresholdFilters(t *testing.T) {
	b := seedBleve(t)
	hits, err := b.SearchWithScore(context.Background(), "deployment pipeline", 5, 0.999)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBleve_FieldsRoundTrip(t *testing.T) {
	b := seedBleve(t)
	hits, err := b.SearchWithScore(context.Background(), "Alice Johnson", 1, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "team.pdf", hits[0].Passage.Source)
	assert.Equal(t, 2, hits[0].Passage.Page)
	assert.Contains(t, hits[0].Passage.Text, "platform team")
}

func TestBleve_EmptyQuery(t *testing.T) {
	b := seedBleve(t)
	_, err := b.SearchWithScore(context.Background(), "  ", 5, 0)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestNormalizeScore(t *testing.T) {
	assert.Equal(t, 0.0, normalizeScore(0))
	assert.Equal(t, 0.5, normalizeScore(1))
	assert.InDelta(t, 0.75, normalizeScore(3), 1e-9)
}

// #endregion bleve-tests

// #region embedder-tests

type countingEmbedder struct {
	queries int
}

func (c *countingEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func (c *countingEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	c.queries++
	return []float32{float32(len(text))}, nil
}

func TestCachedEmbedder_HitsCache(t *testing.T) {
	inner := &countingEmbedder{}
	emb, err := NewCachedEmbedder(inner, 8)
	require.NoError(t, err)

	v1, err := emb.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	v1[0] = 99 // caller mutation must not poison the cache
	v2, err := emb.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.queries)
	assert.Equal(t, float32(5), v2[0])
}

func TestCachedEmbedder_ZeroSizePassesThrough(t *testing.T) {
	inner := &countingEmbedder{}
	emb, err := NewCachedEmbedder(inner, 0)
	require.NoError(t, err)
	assert.Same(t, Embedder(inner), emb)
}

// #endregion embedder-tests

// #region retry-tests

type flakyStore struct {
	Store
	failures int
	calls    int
}

func (f *flakyStore) SearchWithScore(ctx context.Context, q string, k int, th float64) ([]Scored, error) {
	f.calls++
	if q == "" {
		return nil, ErrEmptyQuery
	}
	if f.calls <= f.failures {
		return nil, errors.New("timeout")
	}
	return []Scored{{Passage: Passage{ID: "x"}, Score: 0.9}}, nil
}

func TestWithRetry_SearchRecovers(t *testing.T) {
	f := &flakyStore{failures: 2}
	s := WithRetry(f, backoff.Policy{Attempts: 3, Min: time.Millisecond, Max: time.Millisecond}, logger.Nop())

	hits, err := s.SearchWithScore(context.Background(), "q", 5, 0.5)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
	assert.Equal(t, 3, f.calls)
}

func TestWithRetry_EmptyQueryNotRetried(t *testing.T) {
	f := &flakyStore{}
	s := WithRetry(f, backoff.Policy{Attempts: 3, Min: time.Millisecond, Max: time.Millisecond}, logger.Nop())

	_, err := s.SearchWithScore(context.Background(), "", 5, 0.5)
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Equal(t, 1, f.calls)
}

// #endregion retry-tests

// #region weaviate-parse-tests

func TestParseSearchResponse(t *testing.T) {
	resp := &models.GraphQLResponse{Data: map[string]models.JSONObject{
		"Get": map[string]interface{}{
			"DocumentChunk": []interface{}{
				map[string]interface{}{
					"text":     "Alice leads the platform team.",
					"source":   "team.pdf",
					"page":     2.0,
					"metadata": `{"file_type":"pdf"}`,
					"_additional": map[string]interface{}{
						"id":        "5b6f1f9e-0000-5000-8000-000000000001",
						"certainty": 0.88,
					},
				},
			},
		},
	}}

	hits, err := parseSearchResponse(resp, "DocumentChunk")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 0.88, hits[0].Score)
	assert.Equal(t, 2, hits[0].Passage.Page)
	assert.Equal(t, "pdf", hits[0].Passage.Metadata["file_type"])
}

func TestParseSearchResponse_GraphQLError(t *testing.T) {
	resp := &models.GraphQLResponse{Errors: []*models.GraphQLError{{Message: "class not found"}}}
	_, err := parseSearchResponse(resp, "DocumentChunk")
	assert.ErrorContains(t, err, "class not found")
}

func TestParseCountResponse(t *testing.T) {
	resp := &models.GraphQLResponse{Data: map[string]models.JSONObject{
		"Aggregate": map[string]interface{}{
			"DocumentChunk": []interface{}{
				map[string]interface{}{"meta": map[string]interface{}{"count": 42}},
			},
		},
	}}
	n, err := parseCountResponse(resp, "DocumentChunk")
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

// #endregion weaviate-parse-tests
