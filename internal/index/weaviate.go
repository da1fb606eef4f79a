package index

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// #region weaviate

// Weaviate stores passages with externally computed vectors and searches by nearVector.
// Scores are weaviate certainty, already in [0,1].
type Weaviate struct {
	client    *weaviate.Client
	className string
	embedder  Embedder
}

// WeaviateConfig locates the weaviate server.
type WeaviateConfig struct {
	Host      string
	Scheme    string
	ClassName string
}

// NewWeaviate connects to weaviate. Call EnsureSchema before first use.
func NewWeaviate(cfg WeaviateConfig, embedder Embedder) (*Weaviate, error) {
	client, err := weaviate.NewClient(weaviate.Config{Host: cfg.Host, Scheme: cfg.Scheme})
	if err != nil {
		return nil, fmt.Errorf("weaviate client: %w", err)
	}
	return &Weaviate{client: client, className: cfg.ClassName, embedder: embedder}, nil
}

// EnsureSchema creates the passage class if it does not exist.
func (w *Weaviate) EnsureSchema(ctx context.Context) error {
	if _, err := w.client.Schema().ClassGetter().WithClassName(w.className).Do(ctx); err == nil {
		return nil
	}
	class := &models.Class{
		Class:       w.className,
		Description: "Document chunks for retrieval",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "text", DataType: []string{"text"}, Tokenization: "word"},
			{Name: "source", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "page", DataType: []string{"int"}},
			{Name: "metadata", DataType: []string{"text"}, Tokenization: "field"},
		},
	}
	if err := w.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("create class %s: %w", w.className, err)
	}
	return nil
}

// SearchWithScore embeds the query and runs a nearVector search with a certainty floor.
func (w *Weaviate) SearchWithScore(ctx context.Context, query string, k int, threshold float64) ([]Scored, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	vec, err := w.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	near := w.client.GraphQL().NearVectorArgBuilder().
		WithVector(vec).
		WithCertainty(float32(threshold))

	resp, err := w.client.GraphQL().Get().
		WithClassName(w.className).
		WithFields(
			graphql.Field{Name: "text"},
			graphql.Field{Name: "source"},
			graphql.Field{Name: "page"},
			graphql.Field{Name: "metadata"},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "certainty"}}},
		).
		WithNearVector(near).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search: %w", err)
	}
	hits, err := parseSearchResponse(resp, w.className)
	if err != nil {
		return nil, err
	}
	return FilterAndRank(hits, k, threshold), nil
}

// Count aggregates the number of objects in the class.
func (w *Weaviate) Count(ctx context.Context) (int, error) {
	resp, err := w.client.GraphQL().Aggregate().
		WithClassName(w.className).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("weaviate count: %w", err)
	}
	return parseCountResponse(resp, w.className)
}

// Add embeds and batch-imports passages. Passage IDs must be UUIDs.
func (w *Weaviate) Add(ctx context.Context, passages []Passage) (int, error) {
	if len(passages) == 0 {
		return 0, nil
	}
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	vectors, err := w.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed passages: %w", err)
	}
	if len(vectors) != len(passages) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d passages", len(vectors), len(passages))
	}

	objects := make([]*models.Object, len(passages))
	for i, p := range passages {
		meta, _ := json.Marshal(p.Metadata)
		objects[i] = &models.Object{
			Class:  w.className,
			ID:     strfmt.UUID(p.ID),
			Vector: vectors[i],
			Properties: map[string]interface{}{
				"text":     p.Text,
				"source":   p.Source,
				"page":     p.Page,
				"metadata": string(meta),
			},
		}
	}

	resp, err := w.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("weaviate batch: %w", err)
	}
	stored := 0
	var firstErr string
	for _, item := range resp {
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			if firstErr == "" {
				firstErr = item.Result.Errors.Error[0].Message
			}
			continue
		}
		stored++
	}
	if firstErr != "" {
		return stored, fmt.Errorf("weaviate batch: %d of %d failed: %s", len(passages)-stored, len(passages), firstErr)
	}
	return stored, nil
}

// Close is a no-op; the weaviate client holds no persistent connection.
func (w *Weaviate) Close() error {
	return nil
}

// #endregion weaviate

// #region parsing

type weaviateHit struct {
	Text       string   `json:"text"`
	Source     string   `json:"source"`
	Page       *float64 `json:"page"`
	Metadata   string   `json:"metadata"`
	Additional struct {
		ID        string   `json:"id"`
		Certainty *float64 `json:"certainty"`
	} `json:"_additional"`
}

func graphQLError(resp *models.GraphQLResponse) error {
	if resp == nil {
		return fmt.Errorf("nil graphql response")
	}
	if len(resp.Errors) > 0 && resp.Errors[0] != nil {
		return fmt.Errorf("graphql: %s", resp.Errors[0].Message)
	}
	return nil
}

func parseSearchResponse(resp *models.GraphQLResponse, className string) ([]Scored, error) {
	if err := graphQLError(resp); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql data: %w", err)
	}
	var data struct {
		Get map[string][]weaviateHit `json:"Get"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode graphql data: %w", err)
	}

	rows := data.Get[className]
	out := make([]Scored, 0, len(rows))
	for _, r := range rows {
		p := Passage{ID: r.Additional.ID, Text: r.Text, Source: r.Source}
		if r.Page != nil {
			p.Page = int(*r.Page)
		}
		if r.Metadata != "" && r.Metadata != "null" {
			_ = json.Unmarshal([]byte(r.Metadata), &p.Metadata)
		}
		score := 0.0
		if r.Additional.Certainty != nil {
			score = *r.Additional.Certainty
		}
		out = append(out, Scored{Passage: p, Score: score})
	}
	return out, nil
}

func parseCountResponse(resp *models.GraphQLResponse, className string) (int, error) {
	if err := graphQLError(resp); err != nil {
		return 0, err
	}
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return 0, fmt.Errorf("marshal graphql data: %w", err)
	}
	var data struct {
		Aggregate map[string][]struct {
			Meta struct {
				Count int `json:"count"`
			} `json:"meta"`
		} `json:"Aggregate"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return 0, fmt.Errorf("decode aggregate: %w", err)
	}
	rows := data.Aggregate[className]
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Meta.Count, nil
}

// #endregion parsing
