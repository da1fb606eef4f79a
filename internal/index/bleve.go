package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// #region bleve

// Bleve is a local lexical index for running without a vector database.
// Raw scores are unbounded; they are mapped to [0,1) with s/(1+s).
type Bleve struct {
	idx bleve.Index
}

type bleveDoc struct {
	Text     string            `json:"text"`
	Source   string            `json:"source"`
	Page     float64           `json:"page"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func bleveMapping() mapping.IndexMapping {
	m := bleve.NewIndexMapping()
	m.DefaultAnalyzer = "standard"
	return m
}

// OpenBleve opens or creates an index at path. An empty path gives an in-memory index.
func OpenBleve(path string) (*Bleve, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(bleveMapping())
		if err != nil {
			return nil, fmt.Errorf("bleve mem index: %w", err)
		}
		return &Bleve{idx: idx}, nil
	}
	if _, err := os.Stat(path); err == nil {
		idx, err := bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open bleve index %s: %w", path, err)
		}
		return &Bleve{idx: idx}, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat bleve index %s: %w", path, err)
	}
	idx, err := bleve.New(path, bleveMapping())
	if err != nil {
		return nil, fmt.Errorf("create bleve index %s: %w", path, err)
	}
	return &Bleve{idx: idx}, nil
}

// SearchWithScore runs a match query over passage text.
func (b *Bleve) SearchWithScore(ctx context.Context, query string, k int, threshold float64) ([]Scored, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	q := bleve.NewMatchQuery(query)
	q.SetField("text")
	req := bleve.NewSearchRequestOptions(q, k, 0, false)
	req.Fields = []string{"text", "source", "page"}

	res, err := b.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}

	hits := make([]Scored, 0, len(res.Hits))
	for _, h := range res.Hits {
		p := Passage{ID: h.ID}
		if v, ok := h.Fields["text"].(string); ok {
			p.Text = v
		}
		if v, ok := h.Fields["source"].(string); ok {
			p.Source = v
		}
		if v, ok := h.Fields["page"].(float64); ok {
			p.Page = int(v)
		}
		hits = append(hits, Scored{Passage: p, Score: normalizeScore(h.Score)})
	}
	return FilterAndRank(hits, k, threshold), nil
}

// Count returns the number of indexed passages.
func (b *Bleve) Count(_ context.Context) (int, error) {
	n, err := b.idx.DocCount()
	if err != nil {
		return 0, fmt.Errorf("bleve count: %w", err)
	}
	return int(n), nil
}

// Add indexes passages in one batch. Existing IDs are overwritten.
func (b *Bleve) Add(ctx context.Context, passages []Passage) (int, error) {
	if len(passages) == 0 {
		return 0, nil
	}
	batch := b.idx.NewBatch()
	for _, p := range passages {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := batch.Index(p.ID, bleveDoc{
			Text:     p.Text,
			Source:   p.Source,
			Page:     float64(p.Page),
			Metadata: p.Metadata,
		}); err != nil {
			return 0, fmt.Errorf("bleve batch %s: %w", p.ID, err)
		}
	}
	if err := b.idx.Batch(batch); err != nil {
		return 0, fmt.Errorf("bleve batch: %w", err)
	}
	return len(passages), nil
}

// Close releases the index.
func (b *Bleve) Close() error {
	return b.idx.Close()
}

func normalizeScore(s float64) float64 {
	if s <= 0 {
		return 0
	}
	return s / (1 + s)
}

// #endregion bleve
