// Package index defines the vector index contract the retrieval tool consumes and
// the backends that implement it.
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	charmlog "github.com/charmbracelet/log"

	"github.com/danielpatrickdp/agentic-rag/internal/backoff"
)

// #region types

// Passage is one indexed chunk of a source document.
type Passage struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Source   string            `json:"source"`
	Page     int               `json:"page,omitempty"` // 1-based; 0 when the source has no pages
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Locator is the page number, or "n/a" for unpaged sources.
func (p Passage) Locator() string {
	if p.Page <= 0 {
		return "n/a"
	}
	return strconv.Itoa(p.Page)
}

// Scored is a search hit. Score is a similarity in [0,1], higher is closer.
type Scored struct {
	Passage Passage `json:"passage"`
	Score   float64 `json:"score"`
}

// ErrEmptyQuery is returned for blank search text.
var ErrEmptyQuery = errors.New("empty search query")

// #endregion types

// #region interfaces

// VectorIndex is the read side used by the pipeline.
type VectorIndex interface {
	// SearchWithScore returns at most k hits with Score >= threshold, best first.
	SearchWithScore(ctx context.Context, query string, k int, threshold float64) ([]Scored, error)
	// Count returns the number of indexed passages.
	Count(ctx context.Context) (int, error)
}

// Writer is the ingestion side.
type Writer interface {
	// Add upserts passages and returns how many were stored.
	Add(ctx context.Context, passages []Passage) (int, error)
}

// Store is a full backend: searchable, writable, closable.
type Store interface {
	VectorIndex
	Writer
	Close() error
}

// #endregion interfaces

// #region filter

// FilterAndRank drops hits below threshold, sorts best first and keeps at most k.
func FilterAndRank(hits []Scored, k int, threshold float64) []Scored {
	out := make([]Scored, 0, len(hits))
	for _, h := range hits {
		if h.Score >= threshold {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// #endregion filter

// #region retry

type retrying struct {
	Store
	policy backoff.Policy
	log    *charmlog.Logger
}

// WithRetry wraps s so searches and counts are retried under policy.
// Writes are not retried; ingestion reports its own failures.
func WithRetry(s Store, policy backoff.Policy, log *charmlog.Logger) Store {
	return &retrying{Store: s, policy: policy, log: log}
}

func (r *retrying) SearchWithScore(ctx context.Context, query string, k int, threshold float64) ([]Scored, error) {
	hits, err := backoff.Value(ctx, r.policy, "index.search", r.log, func(ctx context.Context) ([]Scored, error) {
		hits, err := r.Store.SearchWithScore(ctx, query, k, threshold)
		if errors.Is(err, ErrEmptyQuery) {
			return nil, backoff.Permanent(err)
		}
		return hits, err
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return hits, nil
}

func (r *retrying) Count(ctx context.Context) (int, error) {
	n, err := backoff.Value(ctx, r.policy, "index.count", r.log, r.Store.Count)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// #endregion retry
