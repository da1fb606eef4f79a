package websearch

import (
	"context"
	"fmt"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"

	"github.com/danielpatrickdp/agentic-rag/internal/backoff"
)

// #region types

// Result holds a single search result.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// Config holds web search parameters.
type Config struct {
	APIKey     string
	Endpoint   string
	MaxResults int
	Timeout    time.Duration
	RatePerSec float64
}

// Searcher runs a web search and returns organic results, best first.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// #endregion types

// #region config

// DefaultConfig returns default web search configuration: Serper, top 5 results.
func DefaultConfig() Config {
	return Config{
		Endpoint:   "https://google.serper.dev/search",
		MaxResults: 5,
		Timeout:    10 * time.Second,
		RatePerSec: 5,
	}
}

// #endregion config

// #region format

// FormatAsContext joins results as "title: snippet" blocks separated by blank lines,
// the grounding context handed to the model.
func FormatAsContext(results []Result) string {
	if len(results) == 0 {
		return ""
	}
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("%s: %s", r.Title, r.Snippet)
	}
	return strings.Join(parts, "\n\n")
}

// FormatAsEvidence renders results as a numbered list with source URLs, for display.
func FormatAsEvidence(results []Result) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("[Web Search Results]\n")
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r.Title)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", r.Snippet)
		}
		if r.URL != "" {
			fmt.Fprintf(&b, "   Source: %s\n", r.URL)
		}
	}
	return b.String()
}

// #endregion format

// #region retry

type retrying struct {
	inner  Searcher
	policy backoff.Policy
	log    *charmlog.Logger
}

// WithRetry wraps s so each search is retried under policy.
func WithRetry(s Searcher, policy backoff.Policy, log *charmlog.Logger) Searcher {
	return &retrying{inner: s, policy: policy, log: log}
}

func (r *retrying) Search(ctx context.Context, query string) ([]Result, error) {
	res, err := backoff.Value(ctx, r.policy, "websearch", r.log, func(ctx context.Context) ([]Result, error) {
		return r.inner.Search(ctx, query)
	})
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	return res, nil
}

// #endregion retry
