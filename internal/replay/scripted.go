package replay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/danielpatrickdp/agentic-rag/internal/index"
	"github.com/danielpatrickdp/agentic-rag/internal/websearch"
)

// #region prompt-kinds

// Prompt kinds, keyed by the fixed opening of each pipeline prompt.
const (
	KindClassify  = "classify"
	KindRelevance = "relevance"
	KindGrounding = "grounding"
	KindSynthesis = "synthesis"
	KindKnowledge = "knowledge"
	KindSearch    = "search"
	KindUnknown   = "unknown"
)

var promptOpenings = []struct{ prefix, kind string }{
	{"Analyze the following query", KindClassify},
	{"You are a relevance evaluator", KindRelevance},
	{"You are a factual grounding evaluator", KindGrounding},
	{"Based on the following document excerpts", KindSynthesis},
	{"You are a helpful AI assistant", KindKnowledge},
	{"Based on the following search results", KindSearch},
}

// PromptKind names which pipeline stage produced prompt.
func PromptKind(prompt string) string {
	for _, p := range promptOpenings {
		if strings.HasPrefix(prompt, p.prefix) {
			return p.kind
		}
	}
	return KindUnknown
}

// #endregion prompt-kinds

// #region scripted-completer

// ErrScripted is returned by scripted backends told to fail.
var ErrScripted = errors.New("scripted failure")

// ScriptedCompleter answers each prompt with the reply scripted for its kind.
type ScriptedCompleter struct {
	mu       sync.Mutex
	replies  map[string]string
	failures map[string]bool
	calls    map[string]int
}

// NewScriptedCompleter builds a completer from replies and failing kinds.
func NewScriptedCompleter(replies map[string]string, failures []string) *ScriptedCompleter {
	s := &ScriptedCompleter{
		replies:  replies,
		failures: map[string]bool{},
		calls:    map[string]int{},
	}
	for _, k := range failures {
		s.failures[k] = true
	}
	return s
}

func (s *ScriptedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	kind := PromptKind(prompt)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[kind]++
	if s.failures[kind] {
		return "", fmt.Errorf("%s: %w", kind, ErrScripted)
	}
	r, ok := s.replies[kind]
	if !ok {
		return "", fmt.Errorf("no reply scripted for %s: %w", kind, ErrScripted)
	}
	return r, nil
}

// Calls returns how many prompts of kind were answered.
func (s *ScriptedCompleter) Calls(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[kind]
}

// #endregion scripted-completer

// #region scripted-index

// ScriptedIndex returns fixed hits and a fixed corpus size.
type ScriptedIndex struct {
	Hits []index.Scored
	Size int
	Err  error
}

// SearchWithScore applies the same threshold and k a real backend would.
func (s *ScriptedIndex) SearchWithScore(ctx context.Context, query string, k int, threshold float64) ([]index.Scored, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if strings.TrimSpace(query) == "" {
		return nil, index.ErrEmptyQuery
	}
	return index.FilterAndRank(s.Hits, k, threshold), nil
}

func (s *ScriptedIndex) Count(context.Context) (int, error) {
	return s.Size, nil
}

// #endregion scripted-index

// #region scripted-searcher

// ScriptedSearcher returns fixed web results.
type ScriptedSearcher struct {
	Results []websearch.Result
	Err     error
}

func (s *ScriptedSearcher) Search(ctx context.Context, _ string) ([]websearch.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Results, s.Err
}

// #endregion scripted-searcher
