package orchestrator

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"strings"

	charmlog "github.com/charmbracelet/log"

	"github.com/danielpatrickdp/agentic-rag/internal/errs"
	"github.com/danielpatrickdp/agentic-rag/internal/index"
	"github.com/danielpatrickdp/agentic-rag/internal/llm"
	"github.com/danielpatrickdp/agentic-rag/internal/logger"
	"github.com/danielpatrickdp/agentic-rag/internal/websearch"
)

// #endregion

// #region executor

// Executor runs one answer strategy. Failures come back in the result, never as panics
// or errors past the orchestrator.
type Executor interface {
	Execute(ctx context.Context, query string, st *RequestState) ToolResult
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, query string, st *RequestState) ToolResult

func (f ExecutorFunc) Execute(ctx context.Context, query string, st *RequestState) ToolResult {
	return f(ctx, query, st)
}

var (
	ErrNoPassages = errors.New("no passages above similarity threshold")
	ErrNoResults  = errors.New("web search returned no results")
)

func failed(tool Tool, err error) ToolResult {
	return ToolResult{Success: false, Err: errs.NewToolExecution(string(tool), err)}
}

// #endregion

// #region retrieval

const previewLength = 200

// RetrievalTool searches the vector index.
type RetrievalTool struct {
	index     index.VectorIndex
	topK      int
	threshold float64
	log       *charmlog.Logger
}

// NewRetrievalTool creates the document retrieval executor.
func NewRetrievalTool(idx index.VectorIndex, topK int, threshold float64, log *charmlog.Logger) *RetrievalTool {
	if topK <= 0 {
		topK = 5
	}
	return &RetrievalTool{index: idx, topK: topK, threshold: threshold, log: logger.Component(log, "retrieval")}
}

// Execute returns one evidence item and one citation per passage scoring at or
// above the similarity threshold. Success requires at least one passage.
func (t *RetrievalTool) Execute(ctx context.Context, query string, _ *RequestState) ToolResult {
	hits, err := t.index.SearchWithScore(ctx, query, t.topK, t.threshold)
	if err != nil {
		t.log.Warn("index search failed", "err", err)
		return failed(ToolRetrieval, err)
	}
	// backends may not honour the threshold
	hits = index.FilterAndRank(hits, t.topK, t.threshold)
	if len(hits) == 0 {
		t.log.Info("no passages", "threshold", t.threshold)
		return failed(ToolRetrieval, ErrNoPassages)
	}

	res := ToolResult{Success: true}
	for _, h := range hits {
		score := h.Score
		res.Evidence = append(res.Evidence, EvidenceItem{
			Text:          h.Passage.Text,
			OriginID:      h.Passage.Source,
			Locator:       h.Passage.Locator(),
			RelevanceHint: h.Score,
		})
		res.Citations = append(res.Citations, Citation{
			Kind:    CitationDocument,
			Label:   h.Passage.Source,
			Locator: h.Passage.Locator(),
			Preview: truncateRunes(h.Passage.Text, previewLength),
			Score:   &score,
		})
	}
	t.log.Debug("retrieved", "passages", len(hits))
	return res
}

// #endregion

// #region knowledge

const knowledgePrompt = `You are a helpful AI assistant. Answer the following question using your knowledge. Be concise and accurate.

Question: %s

Answer:`

const knowledgeNote = "Response based on model training data"

// KnowledgeTool answers from the model alone.
type KnowledgeTool struct {
	llm   llm.Completer
	model string
	log   *charmlog.Logger
}

// NewKnowledgeTool creates the knowledge executor. model labels its citation.
func NewKnowledgeTool(c llm.Completer, model string, log *charmlog.Logger) *KnowledgeTool {
	if model == "" {
		model = "language model"
	}
	return &KnowledgeTool{llm: c, model: model, log: logger.Component(log, "knowledge")}
}

// Execute issues one completion with no external context.
func (t *KnowledgeTool) Execute(ctx context.Context, query string, _ *RequestState) ToolResult {
	out, err := t.llm.Complete(ctx, fmt.Sprintf(knowledgePrompt, query))
	if err != nil {
		t.log.Warn("knowledge completion failed", "err", err)
		return failed(ToolKnowledge, err)
	}
	return ToolResult{
		Success: true,
		Answer:  strings.TrimSpace(out),
		Citations: []Citation{{
			Kind:    CitationModelKnowledge,
			Label:   t.model,
			Preview: knowledgeNote,
		}},
	}
}

// #endregion

// #region search

const searchPrompt = `Based on the following search results, answer the user's question.

Question: %s

Search Results:
%s

Provide a concise, accurate answer:`

// SearchTool answers from live web results.
type SearchTool struct {
	searcher websearch.Searcher
	llm      llm.Completer
	log      *charmlog.Logger
}

// NewSearchTool creates the web search executor.
func NewSearchTool(s websearch.Searcher, c llm.Completer, log *charmlog.Logger) *SearchTool {
	return &SearchTool{searcher: s, llm: c, log: logger.Component(log, "search")}
}

// Execute searches, then completes over the "title: snippet" context. Both the
// search and the completion must succeed.
func (t *SearchTool) Execute(ctx context.Context, query string, _ *RequestState) ToolResult {
	results, err := t.searcher.Search(ctx, query)
	if err != nil {
		t.log.Warn("web search failed", "err", err)
		return failed(ToolSearch, err)
	}
	if len(results) == 0 {
		return failed(ToolSearch, ErrNoResults)
	}

	out, err := t.llm.Complete(ctx, fmt.Sprintf(searchPrompt, query, websearch.FormatAsContext(results)))
	if err != nil {
		t.log.Warn("search completion failed", "err", err)
		return failed(ToolSearch, err)
	}

	res := ToolResult{Success: true, Answer: strings.TrimSpace(out)}
	for _, r := range results {
		res.Evidence = append(res.Evidence, EvidenceItem{
			Text:     r.Snippet,
			OriginID: r.URL,
			Locator:  "n/a",
		})
		res.Citations = append(res.Citations, Citation{
			Kind:    CitationWeb,
			Label:   r.Title,
			Locator: r.URL,
			Preview: r.Snippet,
		})
	}
	return res
}

// #endregion

// #region helpers

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// #endregion
