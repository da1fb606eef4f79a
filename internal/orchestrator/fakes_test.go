package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/danielpatrickdp/agentic-rag/internal/gate"
	"github.com/danielpatrickdp/agentic-rag/internal/guard"
	"github.com/danielpatrickdp/agentic-rag/internal/index"
	"github.com/danielpatrickdp/agentic-rag/internal/logger"
	"github.com/danielpatrickdp/agentic-rag/internal/logging"
	"github.com/danielpatrickdp/agentic-rag/internal/websearch"
)

// #region scripted-llm

// prompt kinds, keyed by the fixed opening of each prompt
const (
	kindClassify  = "classify"
	kindRelevance = "relevance"
	kindGrounding = "grounding"
	kindSynthesis = "synthesis"
	kindKnowledge = "knowledge"
	kindSearch    = "search"
)

var promptPrefixes = map[string]string{
	"Analyze the following query":                kindClassify,
	"You are a relevance evaluator":              kindRelevance,
	"You are a factual grounding evaluator":      kindGrounding,
	"Based on the following document excerpts":   kindSynthesis,
	"You are a helpful AI assistant":             kindKnowledge,
	"Based on the following search results":      kindSearch,
}

type reply struct {
	text string
	err  error
}

type scriptLLM struct {
	mu      sync.Mutex
	replies map[string]reply
	calls   map[string]int
	prompts map[string]string
}

func newScriptLLM(replies map[string]reply) *scriptLLM {
	return &scriptLLM{replies: replies, calls: map[string]int{}, prompts: map[string]string{}}
}

func (s *scriptLLM) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	kind := "unknown"
	for prefix, k := range promptPrefixes {
		if strings.HasPrefix(prompt, prefix) {
			kind = k
			break
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[kind]++
	s.prompts[kind] = prompt
	r, ok := s.replies[kind]
	if !ok {
		return "", errors.New("no scripted reply for " + kind)
	}
	return r.text, r.err
}

func (s *scriptLLM) count(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[kind]
}

// #endregion

// #region fake-index

type fakeIndex struct {
	mu       sync.Mutex
	hits     []index.Scored
	err      error
	count    int
	countErr error
	searches int
	counts   int
}

func (f *fakeIndex) SearchWithScore(_ context.Context, _ string, _ int, _ float64) ([]index.Scored, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	return f.hits, f.err
}

func (f *fakeIndex) Count(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts++
	return f.count, f.countErr
}

func passage(src string, page int, text string, score float64) index.Scored {
	return index.Scored{Passage: index.Passage{ID: src + text, Text: text, Source: src, Page: page}, Score: score}
}

// #endregion

// #region fake-searcher

type fakeSearcher struct {
	results []websearch.Result
	err     error
	calls   int
}

func (f *fakeSearcher) Search(context.Context, string) ([]websearch.Result, error) {
	f.calls++
	return f.results, f.err
}

// #endregion

// #region sinks

type memorySink struct {
	mu   sync.Mutex
	recs []logging.QueryRecord
}

func (m *memorySink) Write(_ context.Context, rec logging.QueryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

type countingObserver struct {
	mu     sync.Mutex
	stages []string
	done   int
}

func (c *countingObserver) StageDone(stage string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stages = append(c.stages, stage)
}

func (c *countingObserver) QueryDone(logging.QueryRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done++
}

// #endregion

// #region harness

type harness struct {
	llm      *scriptLLM
	idx      *fakeIndex
	searcher *fakeSearcher
	sink     *memorySink
	observer *countingObserver
	orch     *Orchestrator
}

type harnessOpt func(*Deps)

func newHarness(llmReplies map[string]reply, idx *fakeIndex, searcher *fakeSearcher, opts ...harnessOpt) *harness {
	if idx == nil {
		idx = &fakeIndex{}
	}
	if searcher == nil {
		searcher = &fakeSearcher{}
	}
	h := &harness{
		llm:      newScriptLLM(llmReplies),
		idx:      idx,
		searcher: searcher,
		sink:     &memorySink{},
		observer: &countingObserver{},
	}
	log := logger.Nop()
	deps := Deps{
		Guard:       guard.New(guard.DefaultMaxLength, log),
		Classifier:  NewClassifier(h.llm, log),
		Router:      NewRouter(DefaultConfidenceThreshold),
		Gate:        gate.NewGate(gate.DefaultConfig(), h.llm, log),
		Synthesizer: NewSynthesizer(h.llm, log),
		Tools: map[Tool]Executor{
			ToolRetrieval: NewRetrievalTool(idx, 5, 0.7, log),
			ToolKnowledge: NewKnowledgeTool(h.llm, "test-model", log),
			ToolSearch:    NewSearchTool(searcher, h.llm, log),
		},
		Corpus:   idx,
		Sink:     h.sink,
		Observer: h.observer,
		Log:      log,
	}
	for _, o := range opts {
		o(&deps)
	}
	orch, err := New(deps)
	if err != nil {
		panic(err)
	}
	h.orch = orch
	return h
}

func classifyAs(intent string, conf string) reply {
	return reply{text: "Category: " + intent + "\nConfidence: " + conf}
}

// #endregion
