package app

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/agentic-rag/internal/config"
	"github.com/danielpatrickdp/agentic-rag/internal/logger"
	"github.com/danielpatrickdp/agentic-rag/internal/logging"
	"github.com/danielpatrickdp/agentic-rag/internal/orchestrator"
	"github.com/danielpatrickdp/agentic-rag/internal/replay"
	"github.com/danielpatrickdp/agentic-rag/internal/websearch"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.QueryLog.Dir = t.TempDir()
	cfg.Index.Path = "" // in-memory bleve
	cfg.Retrieval.SimilarityThreshold = 0.1
	return cfg
}

func build(t *testing.T, cfg *config.Config, replies map[string]string) *App {
	t.Helper()
	a, err := Build(context.Background(), cfg, logger.Nop(), Backends{
		Completer: replay.NewScriptedCompleter(replies, nil),
		Searcher:  &replay.ScriptedSearcher{Results: []websearch.Result{{Title: "t", Snippet: "s", URL: "https://example.org"}}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })
	return a
}

func TestBuild_EndToEndOverLocalIndex(t *testing.T) {
	cfg := testConfig(t)
	a := build(t, cfg, map[string]string{
		replay.KindClassify:  "Category: document\nConfidence: 0.9",
		replay.KindRelevance: "0.9",
		replay.KindSynthesis: "The warranty lasts two years (manual.txt).",
		replay.KindGrounding: "0.9",
	})

	res := a.Ingester.IngestBytes(context.Background(), "manual.txt", []byte("The warranty lasts two years from the date of purchase."))
	require.Empty(t, res.Error)
	require.Positive(t, res.Passages)

	st := a.Orchestrator.Handle(context.Background(), "How long does the warranty last?")
	assert.Equal(t, orchestrator.SourceRetrieval, st.AnswerSource, st.Error)
	assert.Equal(t, orchestrator.ToolRetrieval, st.SelectedTool)
	assert.Positive(t, st.CorpusSize)
	require.NotEmpty(t, st.Citations)
	assert.Equal(t, "manual.txt", st.Citations[0].Label)

	recs, err := logging.ReadJSONLFile(cfg.QueryLogPath())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, st.RequestID, recs[0].RequestID)

	require.NotNil(t, a.Store)
	got, err := a.Store.Get(st.RequestID)
	require.NoError(t, err)
	assert.Equal(t, "retrieval", got.AnswerSource)

	n, err := testutil.GatherAndCount(a.Registry, "agentic_rag_queries_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBuild_DBDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.QueryLog.EnableDB = false
	a := build(t, cfg, map[string]string{
		replay.KindClassify:  "Category: knowledge\nConfidence: 0.9",
		replay.KindKnowledge: "Forty-two.",
	})
	assert.Nil(t, a.Store)

	st := a.Orchestrator.Handle(context.Background(), "What is the answer?")
	assert.Equal(t, orchestrator.SourceKnowledge, st.AnswerSource)
}

func TestBuild_UnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Search.Provider = "bing"
	_, err := Build(context.Background(), cfg, logger.Nop(), Backends{
		Completer: replay.NewScriptedCompleter(nil, nil),
	})
	assert.ErrorContains(t, err, "bing")
}

func TestEvalConfig(t *testing.T) {
	a := &App{Config: config.Default()}
	ec := a.EvalConfig()
	assert.Equal(t, 0.2, ec.MaxErrorRate)
	assert.Equal(t, 5, ec.MinQueries)
}

func TestOpenIngester_NeedsNoLLM(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = ""

	in, closeIndex, err := OpenIngester(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	defer closeIndex()

	res := in.IngestBytes(context.Background(), "notes.md", []byte("# Notes\n\nSome indexed text."))
	assert.Empty(t, res.Error)
	assert.Positive(t, res.Passages)
}

func TestBuild_SidecarClosedOnce(t *testing.T) {
	cfg := testConfig(t)
	cfg.Codec.Addr = "127.0.0.1:1"
	cfg.LLM.Provider = "codec"
	cfg.Index.Backend = "codec"
	cfg.Search.Provider = "codec"

	a, err := Build(context.Background(), cfg, logger.Nop(), Backends{})
	require.NoError(t, err)
	assert.NoError(t, a.Close(context.Background()))

	_, closeIndex, err := OpenIngester(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	assert.NoError(t, closeIndex())
}

func TestOpenIngester_UnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Index.Backend = "faiss"
	_, _, err := OpenIngester(context.Background(), cfg, logger.Nop())
	assert.ErrorContains(t, err, "faiss")
}
