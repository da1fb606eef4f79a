// Package app wires configuration into a running pipeline: backends, sinks,
// metrics and tracing.
package app

import (
	"context"
	"errors"
	"fmt"

	charmlog "github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/danielpatrickdp/agentic-rag/internal/backoff"
	"github.com/danielpatrickdp/agentic-rag/internal/codec"
	"github.com/danielpatrickdp/agentic-rag/internal/config"
	"github.com/danielpatrickdp/agentic-rag/internal/eval"
	"github.com/danielpatrickdp/agentic-rag/internal/gate"
	"github.com/danielpatrickdp/agentic-rag/internal/guard"
	"github.com/danielpatrickdp/agentic-rag/internal/index"
	"github.com/danielpatrickdp/agentic-rag/internal/ingest"
	"github.com/danielpatrickdp/agentic-rag/internal/llm"
	"github.com/danielpatrickdp/agentic-rag/internal/logger"
	"github.com/danielpatrickdp/agentic-rag/internal/logging"
	"github.com/danielpatrickdp/agentic-rag/internal/observability"
	"github.com/danielpatrickdp/agentic-rag/internal/orchestrator"
	"github.com/danielpatrickdp/agentic-rag/internal/store"
	"github.com/danielpatrickdp/agentic-rag/internal/telemetry"
	"github.com/danielpatrickdp/agentic-rag/internal/websearch"
)

// Version is reported to tracing and MCP clients.
var Version = "dev"

// #region app

// App holds everything a command needs. Close releases it.
type App struct {
	Config       *config.Config
	Log          *charmlog.Logger
	Orchestrator *orchestrator.Orchestrator
	Index        index.Store
	Ingester     *ingest.Ingester
	Store        *store.Store // nil when the SQLite log is disabled
	Registry     *prometheus.Registry
	Metrics      *observability.Metrics

	closers  []func() error
	shutdown telemetry.Shutdown
}

// Backends overrides the configured providers. Nil fields are built from config.
type Backends struct {
	Completer llm.Completer
	Judge     llm.Completer
	Index     index.Store
	Searcher  websearch.Searcher
}

// NewLogger builds the diagnostic logger from cfg and installs it as default.
func NewLogger(cfg *config.Config) *charmlog.Logger {
	lc := logger.DefaultConfig()
	lc.Level = cfg.Log.Level
	lc.JSON = cfg.Log.JSON
	l := logger.New(lc)
	logger.SetDefault(l)
	return l
}

// Build wires cfg into an App. Backends in over replace their configured
// counterpart, mainly for tests.
func Build(ctx context.Context, cfg *config.Config, log *charmlog.Logger, over Backends) (*App, error) {
	a := &App{Config: cfg, Log: logger.Component(log, "app")}
	ready := false
	defer func() {
		if !ready {
			a.Close(context.WithoutCancel(ctx))
		}
	}()

	var err error
	a.shutdown, err = telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: Version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Insecure:       cfg.Telemetry.Insecure,
	})
	if err != nil {
		return nil, err
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = observability.New(a.Registry)

	policy := retryPolicy(cfg)
	sidecar := lazySidecar(cfg, &a.closers)

	completer, judge := over.Completer, over.Judge
	if completer == nil {
		if completer, err = newCompleter(cfg.LLM, cfg.LLM.Temperature, sidecar); err != nil {
			return nil, err
		}
		completer = llm.WithRetry(completer, policy, log)
	}
	if judge == nil {
		if over.Completer != nil {
			judge = over.Completer
		} else {
			// classifier and gates score at temperature 0
			if judge, err = newCompleter(cfg.LLM, 0, sidecar); err != nil {
				return nil, err
			}
			judge = llm.WithRetry(judge, policy, log)
		}
	}

	idx := over.Index
	if idx == nil {
		var closeIndex func() error
		if idx, closeIndex, err = newIndex(ctx, cfg, sidecar); err != nil {
			return nil, err
		}
		if closeIndex != nil {
			a.closers = append(a.closers, closeIndex)
		}
		idx = index.WithRetry(idx, policy, log)
	}
	a.Index = idx

	searcher := over.Searcher
	if searcher == nil {
		if searcher, err = newSearcher(cfg, sidecar); err != nil {
			return nil, err
		}
		searcher = websearch.WithRetry(searcher, policy, log)
	}

	sink, err := a.openSinks(cfg)
	if err != nil {
		return nil, err
	}

	a.Ingester, err = ingest.New(idx, IngestConfig(cfg), a.Metrics, log)
	if err != nil {
		return nil, err
	}

	a.Orchestrator, err = orchestrator.New(orchestrator.Deps{
		Guard:      guard.New(cfg.Guardrails.MaxQueryLength, log),
		Classifier: orchestrator.NewClassifier(judge, log),
		Router:     orchestrator.NewRouter(cfg.Routing.ConfidenceThreshold),
		Gate: gate.NewGate(gate.Config{
			RelevanceThreshold:     cfg.Guardrails.RelevanceThreshold,
			HallucinationThreshold: cfg.Guardrails.HallucinationThreshold,
		}, judge, log),
		Synthesizer: orchestrator.NewSynthesizer(completer, log),
		Tools: map[orchestrator.Tool]orchestrator.Executor{
			orchestrator.ToolRetrieval: orchestrator.NewRetrievalTool(idx, cfg.Retrieval.TopK, cfg.Retrieval.SimilarityThreshold, log),
			orchestrator.ToolKnowledge: orchestrator.NewKnowledgeTool(completer, cfg.LLM.Model, log),
			orchestrator.ToolSearch:    orchestrator.NewSearchTool(searcher, completer, log),
		},
		Corpus:   idx,
		Sink:     sink,
		Observer: a.Metrics,
		Log:      log,
		MaxSteps: cfg.Routing.MaxSteps,
	})
	if err != nil {
		return nil, err
	}

	a.Log.Info("pipeline ready",
		"llm", cfg.LLM.Provider, "model", cfg.LLM.Model,
		"index", cfg.Index.Backend, "search", cfg.Search.Provider,
		"query_log", cfg.QueryLogPath(), "query_db", cfg.QueryDBPath())
	ready = true
	return a, nil
}

// EvalConfig converts the configured health thresholds.
func (a *App) EvalConfig() eval.EvalConfig {
	return eval.EvalConfig{
		MaxErrorRate:       a.Config.Eval.MaxErrorRate,
		MinAvgGroundedness: a.Config.Eval.MinAvgGroundedness,
		MinQueries:         a.Config.Eval.MinQueries,
	}
}

// Close releases backends and flushes tracing, in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(ctx))
		a.shutdown = nil
	}
	return errors.Join(errs...)
}

// OpenIngester opens only the configured index and an ingester over it, for
// loading documents without the query pipeline. The returned func closes the
// index.
func OpenIngester(ctx context.Context, cfg *config.Config, log *charmlog.Logger) (*ingest.Ingester, func() error, error) {
	var closers []func() error
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	idx, closeIndex, err := newIndex(ctx, cfg, lazySidecar(cfg, &closers))
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	if closeIndex != nil {
		closers = append(closers, closeIndex)
	}

	in, err := ingest.New(index.WithRetry(idx, retryPolicy(cfg), log), IngestConfig(cfg), nil, log)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return in, closeAll, nil
}

// #endregion app

// #region sinks

func (a *App) openSinks(cfg *config.Config) (logging.Sink, error) {
	jsonl, err := logging.OpenJSONL(cfg.QueryLogPath())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, jsonl.Close)
	sinks := logging.MultiSink{jsonl}

	if path := cfg.QueryDBPath(); path != "" {
		st, err := store.NewStore(path)
		if err != nil {
			return nil, fmt.Errorf("open query db: %w", err)
		}
		a.closers = append(a.closers, st.Close)
		a.Store = st
		sinks = append(sinks, logging.NewSQLiteSink(st.DB()))
	}
	return sinks, nil
}

// #endregion sinks

// #region providers

// lazySidecar dials the codec sidecar on first use and registers its Close.
func lazySidecar(cfg *config.Config, closers *[]func() error) func() (*codec.Client, error) {
	var side *codec.Client
	return func() (*codec.Client, error) {
		if side != nil {
			return side, nil
		}
		c, err := codec.NewClient(cfg.Codec.Addr, cfg.Search.MaxResults)
		if err != nil {
			return nil, err
		}
		side = c
		*closers = append(*closers, c.Close)
		return c, nil
	}
}

// IngestConfig converts the configured chunking settings.
func IngestConfig(cfg *config.Config) ingest.Config {
	return ingest.Config{
		ChunkSize:    cfg.Ingest.ChunkSize,
		ChunkOverlap: cfg.Ingest.ChunkOverlap,
		Workers:      cfg.Ingest.Workers,
	}
}

func retryPolicy(cfg *config.Config) backoff.Policy {
	return backoff.Policy{
		Attempts:   cfg.Retry.Attempts,
		Min:        cfg.Retry.MinDelay,
		Max:        cfg.Retry.MaxDelay,
		PerAttempt: cfg.LLM.Timeout,
	}
}

func newCompleter(c config.LLMConfig, temperature float64, sidecar func() (*codec.Client, error)) (llm.Completer, error) {
	switch c.Provider {
	case "groq":
		return llm.NewLangChain(llm.LangChainConfig{
			APIKey:      c.APIKey,
			Model:       c.Model,
			BaseURL:     c.BaseURL,
			Temperature: temperature,
			MaxTokens:   c.MaxTokens,
		})
	case "openai":
		return llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:      c.APIKey,
			Model:       c.Model,
			BaseURL:     c.BaseURL,
			Temperature: float32(temperature),
			MaxTokens:   c.MaxTokens,
		}), nil
	case "codec":
		return sidecar()
	}
	return nil, fmt.Errorf("unknown llm provider %q", c.Provider)
}

// newIndex opens the configured index. The returned close func is nil when
// the sidecar owns the connection.
func newIndex(ctx context.Context, cfg *config.Config, sidecar func() (*codec.Client, error)) (index.Store, func() error, error) {
	switch cfg.Index.Backend {
	case "bleve":
		b, err := index.OpenBleve(cfg.Index.Path)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	case "weaviate":
		emb, err := newEmbedder(cfg, sidecar)
		if err != nil {
			return nil, nil, err
		}
		w, err := index.NewWeaviate(index.WeaviateConfig{
			Host:      cfg.Index.Host,
			Scheme:    cfg.Index.Scheme,
			ClassName: cfg.Index.ClassName,
		}, emb)
		if err != nil {
			return nil, nil, err
		}
		if err := w.EnsureSchema(ctx); err != nil {
			return nil, nil, fmt.Errorf("weaviate schema: %w", err)
		}
		return w, w.Close, nil
	case "codec":
		c, err := sidecar()
		return c, nil, err
	}
	return nil, nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
}

// newEmbedder embeds through the sidecar when the LLM runs there, otherwise
// through an OpenAI-compatible endpoint. Query embeddings are cached.
func newEmbedder(cfg *config.Config, sidecar func() (*codec.Client, error)) (index.Embedder, error) {
	var (
		inner index.Embedder
		err   error
	)
	if cfg.LLM.Provider == "codec" {
		inner, err = sidecar()
	} else {
		inner, err = index.NewOpenAIEmbedder(index.EmbedderConfig{
			Model:   cfg.Embedding.Model,
			BaseURL: cfg.Embedding.BaseURL,
			APIKey:  cfg.Embedding.APIKey,
		})
	}
	if err != nil {
		return nil, err
	}
	return index.NewCachedEmbedder(inner, cfg.Embedding.CacheSize)
}

func newSearcher(cfg *config.Config, sidecar func() (*codec.Client, error)) (websearch.Searcher, error) {
	switch cfg.Search.Provider {
	case "serper":
		return websearch.NewSerper(websearch.Config{
			APIKey:     cfg.Search.APIKey,
			Endpoint:   cfg.Search.Endpoint,
			MaxResults: cfg.Search.MaxResults,
			Timeout:    cfg.Search.Timeout,
			RatePerSec: cfg.Search.RatePerSec,
		}), nil
	case "codec":
		return sidecar()
	}
	return nil, fmt.Errorf("unknown search provider %q", cfg.Search.Provider)
}

// #endregion providers
