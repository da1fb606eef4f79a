// Package server exposes the pipeline, the query log and ingestion over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/danielpatrickdp/agentic-rag/internal/eval"
	"github.com/danielpatrickdp/agentic-rag/internal/ingest"
	"github.com/danielpatrickdp/agentic-rag/internal/logger"
	"github.com/danielpatrickdp/agentic-rag/internal/logging"
	"github.com/danielpatrickdp/agentic-rag/internal/orchestrator"
	"github.com/danielpatrickdp/agentic-rag/internal/store"
)

// #region interfaces

// Pipeline answers one query.
type Pipeline interface {
	Handle(ctx context.Context, query string) *orchestrator.RequestState
}

// RecordStore is the read side of the query log.
type RecordStore interface {
	ListRecent(limit int) ([]logging.QueryRecord, error)
	Since(t time.Time) ([]logging.QueryRecord, error)
	Get(requestID string) (logging.QueryRecord, error)
	ToolOutcomes(now time.Time, halfLife time.Duration) ([]store.ToolOutcome, error)
}

// Ingester writes uploaded documents to the index.
type Ingester interface {
	IngestBytes(ctx context.Context, source string, data []byte) ingest.FileResult
}

// #endregion interfaces

// #region server

// Config holds the HTTP surface's knobs.
type Config struct {
	Addr           string
	ServiceName    string
	MaxUploadBytes int64
	Eval           eval.EvalConfig
	// OutcomeHalfLife weights tool outcomes in /v1/stats; zero disables them.
	OutcomeHalfLife time.Duration
}

// Deps are the server's collaborators. Store, Ingester and Metrics may be
// nil; their routes then answer 503 (or 404 for /metrics).
type Deps struct {
	Pipeline Pipeline
	Store    RecordStore
	Ingester Ingester
	Metrics  http.Handler
	Log      *charmlog.Logger
}

// Server is the gin HTTP API.
type Server struct {
	cfg    Config
	deps   Deps
	router *gin.Engine
	log    *charmlog.Logger
	now    func() time.Time
}

// New builds the server and registers routes.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Pipeline == nil {
		return nil, errors.New("server: pipeline is required")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "agentic-rag"
	}
	s := &Server{
		cfg:  cfg,
		deps: deps,
		log:  logger.Component(deps.Log, "http"),
		now:  time.Now,
	}

	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware(cfg.ServiceName), s.requestLog())
	r.MaxMultipartMemory = cfg.MaxUploadBytes
	s.routes(r)
	s.router = r
	return s, nil
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/health", s.health)
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}

	v1 := r.Group("/v1")
	{
		v1.POST("/query", s.query)
		v1.GET("/stats", s.stats)
		v1.GET("/queries", s.listQueries)
		v1.GET("/queries/:id", s.getQuery)
		v1.POST("/documents", s.uploadDocuments)
	}
}

// Router returns the gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves on cfg.Addr until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	s.log.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

// #endregion server
