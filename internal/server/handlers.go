package server

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-openapi/strfmt"
	"github.com/go-playground/validator/v10"

	"github.com/danielpatrickdp/agentic-rag/internal/eval"
	"github.com/danielpatrickdp/agentic-rag/internal/ingest"
	"github.com/danielpatrickdp/agentic-rag/internal/logging"
	"github.com/danielpatrickdp/agentic-rag/internal/store"
)

// #region request-types

// QueryRequest is the POST /v1/query body.
type QueryRequest struct {
	Query string `json:"query"`
}

type statsParams struct {
	Window string `form:"window" binding:"omitempty,max=16"`
}

type listParams struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

// StatsResponse is the GET /v1/stats body.
type StatsResponse struct {
	Summary      eval.Summary        `json:"summary"`
	Health       eval.EvalResult     `json:"health"`
	ToolOutcomes []store.ToolOutcome `json:"tool_outcomes,omitempty"`
}

// ErrorResponse is every non-2xx body that is not a query state.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

const defaultListLimit = 50

// #endregion request-types

// #region handlers

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": s.now().UTC().Format(time.RFC3339)})
}

// query runs the pipeline. Rejected queries answer 400 with the full state so
// the client sees the rejection reason.
func (s *Server) query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	st := s.deps.Pipeline.Handle(c.Request.Context(), req.Query)
	if !st.Valid {
		c.JSON(http.StatusBadRequest, st)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) stats(c *gin.Context) {
	if s.deps.Store == nil {
		unavailable(c, "query store")
		return
	}
	var p statsParams
	if err := c.ShouldBindQuery(&p); err != nil {
		s.badRequest(c, err)
		return
	}
	window, err := parseWindow(p.Window)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	now := s.now()
	var since time.Time
	if window > 0 {
		since = now.Add(-window)
	}
	recs, err := s.deps.Store.Since(since)
	if err != nil {
		s.internal(c, "load records", err)
		return
	}
	summary := eval.Summarize(recs, window, now)
	resp := StatsResponse{
		Summary: summary,
		Health:  eval.NewEvalHarness(s.cfg.Eval).Check(summary),
	}
	if s.cfg.OutcomeHalfLife > 0 {
		outcomes, err := s.deps.Store.ToolOutcomes(now, s.cfg.OutcomeHalfLife)
		if err != nil {
			s.internal(c, "tool outcomes", err)
			return
		}
		resp.ToolOutcomes = outcomes
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listQueries(c *gin.Context) {
	if s.deps.Store == nil {
		unavailable(c, "query store")
		return
	}
	var p listParams
	if err := c.ShouldBindQuery(&p); err != nil {
		s.badRequest(c, err)
		return
	}
	if p.Limit == 0 {
		p.Limit = defaultListLimit
	}
	recs, err := s.deps.Store.ListRecent(p.Limit)
	if err != nil {
		s.internal(c, "list records", err)
		return
	}
	if recs == nil {
		recs = []logging.QueryRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"queries": recs})
}

func (s *Server) getQuery(c *gin.Context) {
	if s.deps.Store == nil {
		unavailable(c, "query store")
		return
	}
	id := c.Param("id")
	if !strfmt.IsUUID(id) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "request id must be a uuid"})
		return
	}
	rec, err := s.deps.Store.Get(id)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no query with id " + id})
		return
	}
	if err != nil {
		s.internal(c, "get record", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// uploadDocuments ingests every multipart file under the "files" field.
// Per-file failures are reported in the result; the status is 200 unless no
// file was accepted at all.
func (s *Server) uploadDocuments(c *gin.Context) {
	if s.deps.Ingester == nil {
		unavailable(c, "ingestion")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("multipart form: %v", err)})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: `no files under form field "files"`})
		return
	}

	var res ingest.Result
	for _, fh := range files {
		name := filepath.Base(fh.Filename)
		if !ingest.Supported(name) {
			res.Add(ingest.FileResult{Source: name, Error: ingest.ErrUnsupported.Error()})
			continue
		}
		f, err := fh.Open()
		if err != nil {
			res.Add(ingest.FileResult{Source: name, Error: err.Error()})
			continue
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			res.Add(ingest.FileResult{Source: name, Error: err.Error()})
			continue
		}
		res.Add(s.deps.Ingester.IngestBytes(c.Request.Context(), name, data))
	}

	status := http.StatusOK
	if res.Failed == len(res.Files) {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, res)
}

// #endregion handlers

// #region helpers

// parseWindow accepts a Go duration, "all" or "0". Empty means the default.
func parseWindow(raw string) (time.Duration, error) {
	switch strings.TrimSpace(raw) {
	case "":
		return eval.DefaultWindow, nil
	case "all", "0":
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("window must be a positive duration like 24h, got %q", raw)
	}
	return d, nil
}

func (s *Server) badRequest(c *gin.Context, err error) {
	resp := ErrorResponse{Error: "invalid request"}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		resp.Fields = map[string]string{}
		for _, fe := range ve {
			resp.Fields[strings.ToLower(fe.Field())] = strings.TrimSpace(fe.Tag() + " " + fe.Param())
		}
	} else {
		resp.Error = err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}

func (s *Server) internal(c *gin.Context, op string, err error) {
	s.log.Error(op, "err", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: op + " failed"})
}

func unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: what + " is not configured"})
}

// #endregion helpers
