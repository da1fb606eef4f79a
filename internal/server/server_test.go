package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/agentic-rag/internal/eval"
	"github.com/danielpatrickdp/agentic-rag/internal/ingest"
	"github.com/danielpatrickdp/agentic-rag/internal/logger"
	"github.com/danielpatrickdp/agentic-rag/internal/logging"
	"github.com/danielpatrickdp/agentic-rag/internal/observability"
	"github.com/danielpatrickdp/agentic-rag/internal/orchestrator"
	"github.com/danielpatrickdp/agentic-rag/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// #region fakes

type fakePipeline struct {
	queries []string
}

func (f *fakePipeline) Handle(_ context.Context, query string) *orchestrator.RequestState {
	f.queries = append(f.queries, query)
	if strings.TrimSpace(query) == "" {
		return &orchestrator.RequestState{
			Query:           query,
			RejectionReason: "Query cannot be empty",
			AnswerText:      "Invalid query: Query cannot be empty",
			AnswerSource:    orchestrator.SourceNone,
		}
	}
	return &orchestrator.RequestState{
		RequestID:    uuid.NewString(),
		Query:        query,
		Valid:        true,
		AnswerText:   "Paris.",
		AnswerSource: orchestrator.SourceKnowledge,
		Citations:    []orchestrator.Citation{{Kind: orchestrator.CitationModelKnowledge, Label: "test-model"}},
	}
}

type fakeIngester struct {
	sources []string
}

func (f *fakeIngester) IngestBytes(_ context.Context, source string, data []byte) ingest.FileResult {
	f.sources = append(f.sources, source)
	return ingest.FileResult{Source: source, Pages: 1, Passages: len(data) / 10}
}

// #endregion fakes

// #region helpers

type fixture struct {
	srv      *Server
	pipeline *fakePipeline
	ingester *fakeIngester
	store    *store.Store
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "q.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := prometheus.NewRegistry()
	observability.New(reg)

	fx := &fixture{
		pipeline: &fakePipeline{},
		ingester: &fakeIngester{},
		store:    st,
		now:      time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	srv, err := New(Config{Eval: eval.DefaultEvalConfig(), OutcomeHalfLife: time.Hour}, Deps{
		Pipeline: fx.pipeline,
		Store:    st,
		Ingester: fx.ingester,
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Log:      logger.Nop(),
	})
	require.NoError(t, err)
	srv.now = func() time.Time { return fx.now }
	fx.srv = srv
	return fx
}

func (fx *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	fx.srv.Router().ServeHTTP(w, req)
	return w
}

func (fx *fixture) seed(t *testing.T, age time.Duration, source string, failed bool) string {
	t.Helper()
	rec := logging.QueryRecord{
		Timestamp:      fx.now.Add(-age),
		RequestID:      uuid.NewString(),
		Query:          "q",
		Valid:          true,
		SelectedTool:   source,
		AttemptedTools: []string{source},
		AnswerSource:   source,
		AnswerText:     "a",
		Elapsed:        time.Second,
	}
	if failed {
		rec.Error = "boom"
	}
	require.NoError(t, logging.NewSQLiteSink(fx.store.DB()).Write(t.Context(), rec))
	return rec.RequestID
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

// #endregion helpers

func TestHealth(t *testing.T) {
	fx := newFixture(t)
	w := fx.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestQuery_OK(t *testing.T) {
	fx := newFixture(t)
	w := fx.do(httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"query":"capital of France?"}`)))
	require.Equal(t, http.StatusOK, w.Code)

	st := decode[orchestrator.RequestState](t, w)
	assert.Equal(t, "Paris.", st.AnswerText)
	assert.Equal(t, orchestrator.SourceKnowledge, st.AnswerSource)
	assert.Equal(t, []string{"capital of France?"}, fx.pipeline.queries)
}

func TestQuery_InvalidIs400WithReason(t *testing.T) {
	fx := newFixture(t)
	w := fx.do(httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"query":"  "}`)))
	require.Equal(t, http.StatusBadRequest, w.Code)

	st := decode[orchestrator.RequestState](t, w)
	assert.False(t, st.Valid)
	assert.Equal(t, "Query cannot be empty", st.RejectionReason)
}

func TestQuery_MalformedBody(t *testing.T) {
	fx := newFixture(t)
	w := fx.do(httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"query":`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, fx.pipeline.queries)
}

func TestStats_WindowAndOutcomes(t *testing.T) {
	fx := newFixture(t)
	fx.seed(t, time.Hour, "retrieval", false)
	fx.seed(t, 2*time.Hour, "knowledge", true)
	fx.seed(t, 48*time.Hour, "search", false)

	w := fx.do(httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[StatsResponse](t, w)
	assert.Equal(t, 2, resp.Summary.TotalQueries)
	assert.Equal(t, 1, resp.Summary.ErrorCount)
	assert.Equal(t, 1, resp.Summary.SourceDistribution["retrieval"])
	assert.True(t, resp.Health.Passed, "below MinQueries every check passes")
	assert.NotEmpty(t, resp.ToolOutcomes)

	w = fx.do(httptest.NewRequest(http.MethodGet, "/v1/stats?window=all", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, decode[StatsResponse](t, w).Summary.TotalQueries)
}

func TestStats_BadWindow(t *testing.T) {
	fx := newFixture(t)
	w := fx.do(httptest.NewRequest(http.MethodGet, "/v1/stats?window=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListQueries(t *testing.T) {
	fx := newFixture(t)
	for i := 0; i < 3; i++ {
		fx.seed(t, time.Duration(i)*time.Minute, "retrieval", false)
	}

	w := fx.do(httptest.NewRequest(http.MethodGet, "/v1/queries?limit=2", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Queries []logging.QueryRecord `json:"queries"`
	}](t, w)
	assert.Len(t, body.Queries, 2)
}

func TestListQueries_LimitValidated(t *testing.T) {
	fx := newFixture(t)
	w := fx.do(httptest.NewRequest(http.MethodGet, "/v1/queries?limit=5000", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, "max 500", resp.Fields["limit"])
}

func TestGetQuery(t *testing.T) {
	fx := newFixture(t)
	id := fx.seed(t, time.Minute, "search", false)

	w := fx.do(httptest.NewRequest(http.MethodGet, "/v1/queries/"+id, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, decode[logging.QueryRecord](t, w).RequestID)

	w = fx.do(httptest.NewRequest(http.MethodGet, "/v1/queries/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = fx.do(httptest.NewRequest(http.MethodGet, "/v1/queries/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, body := range files {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadDocuments(t *testing.T) {
	fx := newFixture(t)
	body, ct := multipartBody(t, map[string]string{
		"guide.md":   strings.Repeat("section text ", 20),
		"slides.ppt": "binary",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", ct)

	w := fx.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[ingest.Result](t, w)
	assert.Len(t, res.Files, 2)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"guide.md"}, fx.ingester.sources)
}

func TestUploadDocuments_NothingAccepted(t *testing.T) {
	fx := newFixture(t)
	body, ct := multipartBody(t, map[string]string{"a.exe": "x"})
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", ct)

	assert.Equal(t, http.StatusUnprocessableEntity, fx.do(req).Code)
}

func TestUploadDocuments_NoFiles(t *testing.T) {
	fx := newFixture(t)
	body, ct := multipartBody(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", ct)

	assert.Equal(t, http.StatusBadRequest, fx.do(req).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	fx := newFixture(t)
	w := fx.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "agentic_rag_")
}

func TestUnconfiguredStore(t *testing.T) {
	srv, err := New(Config{}, Deps{Pipeline: &fakePipeline{}, Log: logger.Nop()})
	require.NoError(t, err)

	for _, path := range []string{"/v1/stats", "/v1/queries", "/v1/queries/" + uuid.NewString()} {
		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNew_RequiresPipeline(t *testing.T) {
	_, err := New(Config{}, Deps{})
	assert.Error(t, err)
}
