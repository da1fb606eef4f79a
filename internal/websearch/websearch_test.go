package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/agentic-rag/internal/backoff"
	"github.com/danielpatrickdp/agentic-rag/internal/logger"
)

// #region format_tests

func TestFormatAsContext_TitleSnippetLines(t *testing.T) {
	out := FormatAsContext([]Result{
		{Title: "Title A", Snippet: "Snippet A", URL: "https://a.com"},
		{Title: "Title B", Snippet: "Snippet B", URL: "https://b.com"},
	})
	assert.Equal(t, "Title A: Snippet A\n\nTitle B: Snippet B", out)
}

func TestFormatAsContext_Empty(t *testing.T) {
	assert.Equal(t, "", FormatAsContext(nil))
}

func TestFormatAsEvidence_MultipleResults(t *testing.T) {
	out := FormatAsEvidence([]Result{
		{Title: "Title A", Snippet: "Snippet A", URL: "https://a.com"},
		{Title: "Title B", Snippet: "Snippet B", URL: "https://b.com"},
	})
	assert.Contains(t, out, "[Web Search Results]")
	assert.Contains(t, out, "1. Title A")
	assert.Contains(t, out, "2. Title B")
	assert.Contains(t, out, "Source: https://a.com")
}

func TestFormatAsEvidence_NoURL(t *testing.T) {
	out := FormatAsEvidence([]Result{{Title: "T", Snippet: "S"}})
	assert.NotContains(t, out, "Source:")
}

// #endregion format_tests

// #region config_tests

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.MaxResults)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, "https://google.serper.dev/search", cfg.Endpoint)
}

// #endregion config_tests

// #region serper_tests

func serperServer(t *testing.T, status int, organic int) (*httptest.Server, *serperRequest) {
	t.Helper()
	got := &serperRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-KEY"))
		_ = json.NewDecoder(r.Body).Decode(got)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"message":"nope"}`))
			return
		}
		items := make([]string, organic)
		for i := range items {
			items[i] = `{"title":"T` + string(rune('0'+i)) + `","link":"https://x/` + string(rune('0'+i)) + `","snippet":"S` + string(rune('0'+i)) + `"}`
		}
		_, _ = w.Write([]byte(`{"organic":[` + strings.Join(items, ",") + `]}`))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestSerper_TopResults(t *testing.T) {
	srv, got := serperServer(t, http.StatusOK, 8)
	s := NewSerper(Config{APIKey: "secret", Endpoint: srv.URL, MaxResults: 5, Timeout: time.Second})

	res, err := s.Search(context.Background(), "latest news")
	require.NoError(t, err)
	require.Len(t, res, 5)
	assert.Equal(t, Result{Title: "T0", Snippet: "S0", URL: "https://x/0"}, res[0])
	assert.Equal(t, "latest news", got.Q)
	assert.Equal(t, 5, got.Num)
}

func TestSerper_NoOrganicResults(t *testing.T) {
	srv, _ := serperServer(t, http.StatusOK, 0)
	s := NewSerper(Config{APIKey: "secret", Endpoint: srv.URL, MaxResults: 5, Timeout: time.Second})

	res, err := s.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestSerper_ClientErrorIsPermanent(t *testing.T) {
	srv, _ := serperServer(t, http.StatusForbidden, 0)
	s := NewSerper(Config{APIKey: "secret", Endpoint: srv.URL, MaxResults: 5, Timeout: time.Second})

	_, err := s.Search(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, backoff.IsPermanent(err))
}

func TestSerper_ServerErrorIsRetryable(t *testing.T) {
	srv, _ := serperServer(t, http.StatusBadGateway, 0)
	s := NewSerper(Config{APIKey: "secret", Endpoint: srv.URL, MaxResults: 5, Timeout: time.Second})

	_, err := s.Search(context.Background(), "q")
	require.Error(t, err)
	assert.False(t, backoff.IsPermanent(err))
}

func TestSerper_MissingKey(t *testing.T) {
	s := NewSerper(DefaultConfig())
	_, err := s.Search(context.Background(), "q")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

// #endregion serper_tests

// #region retry_tests

type flaky struct{ calls, failures int }

func (f *flaky) Search(_ context.Context, q string) ([]Result, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("reset")
	}
	return []Result{{Title: q}}, nil
}

func TestWithRetry_Recovers(t *testing.T) {
	f := &flaky{failures: 1}
	s := WithRetry(f, backoff.Policy{Attempts: 3, Min: time.Millisecond, Max: time.Millisecond}, logger.Nop())
	res, err := s.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, res, 1)
	assert.Equal(t, 2, f.calls)
}

// #endregion retry_tests
