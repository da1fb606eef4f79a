package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/danielpatrickdp/agentic-rag/internal/backoff"
	"github.com/danielpatrickdp/agentic-rag/internal/logger"
)

// #region fakes

type fakeModel struct {
	resp     *llms.ContentResponse
	err      error
	messages []llms.MessageContent
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	return f.resp, f.err
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

// #endregion fakes

// #region retry-tests

func TestWithRetry_RecoversFromTransientError(t *testing.T) {
	calls := 0
	inner := Func(func(ctx context.Context, prompt string) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("503")
		}
		return "ok:" + prompt, nil
	})
	c := WithRetry(inner, backoff.Policy{Attempts: 3, Min: time.Millisecond, Max: time.Millisecond}, logger.Nop())

	out, err := c.Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok:hi", out)
	assert.Equal(t, 2, calls)
}

func TestWithRetry_ExhaustedReturnsError(t *testing.T) {
	c := WithRetry(Func(func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("down")
	}), backoff.Policy{Attempts: 2, Min: time.Millisecond, Max: time.Millisecond}, logger.Nop())

	_, err := c.Complete(context.Background(), "hi")
	assert.ErrorContains(t, err, "down")
}

// #endregion retry-tests

// #region langchain-tests

func TestLangChain_Complete(t *testing.T) {
	m := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "Category: search\nConfidence: 0.9"}}}}
	c := NewLangChainWithModel(m, 0.1, 256)

	out, err := c.Complete(context.Background(), "classify this")
	require.NoError(t, err)
	assert.Equal(t, "Category: search\nConfidence: 0.9", out)
	require.Len(t, m.messages, 1)
	assert.Equal(t, llms.ChatMessageTypeHuman, m.messages[0].Role)
}

func TestLangChain_NoChoices(t *testing.T) {
	c := NewLangChainWithModel(&fakeModel{resp: &llms.ContentResponse{}}, 0, 0)
	_, err := c.Complete(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoChoices)
}

func TestLangChain_TransportError(t *testing.T) {
	c := NewLangChainWithModel(&fakeModel{err: errors.New("dial tcp")}, 0, 0)
	_, err := c.Complete(context.Background(), "x")
	assert.ErrorContains(t, err, "dial tcp")
}

// #endregion langchain-tests

// #region openai-tests

func TestOpenAI_Complete(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel = body.Model
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"0.85"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewOpenAI(OpenAIConfig{APIKey: "k", Model: "gpt-4o-mini", BaseURL: srv.URL})
	out, err := c.Complete(context.Background(), "rate")
	require.NoError(t, err)
	assert.Equal(t, "0.85", out)
	assert.Equal(t, "gpt-4o-mini", gotModel)
}

func TestOpenAI_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	c := NewOpenAI(OpenAIConfig{APIKey: "k", Model: "m", BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), "rate")
	assert.Error(t, err)
}

// #endregion openai-tests
