// Package llm adapts chat-completion backends to a single prompt-in, text-out call.
package llm

import (
	"context"
	"errors"
	"fmt"

	charmlog "github.com/charmbracelet/log"

	"github.com/danielpatrickdp/agentic-rag/internal/backoff"
)

// #region interface

// Completer produces a completion for a single prompt. Implementations do not retry;
// wrap with WithRetry.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Func adapts a plain function to Completer.
type Func func(ctx context.Context, prompt string) (string, error)

func (f Func) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ErrNoChoices is returned when a backend answers with no content.
var ErrNoChoices = errors.New("model returned no choices")

// #endregion interface

// #region retry

type retrying struct {
	inner  Completer
	policy backoff.Policy
	log    *charmlog.Logger
}

// WithRetry wraps c so each Complete call is retried under policy.
func WithRetry(c Completer, policy backoff.Policy, log *charmlog.Logger) Completer {
	return &retrying{inner: c, policy: policy, log: log}
}

func (r *retrying) Complete(ctx context.Context, prompt string) (string, error) {
	out, err := backoff.Value(ctx, r.policy, "llm.complete", r.log, func(ctx context.Context) (string, error) {
		return r.inner.Complete(ctx, prompt)
	})
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	return out, nil
}

// #endregion retry
