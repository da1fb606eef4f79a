package backoff

import (
	"context"
	"errors"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/sethvargo/go-retry"

	"github.com/danielpatrickdp/agentic-rag/internal/logger"
)

// #region policy

// Policy bounds retries on one external call: at most Attempts tries, exponential
// delay starting at Min and capped at Max, each try limited to PerAttempt (0 = no limit).
type Policy struct {
	Attempts   int
	Min        time.Duration
	Max        time.Duration
	PerAttempt time.Duration
}

// DefaultPolicy is 3 attempts with 2s..10s backoff.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Min: 2 * time.Second, Max: 10 * time.Second, PerAttempt: 60 * time.Second}
}

func (p Policy) backoff() retry.Backoff {
	base := p.Min
	if base <= 0 {
		base = time.Millisecond
	}
	var b retry.Backoff = retry.NewExponential(base)
	if p.Max > 0 {
		b = retry.WithCappedDuration(p.Max, b)
	}
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return retry.WithMaxRetries(uint64(attempts-1), b)
}

// #endregion policy

// #region permanent

type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying (bad request, auth failure).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanent
	return errors.As(err, &p)
}

// #endregion permanent

// #region do

// Do runs fn under the policy. Errors are retried unless marked Permanent or the
// parent context is done. The last error is returned unwrapped.
func Do(ctx context.Context, p Policy, op string, log *charmlog.Logger, fn func(ctx context.Context) error) error {
	log = logger.Component(log, "retry")
	attempt := 0
	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempt++
		callCtx, cancel := attemptContext(ctx, p.PerAttempt)
		defer cancel()

		err := fn(callCtx)
		if err == nil {
			return nil
		}
		if IsPermanent(err) || ctx.Err() != nil {
			return err
		}
		log.Debug("attempt failed", "op", op, "attempt", attempt, "of", p.Attempts, "err", err)
		return retry.RetryableError(err)
	})
	if err != nil && attempt > 1 {
		log.Warn("retries exhausted", "op", op, "attempts", attempt, "err", err)
	}
	return err
}

// Value is Do for calls that return a result.
func Value[T any](ctx context.Context, p Policy, op string, log *charmlog.Logger, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, op, log, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func attemptContext(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// #endregion do
