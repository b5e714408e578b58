package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/errors"
)

// WithTimeout runs fn under a deadline. A missed deadline is reported as
// ErrTimeout; a cancelled parent is returned as its own error.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	_, err := WithTimeoutValue(ctx, timeout, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// WithTimeoutValue is WithTimeout for functions producing a value. The
// value only reaches the caller through the result channel, so a call
// that finishes after the deadline is discarded rather than shared.
func WithTimeoutValue[T any](ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		val, err := fn(tctx)
		done <- result{val: val, err: err}
	}()

	var zero T
	select {
	case res := <-done:
		if errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, fmt.Errorf("%s: %w (limit %v)", name, apperrors.ErrTimeout, timeout)
		}
		return res.val, res.err
	case <-tctx.Done():
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s: %w", name, ctx.Err())
		}
		return zero, fmt.Errorf("%s: %w (limit %v)", name, apperrors.ErrTimeout, timeout)
	}
}
