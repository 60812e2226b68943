package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/esgpulse/esg-analytics/pkg/errors"
)

// WithTimeout bounds one call to an upstream. When the limit passes first
// the error matches both apperrors.ErrTimeout and context.DeadlineExceeded.
// A cancelled parent is reported as its own error, not as a timeout.
// A non-positive timeout runs fn directly.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- fn(callCtx)
	}()
	select {
	case err := <-done:
		if err != nil && ctx.Err() == nil && callCtx.Err() != nil {
			return timeoutError(name, timeout)
		}
		return err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", name, ctx.Err())
		}
		return timeoutError(name, timeout)
	}
}

func timeoutError(name string, limit time.Duration) error {
	return fmt.Errorf("%s: %w after %v: %w", name, apperrors.ErrTimeout, limit, context.DeadlineExceeded)
}
