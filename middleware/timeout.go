package middleware

import (
	"context"
	"time"

	"github.com/sendloop/courier/job"
)

// Timeout returns middleware that enforces a per-attempt execution
// deadline. When the deadline is exceeded the context is cancelled and
// the handler should return context.DeadlineExceeded. A zero duration
// disables the deadline.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, r *job.Record, next Handler) error {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
