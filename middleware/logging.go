package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/sendloop/courier/job"
)

// Logging returns middleware that logs delivery start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, r *job.Record, next Handler) error {
		logger.Info("delivery started",
			slog.String("job_id", r.ID.String()),
			slog.String("queue", r.Queue),
			slog.String("recipient", r.Email.Recipient),
			slog.Int("attempt", r.Attempts),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("delivery failed",
				slog.String("job_id", r.ID.String()),
				slog.String("queue", r.Queue),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("delivery completed",
				slog.String("job_id", r.ID.String()),
				slog.String("queue", r.Queue),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
