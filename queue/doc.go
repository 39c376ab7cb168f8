// Package queue implements the email queueing core: three named
// queues (priority, normal, bulk) ordered by score with FIFO
// tie-break, a delayed set served by a single-timer min-heap, a worker
// pool with per-queue concurrency and optional dispatch smoothing, and
// the retry / dead-letter decision logic.
//
// # Queues and ordering
//
// Every record carries a numeric score derived from its priority
// (critical=100, high=75, normal=50, low=25). Workers always claim the
// highest-scoring waiting record; equal scores dequeue in arrival
// order. A record that waits out a delay re-enters at the back of its
// score bracket.
//
// # Failure handling
//
// A failed delivery attempt is classified by its error type:
//
//   - validation errors fail the job terminally; it is never retried
//     and never dead-lettered
//   - permanent provider errors dead-letter the job immediately
//   - rate-limit errors retry after the limiter's RetryAfter hint
//   - any other error retries on the backoff schedule until the retry
//     budget is exhausted, then dead-letters
//
// # Usage
//
//	store := queue.NewMemoryStore()
//	dlqSvc := dlq.NewService(dlq.NewMemoryStore(), nil)
//	hooks := hook.NewRegistry(logger)
//	svc := queue.NewService(store, dlqSvc, hooks, proc.Process,
//	    queue.WithConcurrency(5),
//	)
//	svc.Start(ctx)
//	defer svc.Stop(ctx)
//
//	record, err := svc.Add(ctx, &job.Email{...})
package queue
