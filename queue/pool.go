package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sendloop/courier/job"
)

// pool manages the worker goroutines that claim waiting records and
// execute them. Queue priority is encoded in the record score, so a
// single dequeue across all queues always serves critical mail first.
type pool struct {
	svc          *Service
	concurrency  int
	pollInterval time.Duration
	logger       *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newPool(svc *Service, concurrency int, pollInterval time.Duration, logger *slog.Logger) *pool {
	return &pool{
		svc:          svc,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		logger:       logger,
		stopCh:       make(chan struct{}),
	}
}

// start launches the worker goroutines. It returns immediately.
func (p *pool) start() {
	p.logger.Info("worker pool starting",
		slog.Int("concurrency", p.concurrency),
	)
	for range p.concurrency {
		p.wg.Add(1)
		go p.dequeueLoop()
	}
}

// stop signals all workers and waits for them to finish or the context
// deadline, whichever comes first.
func (p *pool) stop(ctx context.Context) {
	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out")
	}
}

// dequeueLoop is run by each worker goroutine.
func (p *pool) dequeueLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		// Skip queues already saturated at their concurrency cap so a
		// full priority queue cannot shadow waiting normal or bulk
		// jobs that still have capacity.
		queues := make([]string, 0, len(queueNames))
		for _, q := range p.svc.dispatchable() {
			if p.svc.manager.HasCapacity(q) {
				queues = append(queues, q)
			}
		}
		if len(queues) == 0 {
			p.sleep()
			continue
		}

		records, err := p.svc.store.DequeueJobs(context.Background(), queues, 1)
		if err != nil {
			p.logger.Error("dequeue error", slog.String("error", err.Error()))
			p.sleep()
			continue
		}
		if len(records) == 0 {
			p.sleep()
			continue
		}

		r := records[0]

		// Per-queue dispatch smoothing and concurrency cap. Another
		// worker may have taken the last slot since the filter above.
		if !p.svc.manager.Acquire(r.Queue) {
			p.requeue(r)
			p.sleep()
			continue
		}

		p.svc.hooks.EmitJobStarted(context.Background(), r)

		if execErr := p.svc.exec.Execute(context.Background(), r); execErr != nil {
			p.logger.Debug("job execution failed",
				slog.String("job_id", r.ID.String()),
				slog.String("error", execErr.Error()),
			)
		}

		p.svc.manager.Release(r.Queue)
		p.svc.maybeEmitDrained(context.Background(), r.Queue)
	}
}

// requeue returns a claimed record to the waiting list, keeping its
// original sequence so its place in the score bracket is preserved.
func (p *pool) requeue(r *job.Record) {
	r.State = job.StateWaiting
	r.ProcessedAt = nil
	if err := p.svc.store.UpdateJob(context.Background(), r); err != nil {
		p.logger.Error("failed to requeue record",
			slog.String("job_id", r.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (p *pool) sleep() {
	select {
	case <-time.After(p.pollInterval):
	case <-p.stopCh:
	}
}
