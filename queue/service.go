package queue

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sendloop/courier"
	"github.com/sendloop/courier/backoff"
	"github.com/sendloop/courier/dlq"
	"github.com/sendloop/courier/hook"
	"github.com/sendloop/courier/id"
	"github.com/sendloop/courier/job"
	"github.com/sendloop/courier/middleware"
)

// Names of the managed queues, in dispatch priority order.
var queueNames = []string{job.QueuePriority, job.QueueNormal, job.QueueBulk}

// Service manages the named email queues: priority, normal, and bulk,
// plus the dead-letter queue behind the dlq service. It owns record
// state, the delay scheduler, and the worker pool.
type Service struct {
	store   Store
	dlqSvc  *dlq.Service
	hooks   *hook.Registry
	manager *Manager
	exec    *executor
	logger  *slog.Logger
	now     func() time.Time

	concurrency  int
	pollInterval time.Duration
	maxRetries   int
	rateLimit    float64

	mu        sync.Mutex
	paused    map[string]bool
	pausedAll bool
	running   bool
	pool      *pool

	// Delay scheduler state: a min-heap of (job, due) pairs served by a
	// single timer goroutine.
	dmu     sync.Mutex
	delayed delayedHeap
	wake    chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithConcurrency sets the per-queue worker concurrency.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithPollInterval sets how often idle workers poll for new records.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithMaxRetries sets the default retry budget for jobs that do not
// set their own.
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithBackoff sets the retry backoff strategy.
func WithBackoff(strategy backoff.Strategy) Option {
	return func(s *Service) {
		if strategy != nil {
			s.exec.backoff = strategy
		}
	}
}

// WithMiddleware sets the middleware chain applied to every delivery
// attempt.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(s *Service) { s.exec.mw = middleware.Chain(mws...) }
}

// WithDispatchRate smooths dispatch to at most n records per second
// per queue. Zero disables smoothing. This is mechanical pacing; the
// warm-up limits are enforced during processing.
func WithDispatchRate(n float64) Option {
	return func(s *Service) { s.rateLimit = n }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a queue service. The process function runs each
// delivery attempt; the dlq service receives exhausted records and is
// wired back for replay.
func NewService(store Store, dlqSvc *dlq.Service, hooks *hook.Registry, process ProcessFunc, opts ...Option) *Service {
	s := &Service{
		store:        store,
		dlqSvc:       dlqSvc,
		hooks:        hooks,
		logger:       slog.Default(),
		now:          time.Now,
		concurrency:  courier.DefaultConfig().Concurrency,
		pollInterval: 100 * time.Millisecond,
		maxRetries:   courier.DefaultConfig().MaxRetries,
		paused:       make(map[string]bool),
		wake:         make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
	}
	s.exec = &executor{
		process: process,
		store:   store,
		dlq:     dlqSvc,
		hooks:   hooks,
		backoff: backoff.DefaultStrategy(),
		mw:      middleware.Chain(),
		logger:  s.logger,
		onDelay: s.schedule,
	}

	for _, opt := range opts {
		opt(s)
	}
	s.exec.logger = s.logger

	configs := make([]ManagerConfig, 0, len(queueNames))
	for _, name := range queueNames {
		configs = append(configs, ManagerConfig{
			Name:           name,
			MaxConcurrency: s.concurrency,
			RateLimit:      s.rateLimit,
		})
	}
	s.manager = NewManager(configs...)
	s.pool = newPool(s, s.concurrency*len(queueNames), s.pollInterval, s.logger)

	if dlqSvc != nil {
		dlqSvc.SetEnqueuer(s)
	}
	return s
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Start launches the worker pool and delay scheduler. It returns
// immediately.
func (s *Service) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.running = true

	s.logger.Info("queue service starting",
		slog.Int("concurrency", s.concurrency),
		slog.Any("queues", queueNames),
	)

	s.wg.Add(1)
	go s.schedulerLoop()
	s.pool.start()
	return nil
}

// Stop shuts down the worker pool and scheduler, waiting for active
// jobs to finish or the context deadline.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("queue service stopping")
	close(s.stopCh)
	s.pool.stop(ctx)
	s.wg.Wait()
	return nil
}

// ──────────────────────────────────────────────────
// Enqueue and inspection
// ──────────────────────────────────────────────────

// Add validates nothing beyond presence, builds a record for the
// email, and enqueues it. Scheduled sends enter the delayed set until
// their send time. Content validation happens at processing time.
func (s *Service) Add(ctx context.Context, email *job.Email) (*job.Record, error) {
	if email == nil {
		return nil, &courier.ValidationError{Field: "email", Reason: "must not be nil"}
	}

	r := job.NewRecord(email, s.maxRetries)

	if email.ScheduledAt != nil {
		if until := email.ScheduledAt.UTC(); until.After(s.now()) {
			r.State = job.StateDelayed
			r.DelayUntil = &until
		}
	}

	if err := s.EnqueueRecord(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// EnqueueRecord persists a prepared record and admits it to dispatch
// or the delayed set. It also serves as the replay target for the
// dead-letter queue.
func (s *Service) EnqueueRecord(ctx context.Context, r *job.Record) error {
	if err := s.store.EnqueueJob(ctx, r); err != nil {
		return err
	}

	if r.State == job.StateDelayed && r.DelayUntil != nil {
		s.schedule(r.ID, *r.DelayUntil)
		s.hooks.EmitJobDelayed(ctx, r, *r.DelayUntil)
	}

	s.hooks.EmitJobAdded(ctx, r)
	return nil
}

// GetJob retrieves a record by ID.
func (s *Service) GetJob(ctx context.Context, jobID id.JobID) (*job.Record, error) {
	return s.store.GetJob(ctx, jobID)
}

// ListJobs returns records in the given state.
func (s *Service) ListJobs(ctx context.Context, state job.State, opts ListOpts) ([]*job.Record, error) {
	return s.store.ListJobsByState(ctx, state, opts)
}

// Remove deletes a waiting or delayed record. Active records cannot be
// removed mid-flight.
func (s *Service) Remove(ctx context.Context, jobID id.JobID) error {
	r, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if r.State == job.StateActive {
		return courier.ErrInvalidState
	}
	if err := s.store.DeleteJob(ctx, jobID); err != nil {
		return err
	}
	s.hooks.EmitJobRemoved(ctx, r)
	return nil
}

// Counts returns the per-state breakdown for a single queue.
func (s *Service) Counts(ctx context.Context, queue string) (Counts, error) {
	var c Counts
	for _, pair := range []struct {
		state job.State
		dst   *int64
	}{
		{job.StateWaiting, &c.Waiting},
		{job.StateActive, &c.Active},
		{job.StateCompleted, &c.Completed},
		{job.StateFailed, &c.Failed},
		{job.StateDelayed, &c.Delayed},
	} {
		n, err := s.store.CountJobs(ctx, CountOpts{Queue: queue, State: pair.state})
		if err != nil {
			return Counts{}, err
		}
		*pair.dst = n
	}
	return c, nil
}

// CountsAll returns the per-state breakdown for every managed queue.
func (s *Service) CountsAll(ctx context.Context) (map[string]Counts, error) {
	result := make(map[string]Counts, len(queueNames))
	for _, name := range queueNames {
		c, err := s.Counts(ctx, name)
		if err != nil {
			return nil, err
		}
		result[name] = c
	}
	return result, nil
}

// Queues returns the managed queue names in dispatch priority order.
func (s *Service) Queues() []string {
	names := make([]string, len(queueNames))
	copy(names, queueNames)
	return names
}

// DLQ returns the dead-letter service.
func (s *Service) DLQ() *dlq.Service { return s.dlqSvc }

// Retry replays a dead-lettered entry as a fresh job.
func (s *Service) Retry(ctx context.Context, entryID id.DLQID) (*job.Record, error) {
	if s.dlqSvc == nil {
		return nil, courier.ErrDLQNotFound
	}
	return s.dlqSvc.Replay(ctx, entryID)
}

// Obliterate removes every record in the given queue regardless of
// state and reports how many were dropped.
func (s *Service) Obliterate(ctx context.Context, queue string) (int64, error) {
	if !knownQueue(queue) {
		return 0, courier.ErrQueueNotFound
	}
	n, err := s.store.PurgeQueue(ctx, queue)
	if err != nil {
		return 0, err
	}
	s.logger.Warn("queue obliterated",
		slog.String("queue", queue),
		slog.Int64("removed", n),
	)
	s.hooks.EmitQueueDrained(ctx, queue)
	return n, nil
}

// ──────────────────────────────────────────────────
// Pause / resume
// ──────────────────────────────────────────────────

// Pause stops dispatch for the given queue, or for all queues when
// queue is empty. Paused queues still accept new records.
func (s *Service) Pause(ctx context.Context, queue string) error {
	if queue == "" {
		s.mu.Lock()
		s.pausedAll = true
		s.mu.Unlock()
		for _, name := range queueNames {
			s.hooks.EmitQueuePaused(ctx, name)
		}
		return nil
	}
	if !knownQueue(queue) {
		return courier.ErrQueueNotFound
	}
	s.mu.Lock()
	s.paused[queue] = true
	s.mu.Unlock()
	s.hooks.EmitQueuePaused(ctx, queue)
	return nil
}

// Resume restarts dispatch for the given queue, or for all queues when
// queue is empty.
func (s *Service) Resume(ctx context.Context, queue string) error {
	if queue == "" {
		s.mu.Lock()
		s.pausedAll = false
		s.paused = make(map[string]bool)
		s.mu.Unlock()
		for _, name := range queueNames {
			s.hooks.EmitQueueResumed(ctx, name)
		}
		return nil
	}
	if !knownQueue(queue) {
		return courier.ErrQueueNotFound
	}
	s.mu.Lock()
	delete(s.paused, queue)
	s.mu.Unlock()
	s.hooks.EmitQueueResumed(ctx, queue)
	return nil
}

// IsPaused reports whether dispatch is paused for the given queue.
func (s *Service) IsPaused(queue string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pausedAll || s.paused[queue]
}

// dispatchable returns the unpaused queues in priority order.
func (s *Service) dispatchable() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pausedAll {
		return nil
	}
	names := make([]string, 0, len(queueNames))
	for _, name := range queueNames {
		if !s.paused[name] {
			names = append(names, name)
		}
	}
	return names
}

func knownQueue(queue string) bool {
	for _, name := range queueNames {
		if name == queue {
			return true
		}
	}
	return false
}

// maybeEmitDrained emits QueueDrained when a queue has no backlog left.
func (s *Service) maybeEmitDrained(ctx context.Context, queue string) {
	c, err := s.Counts(ctx, queue)
	if err != nil {
		return
	}
	if c.Backlog() == 0 {
		s.hooks.EmitQueueDrained(ctx, queue)
	}
}

// ──────────────────────────────────────────────────
// Delay scheduler
// ──────────────────────────────────────────────────

// schedule adds a delayed record to the heap and wakes the scheduler
// so it can re-arm its timer for an earlier deadline.
func (s *Service) schedule(jobID id.JobID, due time.Time) {
	s.dmu.Lock()
	heap.Push(&s.delayed, delayedItem{jobID: jobID, due: due})
	s.dmu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// schedulerLoop arms a single timer for the earliest due record and
// promotes everything that has come due when it fires.
func (s *Service) schedulerLoop() {
	defer s.wg.Done()

	for {
		var timer *time.Timer
		var timerC <-chan time.Time

		s.dmu.Lock()
		if s.delayed.Len() > 0 {
			d := s.delayed.peek().due.Sub(s.now())
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
			timerC = timer.C
		}
		s.dmu.Unlock()

		select {
		case <-s.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.wake:
			// A new record may be due earlier; loop to re-arm.
			if timer != nil {
				timer.Stop()
			}
		case <-timerC:
			s.promoteDue(context.Background())
		}
	}
}

// promoteDue moves every delayed record whose time has come back to
// the waiting list. Records that were removed or already moved are
// skipped.
func (s *Service) promoteDue(ctx context.Context) {
	now := s.now()

	for {
		s.dmu.Lock()
		if s.delayed.Len() == 0 || s.delayed.peek().due.After(now) {
			s.dmu.Unlock()
			return
		}
		item := heap.Pop(&s.delayed).(delayedItem)
		s.dmu.Unlock()

		r, err := s.store.PromoteJob(ctx, item.jobID)
		if err != nil {
			if !errors.Is(err, courier.ErrJobNotFound) && !errors.Is(err, courier.ErrInvalidState) {
				s.logger.Error("failed to promote delayed job",
					slog.String("job_id", item.jobID.String()),
					slog.String("error", err.Error()),
				)
			}
			continue
		}

		s.logger.Debug("delayed job promoted",
			slog.String("job_id", r.ID.String()),
			slog.String("queue", r.Queue),
		)
	}
}

var _ dlq.Enqueuer = (*Service)(nil)
