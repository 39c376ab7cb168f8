package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// ManagerConfig defines per-queue dispatch behaviour such as rate
// limiting and concurrency. This is mechanical smoothing of dispatch;
// the domain warm-up limits are enforced separately during processing.
type ManagerConfig struct {
	// Name is the queue identifier (must match the record's Queue field).
	Name string

	// MaxConcurrency limits how many jobs from this queue may run
	// simultaneously across the local worker pool. Zero means no
	// queue-specific limit (pool-wide concurrency still applies).
	MaxConcurrency int

	// RateLimit is the maximum sustained jobs per second that may be
	// dispatched from this queue. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// managerState tracks runtime state for a single queue.
type managerState struct {
	config  ManagerConfig
	limiter *rate.Limiter
	active  int
}

// Manager controls per-queue dispatch rate limiting and concurrency.
// It is safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	queues map[string]*managerState
}

// NewManager creates a Manager with the given queue configurations.
// Queues not listed here have no limits.
func NewManager(configs ...ManagerConfig) *Manager {
	m := &Manager{queues: make(map[string]*managerState, len(configs))}
	for _, cfg := range configs {
		m.queues[cfg.Name] = newManagerState(cfg)
	}
	return m
}

func newManagerState(cfg ManagerConfig) *managerState {
	ms := &managerState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ms.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return ms
}

// Acquire checks the concurrency cap and dispatch rate limit for the
// given queue. If the job is allowed to proceed it increments the
// active counter and returns true. The caller MUST call Release when
// the job completes.
//
// The concurrency check comes first: a rate token is only consumed
// once a slot is available, so rejected acquisitions never burn
// dispatch budget.
func (m *Manager) Acquire(queue string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms := m.queues[queue]
	if ms == nil {
		return true
	}
	if ms.config.MaxConcurrency > 0 && ms.active >= ms.config.MaxConcurrency {
		return false
	}
	if ms.limiter != nil && !ms.limiter.Allow() {
		return false
	}
	ms.active++
	return true
}

// HasCapacity reports whether the queue is below its concurrency cap.
// It consumes no rate token, so workers can use it to skip saturated
// queues when choosing what to dequeue.
func (m *Manager) HasCapacity(queue string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms := m.queues[queue]
	if ms == nil {
		return true
	}
	return ms.config.MaxConcurrency <= 0 || ms.active < ms.config.MaxConcurrency
}

// Release decrements the active job count for the queue.
func (m *Manager) Release(queue string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ms := m.queues[queue]; ms != nil && ms.active > 0 {
		ms.active--
	}
}

// SetQueueConfig dynamically updates (or creates) a queue configuration.
func (m *Manager) SetQueueConfig(cfg ManagerConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.queues[cfg.Name]
	ms := newManagerState(cfg)

	// Preserve current active count if reconfiguring.
	if existing != nil {
		ms.active = existing.active
	}
	m.queues[cfg.Name] = ms
}

// ActiveCount returns the current number of active jobs for a queue.
func (m *Manager) ActiveCount(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ms := m.queues[queue]; ms != nil {
		return ms.active
	}
	return 0
}
