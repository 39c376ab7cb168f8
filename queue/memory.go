package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sendloop/courier"
	"github.com/sendloop/courier/id"
	"github.com/sendloop/courier/job"
)

// MemoryStore is a fully in-memory Store. Safe for concurrent access.
// Intended for single-process deployments and testing.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*job.Record
	seq     uint64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*job.Record)}
}

// EnqueueJob persists a new record and assigns its FIFO sequence number.
func (m *MemoryStore) EnqueueJob(_ context.Context, r *job.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.ID.String()
	if _, exists := m.records[key]; exists {
		return courier.ErrJobAlreadyExists
	}
	m.seq++
	r.SetSeq(m.seq)
	cp := *r
	m.records[key] = &cp
	return nil
}

// DequeueJobs atomically claims up to limit waiting records from the
// given queues, sets them active, and returns them.
func (m *MemoryStore) DequeueJobs(_ context.Context, queues []string, limit int) ([]*job.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queueSet := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		queueSet[q] = struct{}{}
	}

	candidates := make([]*job.Record, 0, len(m.records))
	for _, r := range m.records {
		if r.State != job.StateWaiting {
			continue
		}
		if len(queueSet) > 0 {
			if _, ok := queueSet[r.Queue]; !ok {
				continue
			}
		}
		candidates = append(candidates, r)
	}

	// Sort: score DESC, sequence ASC.
	sort.Slice(candidates, func(i, k int) bool {
		if candidates[i].Score != candidates[k].Score {
			return candidates[i].Score > candidates[k].Score
		}
		return candidates[i].Seq() < candidates[k].Seq()
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	now := time.Now().UTC()
	result := make([]*job.Record, len(candidates))
	for i, r := range candidates {
		r.State = job.StateActive
		n := now
		r.ProcessedAt = &n
		// Return a copy so callers can mutate without racing with the store.
		cp := *r
		result[i] = &cp
	}

	return result, nil
}

// GetJob retrieves a record by ID.
func (m *MemoryStore) GetJob(_ context.Context, jobID id.JobID) (*job.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[jobID.String()]
	if !ok {
		return nil, courier.ErrJobNotFound
	}
	cp := *r
	return &cp, nil
}

// UpdateJob persists changes to an existing record. Illegal state
// transitions are rejected with ErrInvalidState.
func (m *MemoryStore) UpdateJob(_ context.Context, r *job.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.ID.String()
	cur, ok := m.records[key]
	if !ok {
		return courier.ErrJobNotFound
	}
	if cur.State != r.State && !job.CanTransition(cur.State, r.State) {
		return courier.ErrInvalidState
	}
	cp := *r
	cp.UpdatedAt = time.Now().UTC()
	m.records[key] = &cp
	return nil
}

// DeleteJob removes a record by ID.
func (m *MemoryStore) DeleteJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobID.String()
	if _, ok := m.records[key]; !ok {
		return courier.ErrJobNotFound
	}
	delete(m.records, key)
	return nil
}

// PromoteJob moves a delayed record back to waiting with a fresh
// sequence number.
func (m *MemoryStore) PromoteJob(_ context.Context, jobID id.JobID) (*job.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[jobID.String()]
	if !ok {
		return nil, courier.ErrJobNotFound
	}
	if r.State != job.StateDelayed {
		return nil, courier.ErrInvalidState
	}
	m.seq++
	r.SetSeq(m.seq)
	r.State = job.StateWaiting
	r.DelayUntil = nil
	r.UpdatedAt = time.Now().UTC()
	cp := *r
	return &cp, nil
}

// ListJobsByState returns records matching the given state.
func (m *MemoryStore) ListJobsByState(_ context.Context, state job.State, opts ListOpts) ([]*job.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Record, 0, len(m.records))
	for _, r := range m.records {
		if r.State != state {
			continue
		}
		if opts.Queue != "" && r.Queue != opts.Queue {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}

	// Sort by CreatedAt for deterministic output.
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// CountJobs returns the number of records matching the given options.
func (m *MemoryStore) CountJobs(_ context.Context, opts CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, r := range m.records {
		if opts.Queue != "" && r.Queue != opts.Queue {
			continue
		}
		if opts.State != "" && r.State != opts.State {
			continue
		}
		count++
	}
	return count, nil
}

// PurgeQueue removes every record in the given queue regardless of state.
func (m *MemoryStore) PurgeQueue(_ context.Context, queue string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key, r := range m.records {
		if r.Queue == queue {
			delete(m.records, key)
			count++
		}
	}
	return count, nil
}
