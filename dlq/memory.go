package dlq

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sendloop/courier"
	"github.com/sendloop/courier/id"
)

// MemoryStore is a fully in-memory Store. Safe for concurrent access.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

// PushDLQ adds a failed job entry to the dead-letter queue.
func (m *MemoryStore) PushDLQ(_ context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[entry.ID.String()] = entry
	return nil
}

// ListDLQ returns DLQ entries matching the given options.
func (m *MemoryStore) ListDLQ(_ context.Context, opts ListOpts) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if opts.Queue != "" && e.Queue != opts.Queue {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].FailedAt.Before(result[k].FailedAt)
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

// GetDLQ retrieves a DLQ entry by ID.
func (m *MemoryStore) GetDLQ(_ context.Context, entryID id.DLQID) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[entryID.String()]
	if !ok {
		return nil, courier.ErrDLQNotFound
	}
	cp := *e
	return &cp, nil
}

// MarkReplayed stamps a DLQ entry as replayed.
func (m *MemoryStore) MarkReplayed(_ context.Context, entryID id.DLQID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[entryID.String()]
	if !ok {
		return courier.ErrDLQNotFound
	}
	now := time.Now().UTC()
	e.ReplayedAt = &now
	return nil
}

// PurgeDLQ removes entries with FailedAt before the given time.
func (m *MemoryStore) PurgeDLQ(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key, e := range m.entries {
		if e.FailedAt.Before(before) {
			delete(m.entries, key)
			count++
		}
	}
	return count, nil
}

// CountDLQ returns the number of entries not yet replayed.
func (m *MemoryStore) CountDLQ(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, e := range m.entries {
		if e.ReplayedAt == nil {
			count++
		}
	}
	return count, nil
}
