package store

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/effective-security/mcpagent/chatmodel"
)

type inMemory struct {
	mu         sync.RWMutex
	maxHistory int
	// tenant -> thread -> history
	storage map[string]map[string][]*Checkpoint
}

// NewMemoryStore returns Checkpointer that keeps checkpoints in memory
func NewMemoryStore() Checkpointer {
	return &inMemory{
		maxHistory: DefaultMaxHistory,
		storage:    make(map[string]map[string][]*Checkpoint),
	}
}

func (m *inMemory) Put(ctx context.Context, threadID string, cp *Checkpoint) error {
	tenantID := chatmodel.GetTenantID(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	threads := m.storage[tenantID]
	if threads == nil {
		threads = make(map[string][]*Checkpoint)
		m.storage[tenantID] = threads
	}

	c := *cp
	c.ThreadID = threadID
	history := append(threads[threadID], &c)
	if len(history) > m.maxHistory {
		history = slices.Clone(history[len(history)-m.maxHistory:])
	}
	threads[threadID] = history
	return nil
}

func (m *inMemory) Get(ctx context.Context, threadID string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.storage[chatmodel.GetTenantID(ctx)][threadID]
	if len(history) == 0 {
		return nil, ErrNotFound
	}
	c := *history[len(history)-1]
	return &c, nil
}

func (m *inMemory) History(ctx context.Context, threadID string) ([]*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.storage[chatmodel.GetTenantID(ctx)][threadID]
	if len(history) == 0 {
		return nil, ErrNotFound
	}
	res := make([]*Checkpoint, 0, len(history))
	for _, cp := range history {
		c := *cp
		res = append(res, &c)
	}
	return res, nil
}

func (m *inMemory) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.storage[chatmodel.GetTenantID(ctx)])), nil
}

func (m *inMemory) Delete(ctx context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.storage[chatmodel.GetTenantID(ctx)], threadID)
	return nil
}

func (m *inMemory) Cleanup(ctx context.Context, olderThan time.Duration) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	threads := m.storage[chatmodel.GetTenantID(ctx)]
	deleted := uint32(0)
	for threadID, history := range threads {
		if len(history) == 0 || history[len(history)-1].CreatedAt.Before(cutoff) {
			delete(threads, threadID)
			deleted++
		}
	}
	return deleted, nil
}
