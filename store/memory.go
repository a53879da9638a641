package store

import (
	"context"
	"sync"

	"github.com/rtrompier/agentai/pkg/llms"
)

type inMemory struct {
	mu      sync.RWMutex
	storage map[string][]llms.Message
}

// NewMemory returns an in-process MessageStore, useful for tests and
// single-instance deployments.
func NewMemory() MessageStore {
	return &inMemory{}
}

func (m *inMemory) Messages(ctx context.Context, id string) ([]llms.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.storage == nil {
		return nil, nil
	}
	msgs := m.storage[id]
	res := make([]llms.Message, len(msgs))
	copy(res, msgs)
	return res, nil
}

func (m *inMemory) Add(ctx context.Context, id string, msgs ...llms.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage == nil {
		// create on first use
		m.storage = make(map[string][]llms.Message)
	}
	m.storage[id] = append(m.storage[id], msgs...)
	return nil
}

func (m *inMemory) Reset(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage != nil {
		delete(m.storage, id)
	}
	return nil
}
