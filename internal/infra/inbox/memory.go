package inbox

import (
	"context"
	"sync"
)

// Memory is the process-local inbox used when no MongoDB is configured.
// It forgets everything on restart.
type Memory struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{seen: make(map[string]struct{})}
}

func (m *Memory) Seen(_ context.Context, deliveryID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[deliveryID]; ok {
		return true, nil
	}
	m.seen[deliveryID] = struct{}{}
	return false, nil
}
