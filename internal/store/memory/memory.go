package memory

import (
	"context"
	"fmt"
	"sync"

	"medipos/backend/internal/store"
)

// DefaultQuotaBytes matches the usual browser local storage allowance.
const DefaultQuotaBytes = 5 << 20

// Medium keeps every key in process memory under a byte quota.
type Medium struct {
	mu     sync.RWMutex
	values map[string][]byte
	used   int
	quota  int
}

// New returns a medium that holds at most quota bytes across all keys.
// A quota below 1 disables the limit.
func New(quota int) *Medium {
	return &Medium{
		values: make(map[string][]byte),
		quota:  quota,
	}
}

func (m *Medium) Load(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

func (m *Medium) Save(_ context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.used - len(m.values[key]) + len(payload)
	if m.quota > 0 && next > m.quota {
		return fmt.Errorf("save %s (%d bytes, quota %d): %w", key, len(payload), m.quota, store.ErrStorageFull)
	}

	value := make([]byte, len(payload))
	copy(value, payload)
	m.values[key] = value
	m.used = next
	return nil
}

func (m *Medium) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.used -= len(m.values[key])
	delete(m.values, key)
	return nil
}

// Used reports the bytes currently held.
func (m *Medium) Used() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.used
}

func (m *Medium) Close() error {
	return nil
}
