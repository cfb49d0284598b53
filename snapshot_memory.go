package homepulse

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemorySnapshotBackend keeps snapshots in process memory. It is used in
// tests and for hosts that only want the most recent analyses available
// in-process.
type MemorySnapshotBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemorySnapshotBackend creates an empty in-memory backend.
func NewMemorySnapshotBackend() *MemorySnapshotBackend {
	return &MemorySnapshotBackend{data: make(map[string][]byte)}
}

// Read reads a snapshot.
func (m *MemorySnapshotBackend) Read(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[key]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Write stores a snapshot.
func (m *MemorySnapshotBackend) Write(ctx context.Context, key string, data []byte) error {
	stored := make([]byte, len(data))
	copy(stored, data)
	m.mu.Lock()
	m.data[key] = stored
	m.mu.Unlock()
	return nil
}

// Delete removes a snapshot.
func (m *MemorySnapshotBackend) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// List returns all keys matching a prefix, sorted ascending.
func (m *MemorySnapshotBackend) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close is a no-op for the in-memory backend.
func (m *MemorySnapshotBackend) Close() error { return nil }
