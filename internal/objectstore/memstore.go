package objectstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemStore is an in-memory ObjectStore used by handler tests, standing in
// for a real S3-compatible bucket the same way rtdb.MemStore stands in for
// Redis.
type MemStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (m *MemStore) Upload(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.data[key] = cp
	return nil
}

func (m *MemStore) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("objectstore: %s not found", key)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (m *MemStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemStore) ListKeys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	keys, _ := m.ListKeys(ctx, prefix)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return len(keys), nil
}

func (m *MemStore) ListAndPresign(ctx context.Context, prefix string) ([]PresignedFile, error) {
	keys, err := m.ListKeys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	files := make([]PresignedFile, 0, len(keys))
	for _, k := range keys {
		files = append(files, PresignedFile{Name: k, URL: "https://example-presigned.invalid/" + k})
	}
	return files, nil
}
