package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// Memory keeps objects in a map. It backs tests and single-process runs.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Store copies r into memory.
func (m *Memory) Store(ctx context.Context, key string, r io.Reader) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read object: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return key, nil
}

// Open returns a reader over a copy of the object.
func (m *Memory) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[location]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

// Delete removes the object.
func (m *Memory) Delete(ctx context.Context, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, location)
	return nil
}

// Exists reports whether the object exists.
func (m *Memory) Exists(ctx context.Context, location string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[location]
	return ok, nil
}

// Presign returns a memory:// URL carrying the expiry.
func (m *Memory) Presign(ctx context.Context, location string, ttl time.Duration) (string, error) {
	if ok, _ := m.Exists(ctx, location); !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, location)
	}
	return fmt.Sprintf("memory://%s?expires=%d", location, time.Now().Add(ttl).Unix()), nil
}

// Keys returns the stored keys.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}
