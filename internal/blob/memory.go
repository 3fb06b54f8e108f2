package blob

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Memory keeps objects in process.
type Memory struct {
	mu      sync.Mutex
	objects map[string]memObject

	// FailPut and FailDelete, when set, are returned by Put and Delete.
	FailPut    error
	FailDelete error
}

type memObject struct {
	contentType string
	data        []byte
}

// NewMemory creates an empty blob store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memObject)}
}

func (m *Memory) Put(ctx context.Context, up Upload) (Object, error) {
	m.mu.Lock()
	fail := m.FailPut
	m.mu.Unlock()
	if fail != nil {
		return Object{}, storageError(ctx, 0, fail)
	}
	data, err := io.ReadAll(withProgress(up.Body, up.Size, up.Progress))
	if err != nil {
		return Object{}, storageError(ctx, 0, err)
	}
	if err := ctx.Err(); err != nil {
		return Object{}, storageError(ctx, 0, err)
	}
	m.mu.Lock()
	m.objects[up.Path] = memObject{contentType: up.ContentType, data: data}
	m.mu.Unlock()
	return Object{Path: up.Path, URL: "memory://" + up.Path}, nil
}

func (m *Memory) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDelete != nil {
		return storageError(ctx, 0, fmt.Errorf("delete %s: %w", path, m.FailDelete))
	}
	delete(m.objects, path)
	return nil
}

// Has reports whether an object exists at path.
func (m *Memory) Has(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// Bytes returns the stored content at path.
func (m *Memory) Bytes(path string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[path].data
}
