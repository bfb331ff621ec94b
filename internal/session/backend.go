package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JaimeStill/tayyib/pkg/storage"
)

// Backend persists encoded session records keyed by session id.
type Backend interface {
	// Read returns the record for id, or ErrNotFound.
	Read(ctx context.Context, id string) ([]byte, error)
	Write(ctx context.Context, id string, data []byte) error
	// Delete removes the record for id. Deleting an absent record succeeds.
	Delete(ctx context.Context, id string) error
}

type memoryBackend struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryBackend creates a process-local Backend.
func NewMemoryBackend() Backend {
	return &memoryBackend{records: make(map[string][]byte)}
}

func (m *memoryBackend) Read(_ context.Context, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(data), nil
}

func (m *memoryBackend) Write(_ context.Context, id string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = bytes.Clone(data)
	return nil
}

func (m *memoryBackend) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

type blobBackend struct {
	store storage.System
}

// NewBlobBackend creates a Backend that stores records as JSON blobs
// under sessions/.
func NewBlobBackend(store storage.System) Backend {
	return &blobBackend{store: store}
}

func (b *blobBackend) Read(ctx context.Context, id string) ([]byte, error) {
	data, err := storage.ReadAll(ctx, b.store, blobKey(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}
	return data, nil
}

func (b *blobBackend) Write(ctx context.Context, id string, data []byte) error {
	if err := b.store.Upload(ctx, blobKey(id), bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("write session %s: %w", id, err)
	}
	return nil
}

func (b *blobBackend) Delete(ctx context.Context, id string) error {
	err := b.store.Delete(ctx, blobKey(id))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

func blobKey(id string) string {
	return "sessions/" + id + ".json"
}
