package artifact

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and single-process runs.
type MemoryStore struct {
	mu      sync.RWMutex
	bucket  string
	blobs   map[string][]byte
	newName NameFunc
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{
		bucket:  bucket,
		blobs:   make(map[string][]byte),
		newName: DefaultNameFunc,
	}
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

func (s *MemoryStore) Upload(ctx context.Context, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := s.newName(time.Now().UTC())

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[name]; ok {
		return "", ErrDuplicateKey
	}
	s.blobs[name] = append([]byte(nil), data...)
	return name, nil
}

func (s *MemoryStore) Download(_ context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[name]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Len returns the number of stored artifacts.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

var _ Store = (*MemoryStore)(nil)
