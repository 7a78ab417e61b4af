package store

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/storage/memory/v2"
)

// MemoryStorage keeps state in process memory. It is meant for single
// instance deployments and tests; pending authorizations do not survive a
// restart.
type MemoryStorage struct {
	mu  sync.Mutex
	mem *memory.Storage
}

func (s *MemoryStorage) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.mem.Get(key)
	if err != nil {
		return nil, err
	}
	if val == nil {
		return nil, ErrNotFound
	}
	return val, nil
}

func (s *MemoryStorage) Set(ctx context.Context, key string, val []byte, expiresIn time.Duration) error {
	if expiresIn < 0 {
		expiresIn = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mem.Set(key, val, expiresIn)
}

func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, err := s.mem.Get(key)
	if err != nil {
		return err
	}
	if val == nil {
		return ErrNotFound
	}
	return s.mem.Delete(key)
}

func (s *MemoryStorage) Take(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, err := s.mem.Get(key)
	if err != nil {
		return nil, err
	}
	if val == nil {
		return nil, ErrNotFound
	}
	if err := s.mem.Delete(key); err != nil {
		return nil, err
	}
	return val, nil
}

func (s *MemoryStorage) Close() error {
	return s.mem.Close()
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		mem: memory.New(memory.Config{GCInterval: time.Minute}),
	}
}
