package store

import (
	"context"
	"encoding/json"
	"time"
)

type store[T any] struct {
	storage Storage
}

func (s *store[T]) Set(ctx context.Context, key string, val T, expiresIn time.Duration) error {
	data, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return s.storage.Set(ctx, key, data, expiresIn)
}

func (s *store[T]) Take(ctx context.Context, key string) (T, error) {
	var obj T
	data, err := s.storage.Take(ctx, key)
	if err != nil {
		return obj, err
	}
	err = json.Unmarshal(data, &obj)
	return obj, err
}

func New[T any](storage Storage, keyPrefix string) Store[T] {
	return &store[T]{
		storage: StorageWithPrefix(storage, keyPrefix),
	}
}
