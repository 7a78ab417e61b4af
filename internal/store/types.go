package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
)

// Storage is a byte-oriented key value backend with expiring keys.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, expiresIn time.Duration) error
	Delete(ctx context.Context, key string) error
	// Take returns the value and removes the key in one step, so only one
	// caller can ever observe a given value.
	Take(ctx context.Context, key string) ([]byte, error)
}

// Store keeps single-use JSON records: written once, read back by Take.
type Store[T any] interface {
	Set(ctx context.Context, key string, val T, expiresIn time.Duration) error
	Take(ctx context.Context, key string) (T, error)
}
