package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
	ErrLocked    = errors.New("cache: key is locked")
)

// Service is a byte-oriented key/value store. Keys are namespaced by the
// implementation's prefix.
type Service interface {
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, keys ...string) error
	// MSet writes every value in one round trip. Either all keys are written or none.
	MSet(ctx context.Context, values map[string][]byte, expiration time.Duration) error
	// MGet returns the keys that exist; missing keys are absent from the map.
	MGet(ctx context.Context, keys ...string) (map[string][]byte, error)
	// TryLock takes key for owner unless someone holds it. The lock expires after ttl.
	TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	// Unlock releases key only while owner still holds it.
	Unlock(ctx context.Context, key, owner string) error
	Close() error
}

// WithLock runs fn while holding key under a fresh owner id. It fails with
// ErrLocked when someone else holds the key. A lock that expired while fn ran
// and was taken over is left alone.
func WithLock(ctx context.Context, c Service, key string, ttl time.Duration, fn func() error) error {
	owner := uuid.NewString()
	ok, err := c.TryLock(ctx, key, owner, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLocked
	}
	defer func() { _ = c.Unlock(context.WithoutCancel(ctx), key, owner) }()
	return fn()
}
