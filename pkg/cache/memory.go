package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value    []byte
	expireAt time.Time // zero means no expiry
}

// MemoryCache implements Service in process. Expired keys are dropped lazily on access.
type MemoryCache struct {
	mu     sync.Mutex
	data   map[string]memoryItem
	prefix string
	now    func() time.Time
}

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		Prefix: "spikewatch",
		Now:    time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &MemoryCache{
		data:   make(map[string]memoryItem),
		prefix: cfg.Prefix,
		now:    cfg.Now,
	}
}

func (mc *MemoryCache) Set(_ context.Context, key string, value []byte, expiration time.Duration) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.setLocked(key, value, expiration)
	return nil
}

func (mc *MemoryCache) setLocked(key string, value []byte, expiration time.Duration) {
	item := memoryItem{value: append([]byte(nil), value...)}
	if expiration > 0 {
		item.expireAt = mc.now().Add(expiration)
	}
	mc.data[mc.wrapKey(key)] = item
}

func (mc *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	v, ok := mc.getLocked(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (mc *MemoryCache) getLocked(key string) ([]byte, bool) {
	k := mc.wrapKey(key)
	item, ok := mc.data[k]
	if !ok {
		return nil, false
	}
	if !item.expireAt.IsZero() && !mc.now().Before(item.expireAt) {
		delete(mc.data, k)
		return nil, false
	}
	return append([]byte(nil), item.value...), true
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	for _, key := range keys {
		delete(mc.data, mc.wrapKey(key))
	}
	return nil
}

func (mc *MemoryCache) MSet(_ context.Context, values map[string][]byte, expiration time.Duration) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	for key, value := range values {
		mc.setLocked(key, value, expiration)
	}
	return nil
}

func (mc *MemoryCache) MGet(_ context.Context, keys ...string) (map[string][]byte, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if v, ok := mc.getLocked(key); ok {
			out[key] = v
		}
	}
	return out, nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, ok := mc.getLocked(key); ok {
		return false, nil
	}
	mc.setLocked(key, []byte(owner), ttl)
	return true, nil
}

func (mc *MemoryCache) Unlock(_ context.Context, key, owner string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if v, ok := mc.getLocked(key); ok && string(v) == owner {
		delete(mc.data, mc.wrapKey(key))
	}
	return nil
}

// Close is a no-op.
func (mc *MemoryCache) Close() error { return nil }

func (mc *MemoryCache) wrapKey(key string) string {
	return mc.prefix + ":" + key
}
