package repository

import (
	"context"
	"fmt"
	"time"

	"SpikeWatch/internal/domain/models"
	"SpikeWatch/pkg/cache"
	applogger "SpikeWatch/pkg/logger"
)

const stateLockTTL = 30 * time.Second

// RedisStateStore keeps the state documents as keys under a namespace. All
// documents are written in one transaction; concurrent savers are refused
// through a short-lived lock.
type RedisStateStore struct {
	c         cache.Service
	namespace string
	now       func() time.Time
	l         *applogger.Logger
}

func NewRedisStateStore(c cache.Service, namespace string, l *applogger.Logger) *RedisStateStore {
	return &RedisStateStore{
		c:         c,
		namespace: namespace,
		now:       time.Now,
		l:         l.Component("redis_state_store"),
	}
}

func (s *RedisStateStore) SetClock(now func() time.Time) { s.now = now }

func (s *RedisStateStore) key(name string) string { return s.namespace + ":" + name }

func (s *RedisStateStore) LoadState(ctx context.Context) (*models.State, error) {
	keys := make([]string, len(documentNames))
	for i, name := range documentNames {
		keys[i] = s.key(name)
	}
	found, err := s.c.MGet(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if len(found) == 0 {
		return nil, nil
	}

	raw := make(map[string][]byte, len(found))
	for _, name := range documentNames {
		if b, ok := found[s.key(name)]; ok {
			raw[name] = b
		}
	}
	st, legacy, err := decodeState(raw)
	if err != nil {
		return nil, err
	}
	if len(legacy) > 0 {
		s.l.Warn("migrating legacy state documents", applogger.Strings("documents", legacy))
		docs, err := encodeState(st, s.now(), false)
		if err != nil {
			return nil, err
		}
		if err := s.c.MSet(ctx, s.keyed(subset(docs, legacy)), 0); err != nil {
			s.l.Error("rewrite migrated state failed", applogger.Error(err))
		}
	}
	return st, nil
}

func (s *RedisStateStore) SaveState(ctx context.Context, st *models.State) error {
	docs, err := encodeState(st, s.now(), false)
	if err != nil {
		return err
	}
	err = cache.WithLock(ctx, s.c, s.key("lock"), stateLockTTL, func() error {
		return s.c.MSet(ctx, s.keyed(docs), 0)
	})
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (s *RedisStateStore) keyed(docs map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(docs))
	for name, b := range docs {
		out[s.key(name)] = b
	}
	return out
}
