package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"SpikeWatch/internal/domain/models"
	applogger "SpikeWatch/pkg/logger"
)

// FileStateStore keeps each state document in <dir>/<name>.json. Every file is
// replaced atomically through a temp file and a rename.
type FileStateStore struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
	l   *applogger.Logger
}

func NewFileStateStore(dir string, l *applogger.Logger) (*FileStateStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileStateStore{dir: dir, now: time.Now, l: l.Component("file_state_store")}, nil
}

// SetClock replaces time.Now for document timestamps.
func (s *FileStateStore) SetClock(now func() time.Time) { s.now = now }

func (s *FileStateStore) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// LoadState returns nil when no document exists yet. Legacy documents are
// migrated and rewritten in the current layout.
func (s *FileStateStore) LoadState(ctx context.Context) (*models.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw := make(map[string][]byte, len(documentNames))
	for _, name := range documentNames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := os.ReadFile(s.path(name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		raw[name] = b
	}
	if len(raw) == 0 {
		return nil, nil
	}

	st, legacy, err := decodeState(raw)
	if err != nil {
		return nil, err
	}
	if len(legacy) > 0 {
		s.l.Warn("migrating legacy state documents", applogger.Strings("documents", legacy))
		docs, err := encodeState(st, s.now(), true)
		if err != nil {
			return nil, err
		}
		if err := s.write(subset(docs, legacy)); err != nil {
			// the loaded state is still usable; the next save rewrites everything
			s.l.Error("rewrite migrated state failed", applogger.Error(err))
		}
	}
	return st, nil
}

func (s *FileStateStore) SaveState(ctx context.Context, st *models.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	docs, err := encodeState(st, s.now(), true)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(docs)
}

func (s *FileStateStore) write(docs map[string][]byte) error {
	for _, name := range documentNames {
		b, ok := docs[name]
		if !ok {
			continue
		}
		if err := writeAtomic(s.path(name), b); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer os.Remove(name) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(name, path)
}
