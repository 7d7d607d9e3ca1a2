package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"bandcal/internal/config"
	"bandcal/internal/model"
)

// SessionStorage persists the current session between runs.
type SessionStorage interface {
	// Load returns nil, nil when nothing is stored.
	Load(ctx context.Context) (*model.Session, error)
	Save(ctx context.Context, s *model.Session) error
	Remove(ctx context.Context) error
}

// MemoryStorage keeps the session for the life of the process.
type MemoryStorage struct {
	mu sync.RWMutex
	s  *model.Session
}

func NewMemoryStorage() *MemoryStorage { return &MemoryStorage{} }

func (m *MemoryStorage) Load(context.Context) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.Clone(), nil
}

func (m *MemoryStorage) Save(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	m.s = s.Clone()
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Remove(context.Context) error {
	m.mu.Lock()
	m.s = nil
	m.mu.Unlock()
	return nil
}

// FileStorage keeps the session as JSON in a 0600 file, so the CLI stays
// signed in across invocations.
type FileStorage struct {
	path string
	mu   sync.Mutex
}

func NewFileStorage(path string) *FileStorage { return &FileStorage{path: path} }

func (f *FileStorage) Load(context.Context) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if len(b) == 0 {
		return nil, nil
	}
	var s model.Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse session file %s: %w", f.path, err)
	}
	if s.AccessToken == "" {
		return nil, nil
	}
	return &s, nil
}

func (f *FileStorage) Save(_ context.Context, s *model.Session) error {
	if s == nil {
		return f.Remove(context.Background())
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return config.WriteFileAtomic(f.path, b)
}

func (f *FileStorage) Remove(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
