package store

import (
	"context"
	"sync"

	"livepreview/internal/models"
)

type memoryEntry struct {
	mu  sync.RWMutex
	rec *models.Preview
}

// MemoryStore keeps records for the lifetime of the process. Each record has
// its own lock, so writers on different ids never contend.
type MemoryStore struct {
	entries sync.Map // id -> *memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(ctx context.Context, p *models.Preview) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, loaded := s.entries.LoadOrStore(p.ID, &memoryEntry{rec: p.Clone()}); loaded {
		return ErrDuplicateKey
	}
	return nil
}

func (s *MemoryStore) Read(ctx context.Context, id string) (*models.Preview, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := s.load(id)
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rec.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, patch Patch) (*models.Preview, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := s.load(id)
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	merged := e.rec.Clone()
	if err := apply(merged, patch, now()); err != nil {
		return nil, err
	}
	e.rec = merged
	return merged.Clone(), nil
}

func (s *MemoryStore) load(id string) (*memoryEntry, bool) {
	v, ok := s.entries.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*memoryEntry), true
}
