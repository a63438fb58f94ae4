package profiles

import (
	"context"
	"sync"

	"github.com/okian/matchlearn/internal/domain/model"
)

// MemoryStore keeps profiles in a map.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]model.Profile
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]model.Profile)}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, id string) (model.Profile, error) {
	if err := ctx.Err(); err != nil {
		return model.Profile{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return model.Profile{}, notFound(id)
	}
	return p, nil
}

// GetMany implements Store.
func (s *MemoryStore) GetMany(ctx context.Context, ids []string) (map[string]model.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.Profile, len(ids))
	for _, id := range ids {
		if p, ok := s.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, profiles ...model.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, p := range profiles {
		if err := validate(p); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range profiles {
		s.profiles[p.ID] = p
	}
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, id)
	return nil
}

// Len returns the number of stored profiles.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
