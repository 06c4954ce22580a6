package character

import (
	"context"
	"sync"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/types"
)

// MemoryStore keeps characters in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items []types.Character
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) List(ctx context.Context) ([]types.Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Character, len(s.items))
	copy(out, s.items)
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (types.Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.items[i], nil
	}
	return types.Character{}, notFound(id)
}

// Save creates c when it has no id. Otherwise it merges c into the stored
// character with that id, or inserts it when none exists.
func (s *MemoryStore) Save(ctx context.Context, c types.Character) (types.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = NewID()
		if err := validate(c); err != nil {
			return types.Character{}, err
		}
		s.items = append(s.items, c)
		return c, nil
	}

	i := s.indexLocked(c.ID)
	if i < 0 {
		if err := validate(c); err != nil {
			return types.Character{}, err
		}
		s.items = append(s.items, c)
		return c, nil
	}
	merged := Merge(s.items[i], c)
	if err := validate(merged); err != nil {
		return types.Character{}, err
	}
	s.items[i] = merged
	return merged, nil
}

// Delete removes id. Deleting an unknown id is not an error.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		s.items = append(s.items[:i], s.items[i+1:]...)
	}
	return nil
}

func (s *MemoryStore) indexLocked(id string) int {
	for i, c := range s.items {
		if c.ID == id {
			return i
		}
	}
	return -1
}
