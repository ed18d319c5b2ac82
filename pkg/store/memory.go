package store

import (
	"context"
	"sync"
	"time"

	"github.com/starsdaisuki/stargate/pkg/model"
)

// MemoryStore keeps profiles in process memory.
type MemoryStore struct {
	mu  sync.Mutex
	c   collection
	now func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore(profiles ...model.Profile) *MemoryStore {
	s := &MemoryStore{now: time.Now}
	for _, p := range profiles {
		if p.IsActive {
			s.c.Active = p.ID
		}
		p.IsActive = false
		s.c.Profiles = append(s.c.Profiles, p)
	}
	return s
}

func (s *MemoryStore) List(_ context.Context) ([]model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.list(), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.get(id)
}

func (s *MemoryStore) Put(_ context.Context, p *model.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.put(p)
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.remove(id)
}

func (s *MemoryStore) SetActive(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.setActive(id, s.now())
}

func (s *MemoryStore) ActiveID(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Active, nil
}
