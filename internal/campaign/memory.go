package campaign

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps campaigns in process. It is the default store and the
// one tests build on.
type MemoryStore struct {
	mu        sync.RWMutex
	lastID    int64
	campaigns map[int64]Campaign
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{campaigns: make(map[int64]Campaign)}
}

func (s *MemoryStore) Create(_ context.Context, c Campaign) (Campaign, error) {
	if err := c.Validate(); err != nil {
		return Campaign{}, err
	}

	c.Keywords = NormalizeKeywords(c.Keywords)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastID++
	c.ID = s.lastID
	s.campaigns[c.ID] = c.clone()

	return c, nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.campaigns[id]
	if !ok {
		return Campaign{}, ErrNotFound
	}

	return c.clone(), nil
}

func (s *MemoryStore) List(_ context.Context) ([]Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Campaign, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		out = append(out, c.clone())
	}

	sortByID(out)

	return out, nil
}

func (s *MemoryStore) FindWithPositiveBalance(_ context.Context, keywords []string) ([]Campaign, error) {
	keywords = NormalizeKeywords(keywords)
	if len(keywords) == 0 {
		return []Campaign{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Campaign{}
	for _, c := range s.campaigns {
		if c.HasPositiveBalance() && c.MatchesAny(keywords) {
			out = append(out, c.clone())
		}
	}

	sortByID(out)

	return out, nil
}

func (s *MemoryStore) TryIncreaseSpending(_ context.Context, id int64, amount float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[id]
	if !ok {
		return false, ErrNotFound
	}

	if c.Spending+amount > c.Budget {
		return false, nil
	}

	c.Spending += amount
	s.campaigns[id] = c

	return true, nil
}

func sortByID(cs []Campaign) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].ID < cs[j].ID })
}
