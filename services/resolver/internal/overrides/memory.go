package overrides

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps overrides in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[Key]Override
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[Key]Override), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, k Key) (Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.rows[k.Normalize()]
	if !ok {
		return Override{}, ErrNotFound
	}
	return o, nil
}

func (s *MemoryStore) Put(_ context.Context, o Override) (Override, error) {
	o, err := prepare(o)
	if err != nil {
		return Override{}, err
	}
	o.UpdatedAt = s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[o.Key] = o
	return o, nil
}

func (s *MemoryStore) Delete(_ context.Context, k Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k = k.Normalize()
	if _, ok := s.rows[k]; !ok {
		return ErrNotFound
	}
	delete(s.rows, k)
	return nil
}

// List returns overrides for source (all sources when empty) ordered by
// kind then catalog id.
func (s *MemoryStore) List(_ context.Context, source string) ([]Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	source = Key{Source: source}.Normalize().Source
	out := make([]Override, 0, len(s.rows))
	for k, o := range s.rows {
		if source == "" || k.Source == source {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].CatalogID < out[j].CatalogID
	})
	return out, nil
}
