package docstore

import (
	"context"
	"sync"
)

// MemoryBackend keeps collections in process memory. Documents are stored in
// encoded form so readers always receive independent copies.
type MemoryBackend struct {
	mu          sync.Mutex
	collections map[string]*MemoryStore
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *MemoryBackend {
	return &MemoryBackend{collections: make(map[string]*MemoryStore)}
}

// Collection returns the named collection, creating it on first use.
func (b *MemoryBackend) Collection(name string) Store {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.collections[name]
	if !ok {
		c = &MemoryStore{name: name, rows: make(map[string][]byte)}
		b.collections[name] = c
	}
	return c
}

func (b *MemoryBackend) Migrate(context.Context) error { return nil }

func (b *MemoryBackend) Close() error { return nil }

// MemoryStore is one in-memory collection.
type MemoryStore struct {
	name  string
	mu    sync.RWMutex
	rows  map[string][]byte
	order []string // insertion order for deterministic iteration
}

func (s *MemoryStore) Name() string { return s.name }

func (s *MemoryStore) all() ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Document, 0, len(s.order))
	for _, k := range s.order {
		doc, err := decode(s.rows[k])
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (s *MemoryStore) Query(_ context.Context, c Criteria, fields []string) ([]Document, error) {
	docs, err := s.all()
	if err != nil {
		return nil, err
	}
	return filter(docs, c, fields), nil
}

func (s *MemoryStore) Distinct(ctx context.Context, field string, c Criteria) ([]any, error) {
	docs, err := s.Query(ctx, c, nil)
	if err != nil {
		return nil, err
	}
	return distinctValues(docs, field), nil
}

func (s *MemoryStore) Count(ctx context.Context, c Criteria) (int, error) {
	docs, err := s.Query(ctx, c, nil)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

func (s *MemoryStore) RemoveMany(_ context.Context, c Criteria) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	kept := s.order[:0]
	for _, k := range s.order {
		doc, err := decode(s.rows[k])
		if err != nil {
			return removed, err
		}
		if c.Matches(doc) {
			delete(s.rows, k)
			removed++
			continue
		}
		kept = append(kept, k)
	}
	s.order = kept
	return removed, nil
}

func (s *MemoryStore) BulkUpsert(_ context.Context, docs []Document, keys []string) (int64, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	type row struct {
		key string
		raw []byte
	}
	rows := make([]row, 0, len(docs))
	for _, d := range docs {
		k, err := upsertKey(d, keys)
		if err != nil {
			return 0, err
		}
		_, raw, err := normalize(d)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row{key: k, raw: raw})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		if _, exists := s.rows[r.key]; !exists {
			s.order = append(s.order, r.key)
		}
		s.rows[r.key] = r.raw
	}
	return int64(len(rows)), nil
}

func (s *MemoryStore) EnsureIndex(context.Context, string) error { return nil }
