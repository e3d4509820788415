package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/upilink/internal/models"
)

type memoryEntry struct {
	mu  sync.RWMutex
	txn models.Transaction
}

// MemoryStore keeps transactions in process memory. The map lock only guards the
// set of entries; each entry carries its own lock, so writes to one record never
// wait on another.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry)}
}

func (s *MemoryStore) entry(id string) (*memoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

func (s *MemoryStore) Create(_ context.Context, txn *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[txn.ID]; exists {
		return ErrDuplicateID
	}
	s.entries[txn.ID] = &memoryEntry{txn: *txn}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.Transaction, error) {
	e, ok := s.entry(id)
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.RLock()
	txn := e.txn
	e.mu.RUnlock()
	return &txn, nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, fn Mutator) (*models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := s.entry(id)
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	working := e.txn
	changed, err := fn(&working)
	if err != nil {
		return nil, err
	}
	if changed {
		e.txn = working
	}
	out := e.txn
	return &out, nil
}

func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]models.Transaction, error) {
	all := s.snapshot()
	items := make([]models.Transaction, 0, len(all))
	for _, e := range all {
		e.mu.RLock()
		txn := e.txn
		e.mu.RUnlock()
		if matches(&txn, filter) {
			items = append(items, txn)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return paginate(items, filter.Offset, filter.Limit), nil
}

func (s *MemoryStore) SweepExpired(ctx context.Context, cutoff, at time.Time) ([]string, error) {
	expire := expireIfStale(cutoff, at)
	var expired []string
	for id, e := range s.snapshot() {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		e.mu.Lock()
		changed, _ := expire(&e.txn)
		e.mu.Unlock()
		if changed {
			expired = append(expired, id)
		}
	}
	sort.Strings(expired)
	return expired, nil
}

func (s *MemoryStore) snapshot() map[string]*memoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*memoryEntry, len(s.entries))
	for id, e := range s.entries {
		out[id] = e
	}
	return out
}
