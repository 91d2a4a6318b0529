package order

import (
	"sync"

	"github.com/iliamunaev/orderdesk/internal/model"
)

// Store holds the current snapshot of one business. Every read returns
// copies; the slice held here is never handed out.
type Store struct {
	mu     sync.RWMutex
	orders []model.Order
	index  map[string]int

	// version counts confirmed status changes. confirmed holds the ones a
	// snapshot issued before them may not have seen yet.
	version   uint64
	confirmed map[string]confirmation
}

type confirmation struct {
	status  model.Status
	version uint64
}

func NewStore() *Store {
	return &Store{
		index:     make(map[string]int),
		confirmed: make(map[string]confirmation),
	}
}

// Version returns the number of confirmed status changes so far.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Replace swaps in a snapshot whose fetch was issued at Version since.
// Later duplicates of an id are dropped. A status confirmed after since
// overrides the snapshot's copy of that order. It returns the ids whose
// status was kept.
func (s *Store) Replace(orders []model.Order, since uint64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.confirmed {
		if c.version <= since {
			delete(s.confirmed, id)
		}
	}

	var kept []string
	next := make([]model.Order, 0, len(orders))
	index := make(map[string]int, len(orders))
	for _, o := range orders {
		if _, dup := index[o.ID]; dup {
			continue
		}
		o = o.Clone()
		if c, ok := s.confirmed[o.ID]; ok && o.Status != c.status {
			o.Status = c.status
			kept = append(kept, o.ID)
		}
		index[o.ID] = len(next)
		next = append(next, o)
	}
	s.orders = next
	s.index = index
	return kept
}

func (s *Store) Get(id string) (model.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return model.Order{}, false
	}
	return s.orders[i].Clone(), true
}

// SetStatus records a status the remote confirmed and updates the order in
// place. It reports false if id is not in the snapshot.
func (s *Store) SetStatus(id string, st model.Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	s.confirmed[id] = confirmation{status: st, version: s.version}
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.orders[i].Status = st
	return true
}

// Orders returns the snapshot in source order.
func (s *Store) Orders() []model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Order, len(s.orders))
	for i, o := range s.orders {
		out[i] = o.Clone()
	}
	return out
}

// Pending returns the orders awaiting acceptance.
func (s *Store) Pending() []model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Order
	for _, o := range s.orders {
		if o.Status == model.StatusPending {
			out = append(out, o.Clone())
		}
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}
