package orchestrator

import "epg-encoder/internal/epgstation"

// Store is the persistence abstraction for item run state.
// The Repository uses Store for all reads and writes and does its own locking.
type Store interface {
	GetItem(id epgstation.RecordedID) (*ItemStatus, bool)
	SetItem(st *ItemStatus)
	// ListItemIDs returns ids in the order they were first stored.
	ListItemIDs() []epgstation.RecordedID
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	items map[epgstation.RecordedID]*ItemStatus
	order []epgstation.RecordedID
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		items: make(map[epgstation.RecordedID]*ItemStatus),
	}
}

// GetItem implements Store.GetItem.
func (s *InMemoryStore) GetItem(id epgstation.RecordedID) (*ItemStatus, bool) {
	st, ok := s.items[id]
	return st, ok
}

// SetItem implements Store.SetItem.
func (s *InMemoryStore) SetItem(st *ItemStatus) {
	id := st.Item.RecordedID
	if _, ok := s.items[id]; !ok {
		s.order = append(s.order, id)
	}
	s.items[id] = st
}

// ListItemIDs implements Store.ListItemIDs.
func (s *InMemoryStore) ListItemIDs() []epgstation.RecordedID {
	ids := make([]epgstation.RecordedID, len(s.order))
	copy(ids, s.order)
	return ids
}
