package snapshot

import (
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// MemStore holds snapshots in memory. Used when persistence is disabled
// and as a stand-in for the bolt store in tests.
type MemStore struct {
	mu      sync.Mutex
	states  map[string][]byte
	records map[string]Record
}

func NewMemStore() *MemStore {
	return &MemStore{
		states:  make(map[string][]byte),
		records: make(map[string]Record),
	}
}

func (s *MemStore) Save(documentID string, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(state))
	copy(cp, state)
	s.states[documentID] = cp
	s.records[documentID] = Record{
		DocumentID: documentID,
		SavedAt:    time.Now().UTC(),
		Checksum:   xxhash.Sum64(state),
		Size:       len(state),
	}
	return nil
}

func (s *MemStore) Load(documentID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[documentID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(state))
	copy(cp, state)
	return cp, nil
}

func (s *MemStore) Delete(documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, documentID)
	delete(s.records, documentID)
	return nil
}

func (s *MemStore) List() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].DocumentID < records[j].DocumentID })
	return records, nil
}

func (s *MemStore) Close() error { return nil }
