package store

import (
	"sync"

	"github.com/amishk599/feedsync/internal/model"
)

// MemoryStore is the ordered, deduplicated collection of known jobs.
// Records keep the position of their first insertion; later writes for the
// same ID replace the entry in place.
type MemoryStore struct {
	mu      sync.RWMutex
	records []model.JobRecord
	index   map[string]int // job ID -> position in records
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: make(map[string]int)}
}

// UpsertMany replaces records whose ID is already present and appends the
// rest in input order. Records without an ID are dropped and counted, never
// failing the whole batch.
func (s *MemoryStore) UpsertMany(records []model.JobRecord) model.UpsertResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res model.UpsertResult
	// A repeated ID inside one batch must not be reported as new twice.
	appendedAt := make(map[string]int)
	for _, r := range records {
		if r.ID == "" {
			res.Dropped++
			continue
		}
		if pos, ok := s.index[r.ID]; ok {
			s.records[pos] = r
			if i, fresh := appendedAt[r.ID]; fresh {
				res.Appended[i] = r
			} else {
				res.Replaced++
			}
			continue
		}
		s.index[r.ID] = len(s.records)
		s.records = append(s.records, r)
		appendedAt[r.ID] = len(res.Appended)
		res.Appended = append(res.Appended, r)
	}
	return res
}

// All returns a copy of the ordered collection.
func (s *MemoryStore) All() []model.JobRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.JobRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Count returns the number of records.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Get returns the record with the given ID.
func (s *MemoryStore) Get(id string) (model.JobRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.index[id]
	if !ok {
		return model.JobRecord{}, false
	}
	return s.records[pos], true
}

// Remove deletes the record with the given ID, keeping the relative order of
// the others. It reports whether a record was removed.
func (s *MemoryStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.index[id]
	if !ok {
		return false
	}
	s.records = append(s.records[:pos], s.records[pos+1:]...)
	delete(s.index, id)
	for i := pos; i < len(s.records); i++ {
		s.index[s.records[i].ID] = i
	}
	return true
}
