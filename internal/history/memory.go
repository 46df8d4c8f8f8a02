package history

import (
	"context"
	"sync"
	"time"

	"github.com/stupiduntilnot/rdmochat/internal/message"
)

// MemoryStore keeps history in process memory. It is lost on restart and is
// meant for single-process deployments and tests. Callers share one instance
// by passing it around; there is no package-level state.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[Key]Record
	now     func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[Key]Record{}, now: time.Now}
}

func (s *MemoryStore) HasHistory(_ context.Context, key Key) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[key]
	return ok, nil
}

func (s *MemoryStore) GetHistory(_ context.Context, key Key) ([]message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return message.Clone(s.records[key].Messages), nil
}

func (s *MemoryStore) SetHistory(_ context.Context, key Key, msgs []message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	rec, ok := s.records[key]
	if !ok {
		rec = Record{Key: key, Created: now}
	}
	rec.Messages = message.Clone(msgs)
	rec.Updated = now
	s.records[key] = rec
	return nil
}

func (s *MemoryStore) ResetHistory(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// Record returns the stored record for key.
func (s *MemoryStore) Record(key Key) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return Record{}, false
	}
	rec.Messages = message.Clone(rec.Messages)
	return rec, true
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
