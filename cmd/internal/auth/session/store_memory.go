package session

import (
	"context"
	"sync"
)

// MemoryRecordStore keeps the record in process memory.
// It backs tests and the ephemeral "memory" store mode.
type MemoryRecordStore struct {
	mu  sync.Mutex
	rec *Record
}

// NewMemoryRecordStore returns an empty store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{}
}

// NewMemoryRecordStoreWith returns a store pre-seeded with rec.
func NewMemoryRecordStoreWith(rec Record) *MemoryRecordStore {
	r := rec
	return &MemoryRecordStore{rec: &r}
}

func (s *MemoryRecordStore) Load(_ context.Context) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rec == nil {
		return Record{}, ErrNoRecord
	}
	return checkPair(s.rec.Token, s.rec.Profile, s.rec.Token != "", s.rec.Profile != "")
}

func (s *MemoryRecordStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := rec
	s.rec = &r
	return nil
}

func (s *MemoryRecordStore) Erase(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rec = nil
	return nil
}

func (s *MemoryRecordStore) Close() error { return nil }
