package store

import (
	"context"
	"sync"
)

// memoryStore is a dependency-free backend used by tests and by deployments
// that accept losing durable schedules across a restart. It satisfies the
// same atomicity contract as jetstreamStore (single writer, in-process).
type memoryStore struct {
	mu   sync.Mutex
	data map[string]Record
}

// OpenMemory returns an in-process Store. Nothing it holds survives
// process exit; callers that need real durability should use OpenJetStream.
func OpenMemory() Store {
	return &memoryStore{data: map[string]Record{}}
}

func (s *memoryStore) Put(_ context.Context, id string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = rec
	return nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

func (s *memoryStore) Iterate(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]Entry, 0, len(s.data))
	for id, rec := range s.data {
		entries = append(entries, Entry{ID: id, Record: rec})
	}
	return entries, nil
}

func (s *memoryStore) Close() error { return nil }
