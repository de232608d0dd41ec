package store

import (
	"context"
	"sync"
)

// InMemoryStore keeps records in process memory.
type InMemoryStore struct {
	sessions map[string][]*Record
	mu       sync.RWMutex
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string][]*Record)}
}

// Append implements Recorder.
func (s *InMemoryStore) Append(ctx context.Context, rec *Record) error {
	if err := prepare(rec); err != nil {
		return err
	}
	cp := *rec

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[rec.SessionID] = append(s.sessions[rec.SessionID], &cp)
	return nil
}

// History implements HistoryReader. Unknown sessions have no records.
func (s *InMemoryStore) History(ctx context.Context, sessionID string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.sessions[sessionID]
	out := make([]*Record, len(records))
	for i, r := range records {
		cp := *r
		out[i] = &cp
	}
	return out, nil
}

// Count returns the number of records across all sessions.
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, records := range s.sessions {
		n += len(records)
	}
	return n
}

// Ping implements Store.
func (s *InMemoryStore) Ping(ctx context.Context) error { return nil }

// Close implements Store.
func (s *InMemoryStore) Close() error { return nil }
