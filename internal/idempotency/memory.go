package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. Used by tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Claim(_ context.Context, key, token string, now, staleBefore time.Time) (bool, Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if ok && !(rec.Pending() && !staleBefore.IsZero() && rec.ClaimedAt.Before(staleBefore)) {
		return false, rec, nil
	}
	s.records[key] = Record{Key: key, Token: token, Status: StatusPending, ClaimedAt: now}
	return true, Record{}, nil
}

func (s *MemoryStore) Finalize(_ context.Context, key, token string, status int, body []byte, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || !rec.Pending() || rec.Token != token {
		return ErrClaimLost
	}
	rec.Status = status
	rec.Body = append([]byte(nil), body...)
	rec.FinalizedAt = now
	s.records[key] = rec
	return nil
}

// Get returns the record for key.
func (s *MemoryStore) Get(key string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	return rec, ok
}
