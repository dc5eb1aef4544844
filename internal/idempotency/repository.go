package idempotency

import (
	"context"
	"sync"
	"time"
)

type scopedKey struct {
	scope, key string
}

// InMemoryStore implements Store in process memory. Expired records are
// invisible to Get and are reclaimed by DeleteExpired.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[scopedKey]*Record
	expiry  time.Duration
	now     func() time.Time
}

// NewInMemoryStore creates an InMemoryStore. A non-positive expiry uses
// DefaultExpiry.
func NewInMemoryStore(expiry time.Duration) *InMemoryStore {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &InMemoryStore{
		records: make(map[scopedKey]*Record),
		expiry:  expiry,
		now:     time.Now,
	}
}

func (s *InMemoryStore) expired(rec *Record) bool {
	return s.now().Sub(rec.CreatedAt) >= s.expiry
}

// Get returns the live record for (scope, key).
func (s *InMemoryStore) Get(_ context.Context, scope, key string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[scopedKey{scope, key}]
	if !ok || s.expired(rec) {
		return nil, ErrKeyNotFound
	}
	copied := *rec
	return &copied, nil
}

// Reserve stores rec unless a live record exists for its key.
func (s *InMemoryStore) Reserve(_ context.Context, rec *Record) error {
	if err := ValidateKey(rec.Key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := scopedKey{rec.Scope, rec.Key}
	if existing, ok := s.records[k]; ok && !s.expired(existing) {
		return ErrKeyExists
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	copied := *rec
	s.records[k] = &copied
	return nil
}

// Complete overwrites the record for rec's key.
func (s *InMemoryStore) Complete(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	copied := *rec
	s.records[scopedKey{rec.Scope, rec.Key}] = &copied
	return nil
}

// Release deletes the record for (scope, key).
func (s *InMemoryStore) Release(_ context.Context, scope, key string) error {
	s.mu.Lock()
	delete(s.records, scopedKey{scope, key})
	s.mu.Unlock()
	return nil
}

// DeleteExpired removes expired records and returns how many were removed.
func (s *InMemoryStore) DeleteExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for k, rec := range s.records {
		if s.expired(rec) {
			delete(s.records, k)
			deleted++
		}
	}
	return deleted
}

// Len returns the number of stored records, expired or not.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
