package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxQueryLimit caps the number of entries a single query returns.
const MaxQueryLimit = 200

// Query selects audit entries. Empty fields match everything.
type Query struct {
	ActorID    string
	EntityType string
	EntityID   string
	Limit      int // clamped to MaxQueryLimit; 0 means MaxQueryLimit
}

func (q Query) limit() int {
	if q.Limit <= 0 || q.Limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return q.Limit
}

func (q Query) matches(l *Log) bool {
	return (q.ActorID == "" || l.ActorID == q.ActorID) &&
		(q.EntityType == "" || l.EntityType == q.EntityType) &&
		(q.EntityID == "" || l.EntityID == q.EntityID)
}

// Repository defines the interface for audit log operations.
type Repository interface {
	// Record stores a validated entry and returns the created log.
	Record(ctx context.Context, entry Entry) (*Log, error)

	// Query returns matching entries, newest first.
	Query(ctx context.Context, q Query) ([]*Log, error)
}

func newLog(entry Entry) *Log {
	return &Log{
		ID:         uuid.New().String(),
		ActorID:    entry.ActorID,
		ActorRole:  entry.ActorRole,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		Outcome:    entry.Outcome,
		Detail:     entry.Detail,
		CreatedAt:  time.Now().UTC(),
		RequestID:  entry.RequestID,
		IPAddress:  entry.IPAddress,
		UserAgent:  entry.UserAgent,
	}
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development. Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu   sync.RWMutex
	logs []*Log // insertion order
}

// NewInMemoryRepository creates a new in-memory audit repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

// Record stores an entry.
func (r *InMemoryRepository) Record(_ context.Context, entry Entry) (*Log, error) {
	log := newLog(entry)

	r.mu.Lock()
	r.logs = append(r.logs, log)
	r.mu.Unlock()

	logCopy := *log
	return &logCopy, nil
}

// Query returns matching entries, newest first.
func (r *InMemoryRepository) Query(_ context.Context, q Query) ([]*Log, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit := q.limit()
	results := []*Log{}
	for i := len(r.logs) - 1; i >= 0 && len(results) < limit; i-- {
		if q.matches(r.logs[i]) {
			logCopy := *r.logs[i]
			results = append(results, &logCopy)
		}
	}
	return results, nil
}
