package rating

import (
	"context"
	"sync"
	"time"
)

// DirtyTracker tracks which subjects received reviews since their aggregate
// was last reconciled. Thread-safe via RWMutex.
type DirtyTracker struct {
	mu         sync.RWMutex
	dirtyFlags map[Subject]time.Time // subject -> time marked dirty
}

// NewDirtyTracker creates a new DirtyTracker instance.
func NewDirtyTracker() *DirtyTracker {
	return &DirtyTracker{
		dirtyFlags: make(map[Subject]time.Time),
	}
}

// MarkDirty marks a subject as needing reconciliation.
func (t *DirtyTracker) MarkDirty(s Subject) {
	t.mu.Lock()
	t.dirtyFlags[s] = time.Now()
	t.mu.Unlock()
}

// ClearDirty removes the dirty flag for a subject, unless it was marked
// again after since.
func (t *DirtyTracker) ClearDirty(s Subject, since time.Time) {
	t.mu.Lock()
	if marked, ok := t.dirtyFlags[s]; ok && !marked.After(since) {
		delete(t.dirtyFlags, s)
	}
	t.mu.Unlock()
}

// DirtySubjects returns a copy of the subjects marked dirty.
func (t *DirtyTracker) DirtySubjects() []Subject {
	t.mu.RLock()
	defer t.mu.RUnlock()

	subjects := make([]Subject, 0, len(t.dirtyFlags))
	for s := range t.dirtyFlags {
		subjects = append(subjects, s)
	}
	return subjects
}

// IsDirty checks if a specific subject is marked as dirty.
func (t *DirtyTracker) IsDirty(s Subject) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, exists := t.dirtyFlags[s]
	return exists
}

// DirtyCount returns the number of subjects marked as dirty.
func (t *DirtyTracker) DirtyCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.dirtyFlags)
}

// SubjectLister lists every subject that has reviews.
type SubjectLister interface {
	SubjectsWithReviews(ctx context.Context) ([]Subject, error)
}

// Seed marks every subject returned by l as dirty so the next reconcile
// cycle checks all stored aggregates. Returns the number of subjects marked.
func (t *DirtyTracker) Seed(ctx context.Context, l SubjectLister) (int, error) {
	subjects, err := l.SubjectsWithReviews(ctx)
	if err != nil {
		return 0, err
	}
	for _, s := range subjects {
		t.MarkDirty(s)
	}
	return len(subjects), nil
}
