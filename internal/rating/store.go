package rating

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when a subject has no stored aggregate.
var ErrNotFound = errors.New("subject not found")

// ReviewStore persists reviews and the aggregate rating of their subjects.
type ReviewStore interface {
	// ListBySubject returns every review about subject, oldest first.
	ListBySubject(ctx context.Context, subject Subject) ([]Review, error)
	// Save stores review and sets the subject's aggregate in one atomic step.
	// It returns ErrDuplicateReview if the booking was already reviewed by
	// the same reviewer.
	Save(ctx context.Context, review Review, aggregate float64) error
	// Aggregate returns the stored aggregate rating of subject.
	Aggregate(ctx context.Context, subject Subject) (float64, error)
	// SetAggregate overwrites the stored aggregate rating of subject.
	SetAggregate(ctx context.Context, subject Subject, aggregate float64) error
}

// AggregateWriter receives aggregate updates for one subject type, such as
// a pandit directory that serves rating_avg in search results.
type AggregateWriter interface {
	SetRatingAvg(ctx context.Context, id string, avg float64) error
}

// InMemoryStore is an in-memory implementation of ReviewStore for local
// development and tests.
type InMemoryStore struct {
	mu         sync.RWMutex
	reviews    map[Subject][]Review
	aggregates map[Subject]float64
	writers    map[SubjectType]AggregateWriter
}

// NewInMemoryStore creates a new in-memory review store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		reviews:    make(map[Subject][]Review),
		aggregates: make(map[Subject]float64),
		writers:    make(map[SubjectType]AggregateWriter),
	}
}

// Mirror forwards every aggregate written for subjects of type t to w.
func (s *InMemoryStore) Mirror(t SubjectType, w AggregateWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writers[t] = w
}

// ListBySubject returns a copy of the reviews about subject.
func (s *InMemoryStore) ListBySubject(ctx context.Context, subject Subject) ([]Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reviews := s.reviews[subject]
	result := make([]Review, len(reviews))
	copy(result, reviews)
	return result, nil
}

// Save appends review and records aggregate under a single lock. A mirrored
// directory is updated first, so a failure there leaves nothing stored.
func (s *InMemoryStore) Save(ctx context.Context, review Review, aggregate float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	subject := review.Subject()
	for _, r := range s.reviews[subject] {
		if r.BookingID == review.BookingID && r.ReviewerID == review.ReviewerID && r.ReviewerType == review.ReviewerType {
			return ErrDuplicateReview
		}
	}
	if err := s.mirror(ctx, subject, aggregate); err != nil {
		return err
	}
	s.reviews[subject] = append(s.reviews[subject], review)
	s.aggregates[subject] = aggregate
	return nil
}

// Aggregate returns the stored aggregate rating of subject.
func (s *InMemoryStore) Aggregate(ctx context.Context, subject Subject) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	avg, ok := s.aggregates[subject]
	if !ok {
		return 0, ErrNotFound
	}
	return avg, nil
}

// SetAggregate overwrites the stored aggregate rating of subject.
func (s *InMemoryStore) SetAggregate(ctx context.Context, subject Subject, aggregate float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mirror(ctx, subject, aggregate); err != nil {
		return err
	}
	s.aggregates[subject] = aggregate
	return nil
}

// DeleteByBookings removes every review written on one of the given
// bookings and recomputes the aggregates of the subjects that lost reviews.
// Subjects left without reviews drop their aggregate. It returns the
// affected subjects.
func (s *InMemoryStore) DeleteByBookings(ctx context.Context, bookingIDs []string) ([]Subject, error) {
	drop := make(map[string]bool, len(bookingIDs))
	for _, id := range bookingIDs {
		drop[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var affected []Subject
	for subject, reviews := range s.reviews {
		kept := reviews[:0:0]
		for _, r := range reviews {
			if !drop[r.BookingID] {
				kept = append(kept, r)
			}
		}
		if len(kept) == len(reviews) {
			continue
		}
		affected = append(affected, subject)
		if len(kept) == 0 {
			delete(s.reviews, subject)
			delete(s.aggregates, subject)
			continue
		}
		s.reviews[subject] = kept
		s.aggregates[subject] = Mean(subject, kept)
	}

	var errs []error
	for _, subject := range affected {
		if err := s.mirror(ctx, subject, s.aggregates[subject]); err != nil {
			errs = append(errs, err)
		}
	}
	return affected, errors.Join(errs...)
}

// mirror forwards aggregate to the directory registered for the subject
// type. Callers hold s.mu.
func (s *InMemoryStore) mirror(ctx context.Context, subject Subject, aggregate float64) error {
	if w := s.writers[subject.Type]; w != nil {
		return w.SetRatingAvg(ctx, subject.ID, aggregate)
	}
	return nil
}

// SubjectsWithReviews returns every subject that has at least one review.
func (s *InMemoryStore) SubjectsWithReviews(ctx context.Context) ([]Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subjects := make([]Subject, 0, len(s.reviews))
	for subject, reviews := range s.reviews {
		if len(reviews) > 0 {
			subjects = append(subjects, subject)
		}
	}
	return subjects, nil
}

// Count returns the total number of stored reviews.
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, reviews := range s.reviews {
		n += len(reviews)
	}
	return n
}

// SlowStore wraps a ReviewStore with artificial delays for testing timeouts
// and lock contention.
type SlowStore struct {
	ReviewStore
	delay time.Duration
}

// NewSlowStore creates a new slow store wrapper.
func NewSlowStore(store ReviewStore, delay time.Duration) *SlowStore {
	return &SlowStore{ReviewStore: store, delay: delay}
}

// ListBySubject returns reviews after a delay.
func (s *SlowStore) ListBySubject(ctx context.Context, subject Subject) ([]Review, error) {
	time.Sleep(s.delay)
	return s.ReviewStore.ListBySubject(ctx, subject)
}
