package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository stores bookings.
type Repository interface {
	Get(ctx context.Context, id string) (*Booking, error)
	Insert(ctx context.Context, b *Booking) error
	ListByUser(ctx context.Context, userID string) ([]*Booking, error)
	ListByPandit(ctx context.Context, panditID string) ([]*Booking, error)
	// Transition moves a booking to status to, failing with
	// ErrInvalidTransition if its current status does not allow it.
	Transition(ctx context.Context, id string, to Status) (*Booking, error)
	HasActiveForPandit(ctx context.Context, panditID string) (bool, error)
	Stats(ctx context.Context) (Stats, error)
}

// InMemoryRepository implements Repository with in-memory storage.
type InMemoryRepository struct {
	mu       sync.RWMutex
	bookings map[string]*Booking
}

// NewInMemoryRepository creates a new in-memory booking repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{bookings: make(map[string]*Booking)}
}

// Get retrieves a booking by ID.
func (r *InMemoryRepository) Get(ctx context.Context, id string) (*Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b.Clone(), nil
}

// Insert stores a new booking. New bookings start pending unless a status is set.
func (r *InMemoryRepository) Insert(ctx context.Context, b *Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = StatusPending
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	r.bookings[b.ID] = b.Clone()
	return nil
}

// ListByUser returns the user's bookings, newest first.
func (r *InMemoryRepository) ListByUser(ctx context.Context, userID string) ([]*Booking, error) {
	return r.list(func(b *Booking) bool { return b.UserID == userID }), nil
}

// ListByPandit returns the pandit's bookings, newest first.
func (r *InMemoryRepository) ListByPandit(ctx context.Context, panditID string) ([]*Booking, error) {
	return r.list(func(b *Booking) bool { return b.PanditID == panditID }), nil
}

// Transition moves a booking to a new status.
func (r *InMemoryRepository) Transition(ctx context.Context, id string, to Status) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !b.Status.CanTransition(to) {
		return nil, ErrInvalidTransition
	}
	b.Status = to
	return b.Clone(), nil
}

// HasActiveForPandit reports whether the pandit has pending or confirmed bookings.
func (r *InMemoryRepository) HasActiveForPandit(ctx context.Context, panditID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.bookings {
		if b.PanditID == panditID && b.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}

// Stats counts bookings by status.
func (r *InMemoryRepository) Stats(ctx context.Context) (Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var s Stats
	for _, b := range r.bookings {
		s.add(b.Status, 1)
	}
	return s, nil
}

func (r *InMemoryRepository) list(match func(*Booking) bool) []*Booking {
	r.mu.RLock()
	result := []*Booking{}
	for _, b := range r.bookings {
		if match(b) {
			result = append(result, b.Clone())
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

// DeleteByPandit removes every booking of panditID and returns their IDs.
func (r *InMemoryRepository) DeleteByPandit(_ context.Context, panditID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, b := range r.bookings {
		if b.PanditID == panditID {
			ids = append(ids, id)
			delete(r.bookings, id)
		}
	}
	return ids, nil
}
