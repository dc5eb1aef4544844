package user

import (
	"context"
	"sync"

	"github.com/onnwee/panditseva/internal/geo"
)

// Repository stores user accounts.
type Repository interface {
	Get(ctx context.Context, id string) (*User, error)
	Insert(ctx context.Context, u *User) error
	UpdateLocation(ctx context.Context, id string, loc *geo.Coordinate, name string) error
	SetRatingAvg(ctx context.Context, id string, avg float64) error
	Count(ctx context.Context) (int, error)
}

// InMemoryRepository implements Repository with in-memory storage.
type InMemoryRepository struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewInMemoryRepository creates a new in-memory user repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{users: make(map[string]*User)}
}

// Get retrieves a user by ID.
func (r *InMemoryRepository) Get(ctx context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u.Clone(), nil
}

// Insert stores a new user. Emails are normalized to lower case and unique.
func (r *InMemoryRepository) Insert(ctx context.Context, u *User) error {
	if err := u.prepareInsert(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return ErrEmailExists
		}
	}
	r.users[u.ID] = u.Clone()
	return nil
}

// UpdateLocation sets the user's location. An empty name keeps the old one.
func (r *InMemoryRepository) UpdateLocation(ctx context.Context, id string, loc *geo.Coordinate, name string) error {
	return r.update(id, func(u *User) {
		if loc != nil {
			c := *loc
			u.Location = &c
		} else {
			u.Location = nil
		}
		if name != "" {
			u.LocationName = name
		}
	})
}

// SetRatingAvg sets the aggregate rating pandits have given this user.
func (r *InMemoryRepository) SetRatingAvg(ctx context.Context, id string, avg float64) error {
	return r.update(id, func(u *User) { u.RatingAvg = avg })
}

// Count returns the number of accounts.
func (r *InMemoryRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users), nil
}

func (r *InMemoryRepository) update(id string, fn func(*User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	fn(u)
	return nil
}
