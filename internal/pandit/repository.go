package pandit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/panditseva/internal/geo"
)

// Repository stores pandit profiles.
type Repository interface {
	Get(ctx context.Context, id string) (*Pandit, error)
	GetByUserID(ctx context.Context, userID string) (*Pandit, error)
	// ListVerified returns every verified pandit, the candidate pool for search.
	ListVerified(ctx context.Context) ([]*Pandit, error)
	List(ctx context.Context, opts ListOptions) ([]*Pandit, error)
	Insert(ctx context.Context, p *Pandit) error
	UpdateLocation(ctx context.Context, id string, loc *geo.Coordinate, name string) error
	SetVerified(ctx context.Context, id string, verified bool) error
	SetRatingAvg(ctx context.Context, id string, avg float64) error
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (Stats, error)
}

// InMemoryRepository implements Repository with in-memory storage.
type InMemoryRepository struct {
	mu       sync.RWMutex
	pandits  map[string]*Pandit
	onDelete []DeleteHook
}

// DeleteHook removes the rows that belong to a pandit about to be deleted.
type DeleteHook func(ctx context.Context, panditID string) error

// NewInMemoryRepository creates a new in-memory pandit repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		pandits: make(map[string]*Pandit),
	}
}

// Get retrieves a pandit by ID.
func (r *InMemoryRepository) Get(ctx context.Context, id string) (*Pandit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pandits[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// GetByUserID retrieves the pandit profile owned by a user account.
func (r *InMemoryRepository) GetByUserID(ctx context.Context, userID string) (*Pandit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.pandits {
		if p.UserID == userID {
			return p.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// ListVerified returns verified pandits, oldest first so ranking ties are
// broken the same way on every call.
func (r *InMemoryRepository) ListVerified(ctx context.Context) ([]*Pandit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*Pandit
	for _, p := range r.pandits {
		if p.Verified {
			result = append(result, p.Clone())
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// List returns pandits matching opts, newest first.
func (r *InMemoryRepository) List(ctx context.Context, opts ListOptions) ([]*Pandit, error) {
	r.mu.RLock()
	var all []*Pandit
	for _, p := range r.pandits {
		if opts.Filter.Matches(p) {
			all = append(all, p.Clone())
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if opts.Offset >= len(all) {
		return []*Pandit{}, nil
	}
	end := opts.Offset + opts.limit()
	if end > len(all) {
		end = len(all)
	}
	return all[opts.Offset:end], nil
}

// Insert stores a new pandit. ID and CreatedAt are assigned when empty.
func (r *InMemoryRepository) Insert(ctx context.Context, p *Pandit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.pandits {
		if existing.UserID == p.UserID {
			return ErrExists
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	r.pandits[p.ID] = p.Clone()
	return nil
}

// UpdateLocation sets the pandit's service location.
func (r *InMemoryRepository) UpdateLocation(ctx context.Context, id string, loc *geo.Coordinate, name string) error {
	return r.update(id, func(p *Pandit) {
		if loc != nil {
			c := *loc
			p.Location = &c
		} else {
			p.Location = nil
		}
		if name != "" {
			p.LocationName = name
		}
	})
}

// SetVerified sets the verification flag.
func (r *InMemoryRepository) SetVerified(ctx context.Context, id string, verified bool) error {
	return r.update(id, func(p *Pandit) { p.Verified = verified })
}

// SetRatingAvg sets the aggregate rating.
func (r *InMemoryRepository) SetRatingAvg(ctx context.Context, id string, avg float64) error {
	return r.update(id, func(p *Pandit) { p.RatingAvg = avg })
}

// OnDelete registers hooks that Delete runs, in order, before removing the
// pandit. They play the part of the ON DELETE CASCADE foreign keys of the
// Postgres schema.
func (r *InMemoryRepository) OnDelete(hooks ...DeleteHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDelete = append(r.onDelete, hooks...)
}

// Delete removes a pandit after running the registered delete hooks.
func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.RLock()
	_, ok := r.pandits[id]
	hooks := r.onDelete
	r.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	for _, hook := range hooks {
		if err := hook(ctx, id); err != nil {
			return fmt.Errorf("failed to delete rows of pandit %s: %w", id, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pandits[id]; !ok {
		return ErrNotFound
	}
	delete(r.pandits, id)
	return nil
}

// Stats counts pandits by verification status.
func (r *InMemoryRepository) Stats(ctx context.Context) (Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var s Stats
	for _, p := range r.pandits {
		s.Total++
		if p.Verified {
			s.Verified++
		} else {
			s.Pending++
		}
	}
	return s, nil
}

func (r *InMemoryRepository) update(id string, fn func(*Pandit)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pandits[id]
	if !ok {
		return ErrNotFound
	}
	fn(p)
	return nil
}
