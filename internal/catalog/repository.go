package catalog

import (
	"cmp"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for service catalog operations.
type Repository interface {
	// Upsert inserts a service or, when the pandit already lists a service
	// with the same name, updates its category, price and duration. The
	// service's ID and timestamps are filled in.
	Upsert(ctx context.Context, s *Service) (*UpsertResult, error)

	// Get retrieves a service by ID.
	Get(ctx context.Context, id string) (*Service, error)

	// List returns services ordered by name.
	List(ctx context.Context, opts ListOptions) ([]*Service, error)

	// Search returns one page of services across all pandits together with
	// the number of matches. Ties are broken by name then ID.
	Search(ctx context.Context, opts SearchOptions) (*SearchResult, error)

	// Delete removes a service. Existing bookings keep their service ID.
	Delete(ctx context.Context, id string) error
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu       sync.RWMutex
	services map[string]*Service // ID -> Service
	names    map[string]string   // pandit ID + name -> ID
}

// NewInMemoryRepository creates a new in-memory catalog repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		services: make(map[string]*Service),
		names:    make(map[string]string),
	}
}

// nameKey joins pandit ID and name with a null byte so that no two distinct
// pairs produce the same key.
func nameKey(panditID, name string) string {
	return panditID + "\x00" + name
}

// Upsert inserts or updates s keyed by (PanditID, Name).
func (r *InMemoryRepository) Upsert(_ context.Context, s *Service) (*UpsertResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	key := nameKey(s.PanditID, s.Name)

	if id, ok := r.names[key]; ok {
		existing := r.services[id]
		existing.Category = s.Category
		existing.BasePrice = s.BasePrice
		existing.DurationMinutes = s.DurationMinutes
		existing.UpdatedAt = now
		*s = *existing
		return &UpsertResult{Inserted: false, ID: id}, nil
	}

	s.ID = uuid.New().String()
	s.CreatedAt = now
	s.UpdatedAt = now
	stored := *s
	r.services[s.ID] = &stored
	r.names[key] = s.ID
	return &UpsertResult{Inserted: true, ID: s.ID}, nil
}

// Get retrieves a service by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.services[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *s
	return &copied, nil
}

// List returns matching services ordered by name then ID.
func (r *InMemoryRepository) List(_ context.Context, opts ListOptions) ([]*Service, error) {
	r.mu.RLock()
	matched := make([]*Service, 0, len(r.services))
	for _, s := range r.services {
		if (opts.PanditID == "" || s.PanditID == opts.PanditID) &&
			(opts.Category == "" || s.Category == opts.Category) {
			copied := *s
			matched = append(matched, &copied)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Name != matched[j].Name {
			return matched[i].Name < matched[j].Name
		}
		return matched[i].ID < matched[j].ID
	})

	if opts.Offset >= len(matched) {
		return []*Service{}, nil
	}
	matched = matched[max(opts.Offset, 0):]
	if limit := opts.limit(); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// Search filters, sorts and pages the whole catalog.
func (r *InMemoryRepository) Search(_ context.Context, opts SearchOptions) (*SearchResult, error) {
	keyword := strings.ToLower(opts.Keyword)
	category := strings.ToLower(opts.Category)

	r.mu.RLock()
	matched := make([]*Service, 0, len(r.services))
	for _, s := range r.services {
		name, cat := strings.ToLower(s.Name), strings.ToLower(s.Category)
		switch {
		case keyword != "" && !strings.Contains(name, keyword) && !strings.Contains(cat, keyword):
		case category != "" && !strings.Contains(cat, category):
		case opts.MinPrice != nil && s.BasePrice < *opts.MinPrice:
		case opts.MaxPrice != nil && s.BasePrice > *opts.MaxPrice:
		default:
			copied := *s
			matched = append(matched, &copied)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		var c int
		switch opts.SortBy {
		case SortPriceDesc:
			c = cmp.Compare(b.BasePrice, a.BasePrice)
		case SortNameAsc:
			// name then ID below
		case SortNameDesc:
			c = cmp.Compare(b.Name, a.Name)
		default:
			c = cmp.Compare(a.BasePrice, b.BasePrice)
		}
		if c == 0 {
			c = cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
		}
		return c < 0
	})

	res := &SearchResult{Total: len(matched), Items: []*Service{}}
	if opts.Offset >= len(matched) {
		return res, nil
	}
	matched = matched[max(opts.Offset, 0):]
	if limit := opts.limit(); len(matched) > limit {
		matched = matched[:limit]
	}
	res.Items = matched
	return res, nil
}

// Delete removes a service by ID.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.services[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.names, nameKey(s.PanditID, s.Name))
	delete(r.services, id)
	return nil
}

// DeleteByPandit removes every service of panditID.
func (r *InMemoryRepository) DeleteByPandit(_ context.Context, panditID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.services {
		if s.PanditID == panditID {
			delete(r.names, nameKey(s.PanditID, s.Name))
			delete(r.services, id)
		}
	}
	return nil
}
