// Package memory provides in-memory repository implementations for development and testing.
// These repositories store data in memory and are not persistent across restarts.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/limiquantix/addrpool/internal/domain"
	"github.com/limiquantix/addrpool/internal/services/network"
)

// Ensure ProfileRepository implements network.ProfileRepository
var _ network.ProfileRepository = (*ProfileRepository)(nil)

// ProfileRepository is an in-memory implementation of the network profile repository.
type ProfileRepository struct {
	mu   sync.RWMutex
	data map[string]*domain.NetworkProfile
}

// NewProfileRepository creates a new in-memory profile repository.
func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{
		data: make(map[string]*domain.NetworkProfile),
	}
}

// Create stores a new profile.
func (r *ProfileRepository) Create(ctx context.Context, profile *domain.NetworkProfile) (*domain.NetworkProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.data {
		if existing.Label == profile.Label {
			return nil, domain.ErrAlreadyExists
		}
	}

	stored := profile.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if _, ok := r.data[stored.ID]; ok {
		return nil, domain.ErrAlreadyExists
	}

	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.Version = 1
	r.data[stored.ID] = stored

	return stored.Clone(), nil
}

// Get retrieves a profile by ID.
func (r *ProfileRepository) Get(ctx context.Context, id string) (*domain.NetworkProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

// GetByLabel retrieves a profile by its label.
func (r *ProfileRepository) GetByLabel(ctx context.Context, label string) (*domain.NetworkProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.data {
		if p.Label == label {
			return p.Clone(), nil
		}
	}
	return nil, domain.ErrNotFound
}

// List returns the profiles matching the filter, ordered by label.
func (r *ProfileRepository) List(ctx context.Context, filter network.ProfileFilter) ([]*domain.NetworkProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(filter.LabelContains)
	result := make([]*domain.NetworkProfile, 0, len(r.data))
	for _, p := range r.data {
		if needle != "" && !strings.Contains(strings.ToLower(p.Label), needle) {
			continue
		}
		result = append(result, p.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Label < result[j].Label
	})
	return result, nil
}

// Update replaces a profile when the caller's version is current.
func (r *ProfileRepository) Update(ctx context.Context, profile *domain.NetworkProfile) (*domain.NetworkProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.data[profile.ID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if existing.Version != profile.Version {
		return nil, domain.ErrConflict
	}
	for id, other := range r.data {
		if id != profile.ID && other.Label == profile.Label {
			return nil, domain.ErrAlreadyExists
		}
	}

	stored := profile.Clone()
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now()
	stored.Version = existing.Version + 1
	r.data[stored.ID] = stored

	return stored.Clone(), nil
}

// Delete removes a profile by ID.
func (r *ProfileRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.data[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.data, id)
	return nil
}
