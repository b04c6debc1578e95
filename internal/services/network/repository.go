// Package network provides the network profile service: subnet derivation,
// address list management and per-profile address reservation.
package network

import (
	"context"

	"github.com/limiquantix/addrpool/internal/domain"
)

// ProfileRepository defines the interface for network profile data operations.
type ProfileRepository interface {
	// Create adds a new profile. Labels are unique.
	Create(ctx context.Context, profile *domain.NetworkProfile) (*domain.NetworkProfile, error)

	// Get retrieves a profile by ID.
	Get(ctx context.Context, id string) (*domain.NetworkProfile, error)

	// GetByLabel retrieves a profile by its label.
	GetByLabel(ctx context.Context, label string) (*domain.NetworkProfile, error)

	// List retrieves profiles based on filter criteria.
	List(ctx context.Context, filter ProfileFilter) ([]*domain.NetworkProfile, error)

	// Update replaces a profile when profile.Version matches the stored version,
	// and returns it with the incremented version. A stale version yields domain.ErrConflict.
	Update(ctx context.Context, profile *domain.NetworkProfile) (*domain.NetworkProfile, error)

	// Delete removes a profile by ID.
	Delete(ctx context.Context, id string) error
}

// ProfileFilter defines parameters for filtering profiles.
type ProfileFilter struct {
	// LabelContains is a case-insensitive substring match on the label.
	LabelContains string
}

// WorkloadStore is the part of the workload repository the profile service
// needs: finding reservation holders and detaching orphaned NICs.
type WorkloadStore interface {
	Get(ctx context.Context, id string) (*domain.Workload, error)
	ListByProfileLabel(ctx context.Context, label string) ([]*domain.Workload, error)
	Update(ctx context.Context, workload *domain.Workload) (*domain.Workload, error)
}

// ProfileCache caches profile reads.
type ProfileCache interface {
	GetProfile(ctx context.Context, id string) (*domain.NetworkProfile, error)
	SetProfile(ctx context.Context, profile *domain.NetworkProfile) error
	InvalidateProfile(ctx context.Context, id string) error
}

// EventPublisher publishes change events to live subscribers.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event domain.Event) error
}
