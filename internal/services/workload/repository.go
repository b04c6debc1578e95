// Package workload provides the workload service: virtual machines whose NICs
// hold addresses reserved in network profiles.
package workload

import (
	"context"

	"github.com/limiquantix/addrpool/internal/domain"
	"github.com/limiquantix/addrpool/internal/services/network"
)

// Repository defines the data access interface for workloads.
type Repository interface {
	// Create stores a new workload. A preset ID is kept.
	Create(ctx context.Context, workload *domain.Workload) (*domain.Workload, error)

	// Get retrieves a workload by ID.
	Get(ctx context.Context, id string) (*domain.Workload, error)

	// List returns the workloads matching the filter.
	List(ctx context.Context, filter Filter) ([]*domain.Workload, error)

	// ListByProfileLabel returns the workloads with at least one NIC in the profile.
	ListByProfileLabel(ctx context.Context, label string) ([]*domain.Workload, error)

	// Update replaces a workload when the versions match; a stale version yields domain.ErrConflict.
	Update(ctx context.Context, workload *domain.Workload) (*domain.Workload, error)

	// Delete removes a workload by ID.
	Delete(ctx context.Context, id string) error
}

// Filter defines filtering options for listing workloads.
type Filter struct {
	// NameContains filters by a case-insensitive substring of the VM name.
	NameContains string

	// ProfileLabel filters by the profile of any NIC.
	ProfileLabel string
}

// AddressAllocator reserves and releases addresses in network profiles.
// It is implemented by network.ProfileService.
type AddressAllocator interface {
	ReserveByLabel(ctx context.Context, label, address string, nic domain.NICRef) (*network.ReservationResult, error)
	ReleaseByLabel(ctx context.Context, label, address string) error
}
