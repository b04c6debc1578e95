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
	"github.com/limiquantix/addrpool/internal/services/workload"
)

// Ensure WorkloadRepository implements the workload and profile-side interfaces
var (
	_ workload.Repository   = (*WorkloadRepository)(nil)
	_ network.WorkloadStore = (*WorkloadRepository)(nil)
)

// WorkloadRepository is an in-memory implementation of the workload repository.
type WorkloadRepository struct {
	mu   sync.RWMutex
	data map[string]*domain.Workload
}

// NewWorkloadRepository creates a new in-memory workload repository.
func NewWorkloadRepository() *WorkloadRepository {
	return &WorkloadRepository{
		data: make(map[string]*domain.Workload),
	}
}

// Create stores a new workload.
func (r *WorkloadRepository) Create(ctx context.Context, w *domain.Workload) (*domain.Workload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := w.Clone()
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

// Get retrieves a workload by ID.
func (r *WorkloadRepository) Get(ctx context.Context, id string) (*domain.Workload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return w.Clone(), nil
}

// List returns the workloads matching the filter, ordered by VM name.
func (r *WorkloadRepository) List(ctx context.Context, filter workload.Filter) ([]*domain.Workload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(filter.NameContains)
	result := make([]*domain.Workload, 0, len(r.data))
	for _, w := range r.data {
		if needle != "" && !strings.Contains(strings.ToLower(w.VMName), needle) {
			continue
		}
		if filter.ProfileLabel != "" && !usesProfile(w, filter.ProfileLabel) {
			continue
		}
		result = append(result, w.Clone())
	}

	sortWorkloads(result)
	return result, nil
}

// ListByProfileLabel returns the workloads with a NIC in the profile.
func (r *WorkloadRepository) ListByProfileLabel(ctx context.Context, label string) ([]*domain.Workload, error) {
	return r.List(ctx, workload.Filter{ProfileLabel: label})
}

// Update replaces a workload when the caller's version is current.
func (r *WorkloadRepository) Update(ctx context.Context, w *domain.Workload) (*domain.Workload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.data[w.ID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if existing.Version != w.Version {
		return nil, domain.ErrConflict
	}

	stored := w.Clone()
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now()
	stored.Version = existing.Version + 1
	r.data[stored.ID] = stored

	return stored.Clone(), nil
}

// Delete removes a workload by ID.
func (r *WorkloadRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.data[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.data, id)
	return nil
}

func usesProfile(w *domain.Workload, label string) bool {
	for _, nic := range w.NICs {
		if nic.ProfileLabel == label {
			return true
		}
	}
	return false
}

func sortWorkloads(ws []*domain.Workload) {
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].VMName != ws[j].VMName {
			return ws[i].VMName < ws[j].VMName
		}
		return ws[i].ID < ws[j].ID
	})
}
