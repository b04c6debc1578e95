package workload

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/limiquantix/addrpool/internal/domain"
	"github.com/limiquantix/addrpool/internal/services/network"
)

const defaultLockTimeout = 5 * time.Second

// Service manages workloads and keeps the reservations of their NICs in step
// with the network profiles.
type Service struct {
	repo      Repository
	addresses AddressAllocator
	locker    network.Locker
	events    network.EventPublisher
	logger    *zap.Logger
}

// Option configures the workload service.
type Option func(*Service)

// WithLocker replaces the in-process workload lock.
func WithLocker(locker network.Locker) Option {
	return func(s *Service) {
		s.locker = locker
	}
}

// WithEventPublisher enables change events.
func WithEventPublisher(events network.EventPublisher) Option {
	return func(s *Service) {
		s.events = events
	}
}

// NewService creates a new workload service.
func NewService(repo Repository, addresses AddressAllocator, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		addresses: addresses,
		logger:    logger.Named("workload-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locker == nil {
		s.locker = network.NewLocalLocker(defaultLockTimeout)
	}
	return s
}

// Spec holds the operator-supplied fields of a workload. A NIC with a profile
// label but no address gets the lowest free address of that profile.
type Spec struct {
	VMID    string       `json:"vm_id"`
	VMName  string       `json:"vm_name"`
	GuestOS string       `json:"guest_os"`
	Notes   string       `json:"notes,omitempty"`
	NICs    []domain.NIC `json:"nics"`
}

// reservation is one address held by one NIC.
type reservation struct {
	label   string
	address string
	nicID   string
}

// =============================================================================
// WORKLOAD MANAGEMENT
// =============================================================================

// CreateWorkload reserves the addresses of every NIC and stores the workload.
func (s *Service) CreateWorkload(ctx context.Context, spec Spec) (*domain.Workload, error) {
	normalizeSpec(&spec)
	if err := validateSpec(&spec); err != nil {
		s.logger.Warn("Validation failed", zap.String("vm_name", spec.VMName), zap.Error(err))
		return nil, err
	}

	id := uuid.New().String()
	logger := s.logger.With(zap.String("workload_id", id), zap.String("vm_name", spec.VMName))
	logger.Info("Creating workload", zap.Int("nics", len(spec.NICs)))

	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	nics, made, err := s.reserveAll(ctx, id, spec.NICs, nil, logger)
	if err != nil {
		return nil, err
	}

	workload := &domain.Workload{
		ID:      id,
		VMID:    spec.VMID,
		VMName:  spec.VMName,
		GuestOS: spec.GuestOS,
		Notes:   spec.Notes,
		NICs:    nics,
	}

	created, err := s.repo.Create(ctx, workload)
	if err != nil {
		logger.Error("Failed to create workload", zap.Error(err))
		s.releaseQuietly(ctx, made, logger)
		return nil, fmt.Errorf("failed to create workload: %w", err)
	}

	s.publish(ctx, domain.EventWorkloadCreated, created.ID, created)
	logger.Info("Workload created", zap.Int("reservations", len(made)))
	return created, nil
}

// UpdateWorkload replaces the workload's fields and NICs. Reservations of
// removed or changed NICs are released and new ones are reserved.
func (s *Service) UpdateWorkload(ctx context.Context, id string, spec Spec) (*domain.Workload, error) {
	normalizeSpec(&spec)
	if err := validateSpec(&spec); err != nil {
		s.logger.Warn("Validation failed", zap.String("workload_id", id), zap.Error(err))
		return nil, err
	}

	logger := s.logger.With(zap.String("workload_id", id))
	logger.Info("Updating workload")

	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, current, spec, logger)
}

// DeleteWorkload releases every reservation of the workload and removes it.
func (s *Service) DeleteWorkload(ctx context.Context, id string) error {
	logger := s.logger.With(zap.String("workload_id", id))
	logger.Info("Deleting workload")

	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	released, err := s.release(ctx, reservationsOf(current.NICs), logger)
	if err != nil {
		s.reserveAgain(ctx, id, released, logger)
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		logger.Error("Failed to delete workload", zap.Error(err))
		s.reserveAgain(ctx, id, released, logger)
		return fmt.Errorf("failed to delete workload: %w", err)
	}

	s.publish(ctx, domain.EventWorkloadDeleted, id, map[string]string{"vm_name": current.VMName})
	logger.Info("Workload deleted", zap.Int("released", len(released)))
	return nil
}

// GetWorkload retrieves a workload by ID.
func (s *Service) GetWorkload(ctx context.Context, id string) (*domain.Workload, error) {
	return s.repo.Get(ctx, id)
}

// ListWorkloads returns the workloads matching filter.
func (s *Service) ListWorkloads(ctx context.Context, filter Filter) ([]*domain.Workload, error) {
	workloads, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list workloads: %w", err)
	}
	return workloads, nil
}

// =============================================================================
// NIC RESERVATIONS
// =============================================================================

// AssignNIC points one NIC of a workload at an address of the profile with
// the given label. An empty address keeps the NIC's current address in that
// profile or picks the lowest free one.
func (s *Service) AssignNIC(ctx context.Context, workloadID, nicID, label, address string) (*domain.Workload, error) {
	logger := s.logger.With(
		zap.String("workload_id", workloadID),
		zap.String("nic_id", nicID),
		zap.String("label", label),
	)

	unlock, err := s.locker.Lock(ctx, workloadID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.repo.Get(ctx, workloadID)
	if err != nil {
		return nil, err
	}

	spec := specOf(current)
	found := false
	for i := range spec.NICs {
		if spec.NICs[i].NICID == nicID {
			spec.NICs[i].ProfileLabel = label
			spec.NICs[i].Address = canonicalAddress(address)
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: NIC %s on workload %s", domain.ErrNotFound, nicID, workloadID)
	}
	if err := validateSpec(&spec); err != nil {
		return nil, err
	}

	return s.apply(ctx, current, spec, logger)
}

// ReleaseAddress releases address in the profile with the given label and
// detaches the NIC holding it, if any.
func (s *Service) ReleaseAddress(ctx context.Context, label, address string) error {
	address = canonicalAddress(address)

	holders, err := s.repo.ListByProfileLabel(ctx, label)
	if err != nil {
		return fmt.Errorf("failed to list workloads for %s: %w", label, err)
	}

	ref, ok := domain.BuildReservationIndex(label, holders)[address]
	if !ok {
		return s.addresses.ReleaseByLabel(ctx, label, address)
	}

	logger := s.logger.With(zap.String("workload_id", ref.WorkloadID), zap.String("nic_id", ref.NICID))

	unlock, err := s.locker.Lock(ctx, ref.WorkloadID)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := s.repo.Get(ctx, ref.WorkloadID)
	if err != nil {
		return err
	}

	spec := specOf(current)
	for i := range spec.NICs {
		nic := &spec.NICs[i]
		if nic.NICID == ref.NICID && nic.ProfileLabel == label && nic.Address == address {
			nic.Address = ""
			nic.ProfileLabel = ""
		}
	}

	_, err = s.apply(ctx, current, spec, logger)
	return err
}

// apply moves current to spec. The caller holds the workload lock.
func (s *Service) apply(ctx context.Context, current *domain.Workload, spec Spec, logger *zap.Logger) (*domain.Workload, error) {
	held := make(map[string]domain.NIC)
	for _, nic := range current.NICs {
		if nic.HasReservation() {
			held[nic.NICID] = nic
		}
	}

	keep := make(map[string]reservation)
	for _, nic := range spec.NICs {
		old, ok := held[nic.NICID]
		if ok && nic.ProfileLabel == old.ProfileLabel && (nic.Address == "" || nic.Address == old.Address) {
			keep[nic.NICID] = reservation{label: old.ProfileLabel, address: old.Address, nicID: old.NICID}
		}
	}

	var dropped []reservation
	for _, r := range reservationsOf(current.NICs) {
		if _, ok := keep[r.nicID]; !ok {
			dropped = append(dropped, r)
		}
	}

	released, err := s.release(ctx, dropped, logger)
	if err != nil {
		s.reserveAgain(ctx, current.ID, released, logger)
		return nil, err
	}

	nics, made, err := s.reserveAll(ctx, current.ID, spec.NICs, keep, logger)
	if err != nil {
		s.reserveAgain(ctx, current.ID, released, logger)
		return nil, err
	}

	updated := current.Clone()
	updated.VMID = spec.VMID
	updated.VMName = spec.VMName
	updated.GuestOS = spec.GuestOS
	updated.Notes = spec.Notes
	updated.NICs = nics

	saved, err := s.repo.Update(ctx, updated)
	if err != nil {
		logger.Error("Failed to update workload", zap.Error(err))
		s.releaseQuietly(ctx, made, logger)
		s.reserveAgain(ctx, current.ID, released, logger)
		return nil, fmt.Errorf("failed to update workload: %w", err)
	}

	s.publish(ctx, domain.EventWorkloadUpdated, saved.ID, saved)
	logger.Info("Workload updated",
		zap.Int("released", len(released)),
		zap.Int("reserved", len(made)),
	)
	return saved, nil
}

// reserveAll reserves the address of every NIC that names a profile, in
// (label, NIC id) order. NICs found in keep already hold their address. On
// failure the reservations made so far are released.
func (s *Service) reserveAll(ctx context.Context, workloadID string, nics []domain.NIC, keep map[string]reservation, logger *zap.Logger) ([]domain.NIC, []reservation, error) {
	out := append([]domain.NIC(nil), nics...)

	order := make([]int, 0, len(out))
	for i, nic := range out {
		if nic.ProfileLabel != "" {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		x, y := out[order[a]], out[order[b]]
		if x.ProfileLabel != y.ProfileLabel {
			return x.ProfileLabel < y.ProfileLabel
		}
		return x.NICID < y.NICID
	})

	var made []reservation
	for _, i := range order {
		nic := &out[i]
		if r, ok := keep[nic.NICID]; ok {
			nic.Address = r.address
			continue
		}

		res, err := s.addresses.ReserveByLabel(ctx, nic.ProfileLabel, nic.Address, domain.NICRef{WorkloadID: workloadID, NICID: nic.NICID})
		if err != nil {
			logger.Warn("Failed to reserve address",
				zap.String("nic_id", nic.NICID),
				zap.String("label", nic.ProfileLabel),
				zap.Error(err),
			)
			s.releaseQuietly(ctx, made, logger)
			return nil, nil, fmt.Errorf("failed to reserve address for %s: %w", nic.NICID, err)
		}
		nic.Address = res.Address
		made = append(made, reservation{label: nic.ProfileLabel, address: res.Address, nicID: nic.NICID})
	}

	return out, made, nil
}

// release releases rs and returns the ones it released. Reservations whose
// profile or address no longer exists count as released.
func (s *Service) release(ctx context.Context, rs []reservation, logger *zap.Logger) ([]reservation, error) {
	var released []reservation
	for _, r := range rs {
		err := s.addresses.ReleaseByLabel(ctx, r.label, r.address)
		switch {
		case err == nil:
			released = append(released, r)
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrAddressNotFound):
			logger.Warn("Reservation already gone",
				zap.String("label", r.label),
				zap.String("address", r.address),
			)
		default:
			return released, fmt.Errorf("failed to release %s in %s: %w", r.address, r.label, err)
		}
	}
	return released, nil
}

// releaseQuietly rolls back reservations made by the current call.
func (s *Service) releaseQuietly(ctx context.Context, rs []reservation, logger *zap.Logger) {
	for _, r := range rs {
		if err := s.addresses.ReleaseByLabel(ctx, r.label, r.address); err != nil {
			logger.Error("Failed to roll back reservation",
				zap.String("label", r.label),
				zap.String("address", r.address),
				zap.Error(err),
			)
		}
	}
}

// reserveAgain restores reservations released by the current call.
func (s *Service) reserveAgain(ctx context.Context, workloadID string, rs []reservation, logger *zap.Logger) {
	for _, r := range rs {
		_, err := s.addresses.ReserveByLabel(ctx, r.label, r.address, domain.NICRef{WorkloadID: workloadID, NICID: r.nicID})
		if err != nil {
			logger.Error("Failed to restore reservation",
				zap.String("label", r.label),
				zap.String("address", r.address),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) publish(ctx context.Context, eventType, resourceID string, data interface{}) {
	if s.events == nil {
		return
	}
	err := s.events.PublishEvent(ctx, domain.Event{
		Type:       eventType,
		ResourceID: resourceID,
		Data:       data,
		Timestamp:  time.Now(),
	})
	if err != nil {
		s.logger.Warn("Failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
}

func reservationsOf(nics []domain.NIC) []reservation {
	var rs []reservation
	for _, nic := range nics {
		if nic.HasReservation() {
			rs = append(rs, reservation{label: nic.ProfileLabel, address: nic.Address, nicID: nic.NICID})
		}
	}
	return rs
}

func specOf(w *domain.Workload) Spec {
	return Spec{
		VMID:    w.VMID,
		VMName:  w.VMName,
		GuestOS: w.GuestOS,
		Notes:   w.Notes,
		NICs:    append([]domain.NIC(nil), w.NICs...),
	}
}
