package network

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/limiquantix/addrpool/internal/config"
	"github.com/limiquantix/addrpool/internal/domain"
	"github.com/limiquantix/addrpool/internal/metrics"
	"github.com/limiquantix/addrpool/internal/network/pool"
)

// Validation constants
const (
	MaxLabelLength = 255
	MaxNotesLength = 4096
	MaxVLANID      = 4094
)

// =============================================================================
// PROFILE SERVICE
// =============================================================================

// ProfileService manages network profiles and the reservations recorded in
// their address lists. Every mutation of a profile runs under that profile's lock.
type ProfileService struct {
	repo      ProfileRepository
	workloads WorkloadStore
	locker    Locker
	cache     ProfileCache
	events    EventPublisher
	cfg       config.PoolConfig
	logger    *zap.Logger
}

// ProfileServiceOption configures the profile service.
type ProfileServiceOption func(*ProfileService)

// WithLocker replaces the in-process profile lock, e.g. with an etcd lock.
func WithLocker(locker Locker) ProfileServiceOption {
	return func(s *ProfileService) {
		s.locker = locker
	}
}

// WithCache enables read-through caching of profiles.
func WithCache(cache ProfileCache) ProfileServiceOption {
	return func(s *ProfileService) {
		s.cache = cache
	}
}

// WithEventPublisher enables change events.
func WithEventPublisher(events EventPublisher) ProfileServiceOption {
	return func(s *ProfileService) {
		s.events = events
	}
}

// NewProfileService creates a new profile service.
func NewProfileService(repo ProfileRepository, workloads WorkloadStore, cfg config.PoolConfig, logger *zap.Logger, opts ...ProfileServiceOption) *ProfileService {
	s := &ProfileService{
		repo:      repo,
		workloads: workloads,
		cfg:       cfg,
		logger:    logger.Named("profile-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locker == nil {
		s.locker = NewLocalLocker(cfg.LockTimeout)
	}
	return s
}

// ProfileSpec holds the operator-supplied fields of a profile.
type ProfileSpec struct {
	Label       string `json:"label"`
	BaseAddress string `json:"base_address"`
	Mask        string `json:"mask"`
	Gateway     string `json:"gateway,omitempty"`
	VLANID      int    `json:"vlan_id,omitempty"`
	Overlay     bool   `json:"overlay"`
	Notes       string `json:"notes,omitempty"`
}

// ProfileResult is a saved profile together with the reservations that did
// not survive a regeneration of its address list.
type ProfileResult struct {
	Profile  *domain.NetworkProfile      `json:"profile"`
	Warnings []domain.OrphanedAssignment `json:"warnings,omitempty"`
}

// PoolPreview is a generated address list that has not been saved.
type PoolPreview struct {
	Subnet      *pool.SubnetFacts  `json:"subnet"`
	Gateway     string             `json:"gateway"`
	AddressList domain.AddressList `json:"address_list"`
}

// PoolStatistics summarizes the usage of one profile.
type PoolStatistics struct {
	ProfileID        string  `json:"profile_id"`
	Label            string  `json:"label"`
	NetworkAddress   string  `json:"network_address"`
	BroadcastAddress string  `json:"broadcast_address"`
	Gateway          string  `json:"gateway"`
	HostCount        int     `json:"host_count"`
	UsableHostCount  int     `json:"usable_host_count"`
	AssignedCount    int     `json:"assigned_count"`
	AvailableCount   int     `json:"available_count"`
	Exhausted        bool    `json:"exhausted"`
	Utilization      float64 `json:"utilization"`
}

// ReservationResult is the profile after a reservation and the address it reserved.
type ReservationResult struct {
	Profile *domain.NetworkProfile `json:"profile"`
	Address string                 `json:"address"`
}

// ReservationEvent is the payload of address events.
type ReservationEvent struct {
	ProfileID  string `json:"profile_id"`
	Label      string `json:"label"`
	Address    string `json:"address"`
	WorkloadID string `json:"workload_id,omitempty"`
	NICID      string `json:"nic_id,omitempty"`
}

// derivedPool is the outcome of running the engine for a spec.
type derivedPool struct {
	facts   *pool.SubnetFacts
	gateway string
	list    domain.AddressList
	orphans []domain.OrphanedAssignment
}

// =============================================================================
// SUBNET COMPUTATION
// =============================================================================

// ComputeSubnet derives the network facts for a base address and mask.
func (s *ProfileService) ComputeSubnet(baseAddress, mask string) (*pool.SubnetFacts, error) {
	return pool.ComputeSubnet(strings.TrimSpace(baseAddress), strings.TrimSpace(mask))
}

// PreviewPool generates the address list a new profile would get.
func (s *ProfileService) PreviewPool(baseAddress, mask, gateway string) (*PoolPreview, error) {
	d, err := s.derive(ProfileSpec{
		BaseAddress: strings.TrimSpace(baseAddress),
		Mask:        strings.TrimSpace(mask),
		Gateway:     strings.TrimSpace(gateway),
	}, nil)
	if err != nil {
		return nil, err
	}
	return &PoolPreview{Subnet: d.facts, Gateway: d.gateway, AddressList: d.list}, nil
}

func (s *ProfileService) derive(spec ProfileSpec, previous domain.AddressList) (*derivedPool, error) {
	facts, err := pool.ComputeSubnet(spec.BaseAddress, spec.Mask)
	if err != nil {
		return nil, err
	}
	if facts.HostCount > uint64(s.cfg.MaxHostCount) {
		return nil, fmt.Errorf("%w: /%d holds %d addresses, limit is %d",
			domain.ErrInvalidSubnetInput, facts.PrefixLength, facts.HostCount, s.cfg.MaxHostCount)
	}

	gateway, err := pool.ResolveGateway(facts, spec.Gateway)
	if err != nil {
		return nil, err
	}

	list, orphans, err := pool.Generate(facts, gateway, previous)
	if err != nil {
		return nil, err
	}

	return &derivedPool{facts: facts, gateway: gateway, list: list, orphans: orphans}, nil
}

// =============================================================================
// PROFILE MANAGEMENT
// =============================================================================

// CreateProfile validates the request, generates the address list and stores the profile.
func (s *ProfileService) CreateProfile(ctx context.Context, spec ProfileSpec) (*ProfileResult, error) {
	if err := validateSpec(&spec); err != nil {
		s.logger.Warn("Validation failed", zap.String("label", spec.Label), zap.Error(err))
		return nil, err
	}

	logger := s.logger.With(
		zap.String("label", spec.Label),
		zap.String("base_address", spec.BaseAddress),
		zap.String("mask", spec.Mask),
	)
	logger.Info("Creating network profile")

	d, err := s.derive(spec, nil)
	if err != nil {
		logger.Warn("Subnet rejected", zap.Error(err))
		return nil, err
	}

	profile := &domain.NetworkProfile{
		Label:        spec.Label,
		BaseAddress:  spec.BaseAddress,
		Mask:         spec.Mask,
		PrefixLength: d.facts.PrefixLength,
		Gateway:      d.gateway,
		VLANID:       spec.VLANID,
		Overlay:      spec.Overlay,
		Notes:        spec.Notes,
		AddressList:  d.list,
	}
	profile.RefreshCounts()

	created, err := s.repo.Create(ctx, profile)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: profile %q", domain.ErrAlreadyExists, spec.Label)
		}
		logger.Error("Failed to create profile", zap.Error(err))
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	metrics.ProfilesCreated.Inc()
	s.afterWrite(ctx, created)
	s.publish(ctx, domain.EventProfileCreated, created.ID, created)

	logger.Info("Network profile created",
		zap.String("id", created.ID),
		zap.Int("host_count", created.HostCount),
		zap.String("gateway", created.Gateway),
	)

	return &ProfileResult{Profile: created}, nil
}

// UpdateProfile applies a new spec to a profile. A changed base address, mask
// or gateway regenerates the whole address list; reservations that no longer
// fit are returned as warnings and detached from their NICs.
func (s *ProfileService) UpdateProfile(ctx context.Context, id string, spec ProfileSpec) (*ProfileResult, error) {
	if err := validateSpec(&spec); err != nil {
		s.logger.Warn("Validation failed", zap.String("profile_id", id), zap.Error(err))
		return nil, err
	}

	logger := s.logger.With(zap.String("profile_id", id), zap.String("label", spec.Label))
	logger.Info("Updating network profile")

	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	labelChanged := spec.Label != current.Label
	if labelChanged {
		if hasReservations(current) {
			return nil, fmt.Errorf("%w: cannot rename %q while addresses are assigned", domain.ErrConflict, current.Label)
		}
		if other, err := s.repo.GetByLabel(ctx, spec.Label); err == nil && other.ID != id {
			return nil, fmt.Errorf("%w: profile %q", domain.ErrAlreadyExists, spec.Label)
		}
	}

	updated := current.Clone()
	updated.Label = spec.Label
	updated.VLANID = spec.VLANID
	updated.Overlay = spec.Overlay
	updated.Notes = spec.Notes

	var orphans []domain.OrphanedAssignment
	if subnetChanged(current, spec) {
		d, err := s.derive(spec, current.AddressList)
		if err != nil {
			logger.Warn("Subnet rejected", zap.Error(err))
			return nil, err
		}
		updated.BaseAddress = spec.BaseAddress
		updated.Mask = spec.Mask
		updated.PrefixLength = d.facts.PrefixLength
		updated.Gateway = d.gateway
		updated.AddressList = d.list
		orphans = d.orphans
		metrics.PoolRegenerations.Inc()

		logger.Info("Regenerated address list",
			zap.Int("host_count", len(d.list)),
			zap.Int("orphaned", len(orphans)),
		)
	}
	updated.RefreshCounts()

	var holders []*domain.Workload
	if len(orphans) > 0 {
		holders, err = s.workloads.ListByProfileLabel(ctx, current.Label)
		if err != nil {
			return nil, fmt.Errorf("failed to list workloads for %s: %w", current.Label, err)
		}
		idx := domain.BuildReservationIndex(current.Label, holders)
		for i := range orphans {
			if ref, ok := idx[orphans[i].Address]; ok {
				orphans[i].WorkloadID = ref.WorkloadID
				orphans[i].NICID = ref.NICID
			}
		}
	}

	saved, err := s.repo.Update(ctx, updated)
	if err != nil {
		logger.Error("Failed to update profile", zap.Error(err))
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	if len(orphans) > 0 {
		metrics.OrphanedAssignments.Add(len(orphans))
		s.detachOrphans(ctx, current.Label, holders, orphans, logger)
	}
	if labelChanged {
		metrics.ForgetProfile(current.Label)
	}
	s.afterWrite(ctx, saved)
	s.publish(ctx, domain.EventProfileUpdated, saved.ID, saved)

	return &ProfileResult{Profile: saved, Warnings: orphans}, nil
}

// detachOrphans clears the address of every NIC whose reservation was orphaned
// and marks each orphan Detached once its workload has been saved. A workload
// that fails to save is re-read and retried once.
func (s *ProfileService) detachOrphans(ctx context.Context, label string, workloads []*domain.Workload, orphans []domain.OrphanedAssignment, logger *zap.Logger) {
	byID := make(map[string]*domain.Workload, len(workloads))
	for _, w := range workloads {
		byID[w.ID] = w
	}

	pending := make(map[string][]int)
	var order []string
	for i, o := range orphans {
		if o.WorkloadID == "" {
			continue
		}
		if _, ok := byID[o.WorkloadID]; !ok {
			continue
		}
		if _, ok := pending[o.WorkloadID]; !ok {
			order = append(order, o.WorkloadID)
		}
		pending[o.WorkloadID] = append(pending[o.WorkloadID], i)
	}

	for _, id := range order {
		idxs := pending[id]
		err := s.detachFrom(ctx, byID[id], label, orphans, idxs)
		if err != nil {
			logger.Warn("Retrying orphan detach", zap.String("workload_id", id), zap.Error(err))
			var fresh *domain.Workload
			if fresh, err = s.workloads.Get(ctx, id); err == nil {
				err = s.detachFrom(ctx, fresh, label, orphans, idxs)
			}
		}
		if err != nil {
			logger.Error("Failed to detach orphaned NICs",
				zap.String("workload_id", id),
				zap.Error(err),
			)
			continue
		}
		for _, i := range idxs {
			orphans[i].Detached = true
		}
		logger.Warn("Detached orphaned NICs", zap.String("workload_id", id))
	}
}

// detachFrom saves a copy of w with the NICs named by orphans[idxs] cleared.
func (s *ProfileService) detachFrom(ctx context.Context, w *domain.Workload, label string, orphans []domain.OrphanedAssignment, idxs []int) error {
	w = w.Clone()
	for _, i := range idxs {
		o := orphans[i]
		for j := range w.NICs {
			nic := &w.NICs[j]
			if nic.NICID == o.NICID && nic.ProfileLabel == label && nic.Address == o.Address {
				nic.Address = ""
				nic.ProfileLabel = ""
			}
		}
	}
	_, err := s.workloads.Update(ctx, w)
	return err
}

// GetProfile retrieves a profile by ID.
func (s *ProfileService) GetProfile(ctx context.Context, id string) (*domain.NetworkProfile, error) {
	if s.cache != nil {
		if p, err := s.cache.GetProfile(ctx, id); err == nil {
			return p, nil
		}
	}

	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetProfile(ctx, p); err != nil {
			s.logger.Warn("Failed to cache profile", zap.String("profile_id", id), zap.Error(err))
		}
	}
	return p, nil
}

// GetProfileByLabel retrieves a profile by its label.
func (s *ProfileService) GetProfileByLabel(ctx context.Context, label string) (*domain.NetworkProfile, error) {
	return s.repo.GetByLabel(ctx, label)
}

// ListProfiles returns the profiles matching filter.
func (s *ProfileService) ListProfiles(ctx context.Context, filter ProfileFilter) ([]*domain.NetworkProfile, error) {
	profiles, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, nil
}

// DeleteProfile removes a profile that has no live reservations.
func (s *ProfileService) DeleteProfile(ctx context.Context, id string) error {
	logger := s.logger.With(zap.String("profile_id", id))
	logger.Info("Deleting network profile")

	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if hasReservations(current) {
		return fmt.Errorf("%w: %q still has %d assigned addresses", domain.ErrConflict, current.Label, current.AssignedCount)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.InvalidateProfile(ctx, id); err != nil {
			logger.Warn("Failed to invalidate cached profile", zap.Error(err))
		}
	}
	metrics.ProfilesDeleted.Inc()
	metrics.ForgetProfile(current.Label)
	s.publish(ctx, domain.EventProfileDeleted, id, map[string]string{"label": current.Label})

	logger.Info("Network profile deleted", zap.String("label", current.Label))
	return nil
}

// GetStatistics returns pool usage statistics.
func (s *ProfileService) GetStatistics(ctx context.Context, id string) (*PoolStatistics, error) {
	p, err := s.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}

	available := pool.Available(p)
	stats := &PoolStatistics{
		ProfileID:       p.ID,
		Label:           p.Label,
		Gateway:         p.Gateway,
		HostCount:       p.HostCount,
		UsableHostCount: p.UsableHostCount,
		AssignedCount:   p.AssignedCount,
		AvailableCount:  available,
		Exhausted:       available == 0,
	}
	if len(p.AddressList) > 0 {
		stats.NetworkAddress = p.AddressList[0].Value
		if len(p.AddressList) >= 2 {
			stats.BroadcastAddress = p.AddressList[len(p.AddressList)-1].Value
		}
	}
	if total := p.AssignedCount + available; total > 0 {
		stats.Utilization = float64(p.AssignedCount) / float64(total)
	}
	return stats, nil
}

// =============================================================================
// ADDRESS RESERVATION
// =============================================================================

// ReserveAddress reserves address in the profile for nic. An empty address
// picks the lowest unassigned one.
func (s *ProfileService) ReserveAddress(ctx context.Context, id, address string, nic domain.NICRef) (*ReservationResult, error) {
	if address != "" {
		canonical, err := pool.CanonicalAddress(address)
		if err != nil {
			return nil, err
		}
		address = canonical
	}

	logger := s.logger.With(
		zap.String("profile_id", id),
		zap.String("address", address),
		zap.String("nic", nic.String()),
	)
	logger.Info("Reserving address")

	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	workloads, err := s.workloads.ListByProfileLabel(ctx, current.Label)
	if err != nil {
		return nil, fmt.Errorf("failed to list workloads for %s: %w", current.Label, err)
	}
	holders := domain.BuildReservationIndex(current.Label, workloads)

	if address == "" {
		address, err = pool.NextAvailable(current)
		if err != nil {
			metrics.PoolExhausted.Inc()
			metrics.ReservationFailures.Inc()
			logger.Warn("Pool exhausted")
			return nil, err
		}
	}

	updated, err := pool.Reserve(current, address, nic, holders)
	if err != nil {
		metrics.ReservationFailures.Inc()
		if errors.Is(err, domain.ErrPoolExhausted) {
			metrics.PoolExhausted.Inc()
		}
		logger.Warn("Reservation rejected", zap.Error(err))
		return nil, err
	}

	if updated.AssignedCount == current.AssignedCount {
		// already held by this NIC
		return &ReservationResult{Profile: current, Address: address}, nil
	}

	saved, err := s.repo.Update(ctx, updated)
	if err != nil {
		logger.Error("Failed to persist reservation", zap.Error(err))
		return nil, fmt.Errorf("failed to persist reservation: %w", err)
	}

	metrics.AddressesReserved.Inc()
	s.afterWrite(ctx, saved)
	s.publish(ctx, domain.EventAddressReserved, saved.ID, ReservationEvent{
		ProfileID:  saved.ID,
		Label:      saved.Label,
		Address:    address,
		WorkloadID: nic.WorkloadID,
		NICID:      nic.NICID,
	})

	logger.Info("Address reserved", zap.String("reserved", address), zap.Int("assigned_count", saved.AssignedCount))
	return &ReservationResult{Profile: saved, Address: address}, nil
}

// ReserveNext reserves the lowest unassigned address of the profile for nic.
func (s *ProfileService) ReserveNext(ctx context.Context, id string, nic domain.NICRef) (*ReservationResult, error) {
	return s.ReserveAddress(ctx, id, "", nic)
}

// ReleaseAddress returns address to the profile's pool. Releasing an
// unassigned address changes nothing.
func (s *ProfileService) ReleaseAddress(ctx context.Context, id, address string) (*domain.NetworkProfile, error) {
	address, err := pool.CanonicalAddress(address)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With(zap.String("profile_id", id), zap.String("address", address))
	logger.Info("Releasing address")

	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := pool.Release(current, address)
	if err != nil {
		logger.Warn("Release rejected", zap.Error(err))
		return nil, err
	}

	i := current.AddressList.Index(address)
	if updated.AddressList[i] == current.AddressList[i] {
		return current, nil
	}

	saved, err := s.repo.Update(ctx, updated)
	if err != nil {
		logger.Error("Failed to persist release", zap.Error(err))
		return nil, fmt.Errorf("failed to persist release: %w", err)
	}

	metrics.AddressesReleased.Inc()
	s.afterWrite(ctx, saved)
	s.publish(ctx, domain.EventAddressReleased, saved.ID, ReservationEvent{
		ProfileID: saved.ID,
		Label:     saved.Label,
		Address:   address,
	})

	return saved, nil
}

// ReserveByLabel reserves an address in the profile with the given label.
func (s *ProfileService) ReserveByLabel(ctx context.Context, label, address string, nic domain.NICRef) (*ReservationResult, error) {
	p, err := s.repo.GetByLabel(ctx, label)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: network profile %q", domain.ErrNotFound, label)
		}
		return nil, err
	}
	return s.ReserveAddress(ctx, p.ID, address, nic)
}

// ReleaseByLabel releases an address in the profile with the given label.
func (s *ProfileService) ReleaseByLabel(ctx context.Context, label, address string) error {
	p, err := s.repo.GetByLabel(ctx, label)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: network profile %q", domain.ErrNotFound, label)
		}
		return err
	}
	_, err = s.ReleaseAddress(ctx, p.ID, address)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *ProfileService) afterWrite(ctx context.Context, p *domain.NetworkProfile) {
	metrics.ObserveProfile(p, pool.Available(p))

	if s.cache == nil {
		return
	}
	if err := s.cache.SetProfile(ctx, p); err != nil {
		s.logger.Warn("Failed to cache profile", zap.String("profile_id", p.ID), zap.Error(err))
	}
}

func (s *ProfileService) publish(ctx context.Context, eventType, resourceID string, data interface{}) {
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

func validateSpec(spec *ProfileSpec) error {
	spec.Label = strings.TrimSpace(spec.Label)
	spec.BaseAddress = strings.TrimSpace(spec.BaseAddress)
	spec.Mask = strings.TrimSpace(spec.Mask)
	spec.Gateway = strings.TrimSpace(spec.Gateway)

	if spec.Label == "" {
		return fmt.Errorf("%w: label is required", domain.ErrInvalidArgument)
	}
	if len(spec.Label) > MaxLabelLength {
		return fmt.Errorf("%w: label too long (max %d characters)", domain.ErrInvalidArgument, MaxLabelLength)
	}
	if len(spec.Notes) > MaxNotesLength {
		return fmt.Errorf("%w: notes too long (max %d characters)", domain.ErrInvalidArgument, MaxNotesLength)
	}
	if spec.VLANID < 0 || spec.VLANID > MaxVLANID {
		return fmt.Errorf("%w: vlan_id must be between 0 and %d", domain.ErrInvalidArgument, MaxVLANID)
	}
	if spec.BaseAddress == "" || spec.Mask == "" {
		return fmt.Errorf("%w: base address and mask are required", domain.ErrInvalidSubnetInput)
	}
	return nil
}

func subnetChanged(p *domain.NetworkProfile, spec ProfileSpec) bool {
	return spec.BaseAddress != p.BaseAddress ||
		spec.Mask != p.Mask ||
		(spec.Gateway != "" && spec.Gateway != p.Gateway)
}

// hasReservations reports whether any NIC still holds an address of p.
func hasReservations(p *domain.NetworkProfile) bool {
	if p.AssignedCount > 0 {
		return true
	}
	for _, e := range p.AddressList {
		if e.InUse {
			return true
		}
	}
	return false
}
