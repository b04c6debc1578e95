package network

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/limiquantix/addrpool/internal/config"
	"github.com/limiquantix/addrpool/internal/domain"
)

// MockProfileRepository is a mock implementation of the ProfileRepository interface.
type MockProfileRepository struct {
	mu       sync.Mutex
	profiles map[string]*domain.NetworkProfile
	updateFn func(ctx context.Context, profile *domain.NetworkProfile) (*domain.NetworkProfile, error)
}

func NewMockProfileRepository() *MockProfileRepository {
	return &MockProfileRepository{
		profiles: make(map[string]*domain.NetworkProfile),
	}
}

func (m *MockProfileRepository) Create(ctx context.Context, profile *domain.NetworkProfile) (*domain.NetworkProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.Label == profile.Label {
			return nil, domain.ErrAlreadyExists
		}
	}
	p := profile.Clone()
	p.ID = uuid.New().String()
	p.Version = 1
	m.profiles[p.ID] = p
	return p.Clone(), nil
}

func (m *MockProfileRepository) Get(ctx context.Context, id string) (*domain.NetworkProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (m *MockProfileRepository) GetByLabel(ctx context.Context, label string) (*domain.NetworkProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.Label == label {
			return p.Clone(), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockProfileRepository) List(ctx context.Context, filter ProfileFilter) ([]*domain.NetworkProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.NetworkProfile
	for _, p := range m.profiles {
		if strings.Contains(p.Label, filter.LabelContains) {
			result = append(result, p.Clone())
		}
	}
	return result, nil
}

func (m *MockProfileRepository) Update(ctx context.Context, profile *domain.NetworkProfile) (*domain.NetworkProfile, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, profile)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.profiles[profile.ID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if stored.Version != profile.Version {
		return nil, domain.ErrConflict
	}
	p := profile.Clone()
	p.Version++
	m.profiles[p.ID] = p
	return p.Clone(), nil
}

func (m *MockProfileRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.profiles, id)
	return nil
}

// MockWorkloadStore is a mock implementation of the WorkloadStore interface.
type MockWorkloadStore struct {
	mu        sync.Mutex
	workloads map[string]*domain.Workload

	// failUpdates makes the next n Update calls return ErrConflict.
	failUpdates int
}

func NewMockWorkloadStore() *MockWorkloadStore {
	return &MockWorkloadStore{
		workloads: make(map[string]*domain.Workload),
	}
}

func (m *MockWorkloadStore) put(w *domain.Workload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workloads[w.ID] = w.Clone()
}

func (m *MockWorkloadStore) get(id string) *domain.Workload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.workloads[id].Clone()
}

func (m *MockWorkloadStore) Get(ctx context.Context, id string) (*domain.Workload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workloads[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return w.Clone(), nil
}

func (m *MockWorkloadStore) ListByProfileLabel(ctx context.Context, label string) ([]*domain.Workload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Workload
	for _, w := range m.workloads {
		for _, nic := range w.NICs {
			if nic.ProfileLabel == label {
				result = append(result, w.Clone())
				break
			}
		}
	}
	return result, nil
}

func (m *MockWorkloadStore) Update(ctx context.Context, workload *domain.Workload) (*domain.Workload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdates > 0 {
		m.failUpdates--
		return nil, domain.ErrConflict
	}
	w := workload.Clone()
	w.Version++
	m.workloads[w.ID] = w
	return w.Clone(), nil
}

// recordingPublisher collects published event types.
type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *recordingPublisher) PublishEvent(ctx context.Context, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, event.Type)
	return nil
}

func testPoolConfig() config.PoolConfig {
	return config.PoolConfig{
		MaxHostCount: 65536,
		LockTimeout:  time.Second,
	}
}

func newTestService(t *testing.T) (*ProfileService, *MockProfileRepository, *MockWorkloadStore) {
	t.Helper()
	repo := NewMockProfileRepository()
	workloads := NewMockWorkloadStore()
	return NewProfileService(repo, workloads, testPoolConfig(), zap.NewNop()), repo, workloads
}

func createLAN(t *testing.T, svc *ProfileService) *domain.NetworkProfile {
	t.Helper()
	res, err := svc.CreateProfile(context.Background(), ProfileSpec{
		Label:       "lan",
		BaseAddress: "192.168.1.0",
		Mask:        "255.255.255.0/24",
	})
	if err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}
	return res.Profile
}

// =============================================================================
// Unit Tests
// =============================================================================

func TestProfileService_CreateProfile_Success(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := createLAN(t, svc)

	if p.ID == "" {
		t.Error("Expected profile ID to be set")
	}
	if p.HostCount != 256 {
		t.Errorf("Expected host count 256, got %d", p.HostCount)
	}
	if p.UsableHostCount != 254 {
		t.Errorf("Expected usable host count 254, got %d", p.UsableHostCount)
	}
	if p.AssignedCount != 0 {
		t.Errorf("Expected assigned count 0, got %d", p.AssignedCount)
	}
	if p.Gateway != "192.168.1.1" {
		t.Errorf("Expected gateway 192.168.1.1, got %s", p.Gateway)
	}
	if p.PrefixLength != 24 {
		t.Errorf("Expected prefix length 24, got %d", p.PrefixLength)
	}
	if p.AddressList[1].Role != domain.RoleGateway {
		t.Errorf("Expected gateway role at index 1, got %s", p.AddressList[1].Role)
	}
}

func TestProfileService_CreateProfile_MissingLabel(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateProfile(context.Background(), ProfileSpec{
		BaseAddress: "10.0.0.0",
		Mask:        "255.255.255.0",
	})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}

func TestProfileService_CreateProfile_InvalidSubnet(t *testing.T) {
	svc, _, _ := newTestService(t)

	tests := []struct {
		name string
		base string
		mask string
	}{
		{"bad octet", "10.0.0.256", "255.255.255.0"},
		{"non contiguous mask", "10.0.0.0", "255.0.255.0"},
		{"missing mask", "10.0.0.0", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateProfile(context.Background(), ProfileSpec{
				Label:       "bad",
				BaseAddress: tt.base,
				Mask:        tt.mask,
			})
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !errors.Is(err, domain.ErrInvalidSubnetInput) && !errors.Is(err, domain.ErrInvalidAddressFormat) {
				t.Errorf("Expected subnet input error, got %v", err)
			}
		})
	}
}

func TestProfileService_CreateProfile_ExceedsMaxHostCount(t *testing.T) {
	cfg := testPoolConfig()
	cfg.MaxHostCount = 256
	svc := NewProfileService(NewMockProfileRepository(), NewMockWorkloadStore(), cfg, zap.NewNop())

	_, err := svc.CreateProfile(context.Background(), ProfileSpec{
		Label:       "big",
		BaseAddress: "10.0.0.0",
		Mask:        "255.255.254.0",
	})
	if !errors.Is(err, domain.ErrInvalidSubnetInput) {
		t.Errorf("Expected ErrInvalidSubnetInput, got %v", err)
	}
}

func TestProfileService_CreateProfile_DuplicateLabel(t *testing.T) {
	svc, _, _ := newTestService(t)
	createLAN(t, svc)

	_, err := svc.CreateProfile(context.Background(), ProfileSpec{
		Label:       "lan",
		BaseAddress: "10.0.0.0",
		Mask:        "255.255.255.0",
	})
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}
}

func TestProfileService_CreateProfile_PublishesEvent(t *testing.T) {
	events := &recordingPublisher{}
	svc := NewProfileService(NewMockProfileRepository(), NewMockWorkloadStore(), testPoolConfig(), zap.NewNop(),
		WithEventPublisher(events))
	createLAN(t, svc)

	if len(events.types) != 1 || events.types[0] != domain.EventProfileCreated {
		t.Errorf("Expected [%s], got %v", domain.EventProfileCreated, events.types)
	}
}

func TestProfileService_PreviewPool(t *testing.T) {
	svc, repo, _ := newTestService(t)

	preview, err := svc.PreviewPool("10.1.0.0", "255.255.255.252", "")
	if err != nil {
		t.Fatalf("PreviewPool failed: %v", err)
	}
	if len(preview.AddressList) != 4 {
		t.Errorf("Expected 4 entries, got %d", len(preview.AddressList))
	}
	if preview.Gateway != "10.1.0.1" {
		t.Errorf("Expected gateway 10.1.0.1, got %s", preview.Gateway)
	}
	if len(repo.profiles) != 0 {
		t.Errorf("Expected nothing stored, got %d profiles", len(repo.profiles))
	}
}

func TestProfileService_ReserveAddress_Success(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := createLAN(t, svc)

	res, err := svc.ReserveAddress(context.Background(), p.ID, "192.168.1.10", domain.NICRef{WorkloadID: "w1", NICID: "NIC1"})
	if err != nil {
		t.Fatalf("ReserveAddress failed: %v", err)
	}
	if res.Profile.AssignedCount != 1 {
		t.Errorf("Expected assigned count 1, got %d", res.Profile.AssignedCount)
	}
	if res.Profile.Version != p.Version+1 {
		t.Errorf("Expected version %d, got %d", p.Version+1, res.Profile.Version)
	}
	if got := res.Profile.AddressList[10].Role; got != domain.RoleAssigned {
		t.Errorf("Expected assigned role, got %s", got)
	}
}

func TestProfileService_ReserveAddress_ZeroPadded(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := createLAN(t, svc)
	ctx := context.Background()

	res, err := svc.ReserveAddress(ctx, p.ID, "192.168.1.010", domain.NICRef{WorkloadID: "w1", NICID: "NIC1"})
	if err != nil {
		t.Fatalf("ReserveAddress failed: %v", err)
	}
	if res.Address != "192.168.1.10" {
		t.Errorf("Expected 192.168.1.10, got %s", res.Address)
	}

	if _, err := svc.ReleaseAddress(ctx, p.ID, "192.168.001.10"); err != nil {
		t.Fatalf("ReleaseAddress failed: %v", err)
	}
	got, err := svc.GetProfile(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if got.AssignedCount != 0 {
		t.Errorf("Expected 0 assigned, got %d", got.AssignedCount)
	}

	if _, err := svc.ReleaseAddress(ctx, p.ID, "192.168.1"); !errors.Is(err, domain.ErrInvalidAddressFormat) {
		t.Errorf("Expected ErrInvalidAddressFormat, got %v", err)
	}
}

func TestProfileService_ReserveAddress_Next(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := createLAN(t, svc)

	res, err := svc.ReserveAddress(context.Background(), p.ID, "", domain.NICRef{WorkloadID: "w1", NICID: "NIC1"})
	if err != nil {
		t.Fatalf("ReserveAddress failed: %v", err)
	}
	if res.Address != "192.168.1.2" {
		t.Errorf("Expected 192.168.1.2, got %s", res.Address)
	}

	res, err = svc.ReserveNext(context.Background(), p.ID, domain.NICRef{WorkloadID: "w1", NICID: "NIC2"})
	if err != nil {
		t.Fatalf("ReserveNext failed: %v", err)
	}
	if res.Address != "192.168.1.3" {
		t.Errorf("Expected 192.168.1.3, got %s", res.Address)
	}
}

func TestProfileService_ReserveAddress_Gateway(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := createLAN(t, svc)

	_, err := svc.ReserveAddress(context.Background(), p.ID, "192.168.1.1", domain.NICRef{WorkloadID: "w1", NICID: "NIC1"})
	if !errors.Is(err, domain.ErrAddressNotReservable) {
		t.Errorf("Expected ErrAddressNotReservable, got %v", err)
	}
}

func TestProfileService_ReserveAddress_AlreadyAssigned(t *testing.T) {
	svc, _, workloads := newTestService(t)
	p := createLAN(t, svc)
	ctx := context.Background()

	if _, err := svc.ReserveAddress(ctx, p.ID, "192.168.1.10", domain.NICRef{WorkloadID: "w1", NICID: "NIC1"}); err != nil {
		t.Fatalf("ReserveAddress failed: %v", err)
	}
	workloads.put(&domain.Workload{
		ID:   "w1",
		NICs: []domain.NIC{{NICID: "NIC1", Address: "192.168.1.10", ProfileLabel: "lan"}},
	})

	// same NIC again is accepted without a write
	res, err := svc.ReserveAddress(ctx, p.ID, "192.168.1.10", domain.NICRef{WorkloadID: "w1", NICID: "NIC1"})
	if err != nil {
		t.Fatalf("Expected idempotent reservation, got %v", err)
	}
	if res.Profile.Version != p.Version+1 {
		t.Errorf("Expected version to stay %d, got %d", p.Version+1, res.Profile.Version)
	}

	_, err = svc.ReserveAddress(ctx, p.ID, "192.168.1.10", domain.NICRef{WorkloadID: "w2", NICID: "NIC1"})
	if !errors.Is(err, domain.ErrAddressAlreadyAssigned) {
		t.Errorf("Expected ErrAddressAlreadyAssigned, got %v", err)
	}
}

func TestProfileService_ReserveAddress_Exhausted(t *testing.T) {
	svc, _, _ := newTestService(t)
	res, err := svc.CreateProfile(context.Background(), ProfileSpec{
		Label:       "p2p",
		BaseAddress: "10.9.0.0",
		Mask:        "255.255.255.252",
	})
	if err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}
	id := res.Profile.ID

	if _, err := svc.ReserveAddress(context.Background(), id, "", domain.NICRef{WorkloadID: "w1", NICID: "NIC1"}); err != nil {
		t.Fatalf("ReserveAddress failed: %v", err)
	}
	_, err = svc.ReserveAddress(context.Background(), id, "", domain.NICRef{WorkloadID: "w2", NICID: "NIC1"})
	if !errors.Is(err, domain.ErrPoolExhausted) {
		t.Errorf("Expected ErrPoolExhausted, got %v", err)
	}
}

func TestProfileService_ReserveAddress_NotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ReserveAddress(context.Background(), "missing", "10.0.0.1", domain.NICRef{WorkloadID: "w1", NICID: "NIC1"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestProfileService_ReserveByLabel_UnknownLabel(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ReserveByLabel(context.Background(), "nope", "10.0.0.1", domain.NICRef{WorkloadID: "w1", NICID: "NIC1"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestProfileService_ReleaseAddress(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := createLAN(t, svc)
	ctx := context.Background()

	if _, err := svc.ReserveAddress(ctx, p.ID, "192.168.1.20", domain.NICRef{WorkloadID: "w1", NICID: "NIC1"}); err != nil {
		t.Fatalf("ReserveAddress failed: %v", err)
	}

	released, err := svc.ReleaseAddress(ctx, p.ID, "192.168.1.20")
	if err != nil {
		t.Fatalf("ReleaseAddress failed: %v", err)
	}
	if released.AssignedCount != 0 {
		t.Errorf("Expected assigned count 0, got %d", released.AssignedCount)
	}

	// releasing again changes nothing
	again, err := svc.ReleaseAddress(ctx, p.ID, "192.168.1.20")
	if err != nil {
		t.Fatalf("ReleaseAddress failed: %v", err)
	}
	if again.Version != released.Version {
		t.Errorf("Expected version %d, got %d", released.Version, again.Version)
	}

	if _, err := svc.ReleaseAddress(ctx, p.ID, "192.168.1.255"); !errors.Is(err, domain.ErrAddressNotReservable) {
		t.Errorf("Expected ErrAddressNotReservable, got %v", err)
	}
}

func TestProfileService_UpdateProfile_MaskChangeOrphans(t *testing.T) {
	svc, _, workloads := newTestService(t)
	p := createLAN(t, svc)
	ctx := context.Background()

	for _, r := range []struct{ addr, wid string }{
		{"192.168.1.10", "w1"},
		{"192.168.1.200", "w2"},
	} {
		if _, err := svc.ReserveAddress(ctx, p.ID, r.addr, domain.NICRef{WorkloadID: r.wid, NICID: "NIC1"}); err != nil {
			t.Fatalf("ReserveAddress failed: %v", err)
		}
		workloads.put(&domain.Workload{
			ID:   r.wid,
			NICs: []domain.NIC{{NICID: "NIC1", Address: r.addr, ProfileLabel: "lan"}},
		})
	}

	res, err := svc.UpdateProfile(ctx, p.ID, ProfileSpec{
		Label:       "lan",
		BaseAddress: "192.168.1.0",
		Mask:        "255.255.255.128",
	})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}

	if res.Profile.HostCount != 128 {
		t.Errorf("Expected host count 128, got %d", res.Profile.HostCount)
	}
	if res.Profile.AssignedCount != 1 {
		t.Errorf("Expected assigned count 1, got %d", res.Profile.AssignedCount)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("Expected 1 warning, got %d", len(res.Warnings))
	}
	w := res.Warnings[0]
	if w.Address != "192.168.1.200" || w.WorkloadID != "w2" || w.NICID != "NIC1" {
		t.Errorf("Unexpected warning: %+v", w)
	}
	if w.Reason != domain.OrphanOutOfRange {
		t.Errorf("Expected reason %s, got %s", domain.OrphanOutOfRange, w.Reason)
	}
	if !w.Detached {
		t.Error("Expected orphan to be reported as detached")
	}

	if got := workloads.get("w2").NICs[0].Address; got != "" {
		t.Errorf("Expected orphaned NIC address to be cleared, got %s", got)
	}
	if got := workloads.get("w1").NICs[0].Address; got != "192.168.1.10" {
		t.Errorf("Expected surviving NIC to keep 192.168.1.10, got %s", got)
	}
}

// shrinkWithOrphan reserves .200 for w2 on the lan profile and then shrinks
// the profile to a /25 so that reservation is orphaned.
func shrinkWithOrphan(t *testing.T, svc *ProfileService, workloads *MockWorkloadStore, failUpdates int) *ProfileResult {
	t.Helper()
	p := createLAN(t, svc)
	ctx := context.Background()

	if _, err := svc.ReserveAddress(ctx, p.ID, "192.168.1.200", domain.NICRef{WorkloadID: "w2", NICID: "NIC1"}); err != nil {
		t.Fatalf("ReserveAddress failed: %v", err)
	}
	workloads.put(&domain.Workload{
		ID:   "w2",
		NICs: []domain.NIC{{NICID: "NIC1", Address: "192.168.1.200", ProfileLabel: "lan"}},
	})
	workloads.mu.Lock()
	workloads.failUpdates = failUpdates
	workloads.mu.Unlock()

	res, err := svc.UpdateProfile(ctx, p.ID, ProfileSpec{
		Label:       "lan",
		BaseAddress: "192.168.1.0",
		Mask:        "255.255.255.128",
	})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("Expected 1 warning, got %d", len(res.Warnings))
	}
	return res
}

func TestProfileService_UpdateProfile_DetachRetriesAfterConflict(t *testing.T) {
	svc, _, workloads := newTestService(t)
	res := shrinkWithOrphan(t, svc, workloads, 1)

	if !res.Warnings[0].Detached {
		t.Error("Expected orphan to be detached after retry")
	}
	if got := workloads.get("w2").NICs[0].Address; got != "" {
		t.Errorf("Expected orphaned NIC address to be cleared, got %s", got)
	}
}

func TestProfileService_UpdateProfile_DetachFailureReported(t *testing.T) {
	svc, _, workloads := newTestService(t)
	res := shrinkWithOrphan(t, svc, workloads, 2)

	w := res.Warnings[0]
	if w.Detached {
		t.Error("Expected orphan to be reported as not detached")
	}
	if w.WorkloadID != "w2" || w.NICID != "NIC1" {
		t.Errorf("Expected warning to name w2/NIC1, got %+v", w)
	}
	if got := workloads.get("w2").NICs[0].Address; got != "192.168.1.200" {
		t.Errorf("Expected NIC to keep 192.168.1.200, got %s", got)
	}
}

func TestProfileService_GetProfileByLabel(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := createLAN(t, svc)
	ctx := context.Background()

	got, err := svc.GetProfileByLabel(ctx, "lan")
	if err != nil {
		t.Fatalf("GetProfileByLabel failed: %v", err)
	}
	if got.ID != p.ID {
		t.Errorf("Expected profile %s, got %s", p.ID, got.ID)
	}

	if _, err := svc.GetProfileByLabel(ctx, "wan"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestProfileService_UpdateProfile_MetadataOnly(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := createLAN(t, svc)

	res, err := svc.UpdateProfile(context.Background(), p.ID, ProfileSpec{
		Label:       "lan",
		BaseAddress: "192.168.1.0",
		Mask:        "255.255.255.0/24",
		VLANID:      100,
		Notes:       "office",
	})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if res.Profile.VLANID != 100 || res.Profile.Notes != "office" {
		t.Errorf("Expected metadata to be updated, got %+v", res.Profile)
	}
	if len(res.Profile.AddressList) != 256 {
		t.Errorf("Expected address list to be kept, got %d entries", len(res.Profile.AddressList))
	}
}

func TestProfileService_UpdateProfile_RenameWithAssignments(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := createLAN(t, svc)
	ctx := context.Background()

	if _, err := svc.ReserveAddress(ctx, p.ID, "192.168.1.10", domain.NICRef{WorkloadID: "w1", NICID: "NIC1"}); err != nil {
		t.Fatalf("ReserveAddress failed: %v", err)
	}

	_, err := svc.UpdateProfile(ctx, p.ID, ProfileSpec{
		Label:       "lan-renamed",
		BaseAddress: "192.168.1.0",
		Mask:        "255.255.255.0",
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Expected ErrConflict, got %v", err)
	}
}

func TestProfileService_UpdateProfile_StaleVersion(t *testing.T) {
	svc, repo, _ := newTestService(t)
	p := createLAN(t, svc)
	repo.updateFn = func(ctx context.Context, profile *domain.NetworkProfile) (*domain.NetworkProfile, error) {
		return nil, domain.ErrConflict
	}

	_, err := svc.UpdateProfile(context.Background(), p.ID, ProfileSpec{
		Label:       "lan",
		BaseAddress: "192.168.1.0",
		Mask:        "255.255.255.0",
		Notes:       "x",
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Expected ErrConflict, got %v", err)
	}
}

func TestProfileService_DeleteProfile(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := createLAN(t, svc)
	ctx := context.Background()

	if _, err := svc.ReserveAddress(ctx, p.ID, "192.168.1.10", domain.NICRef{WorkloadID: "w1", NICID: "NIC1"}); err != nil {
		t.Fatalf("ReserveAddress failed: %v", err)
	}
	if err := svc.DeleteProfile(ctx, p.ID); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Expected ErrConflict, got %v", err)
	}

	if _, err := svc.ReleaseAddress(ctx, p.ID, "192.168.1.10"); err != nil {
		t.Fatalf("ReleaseAddress failed: %v", err)
	}
	if err := svc.DeleteProfile(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProfile failed: %v", err)
	}
	if _, err := svc.GetProfile(ctx, p.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestProfileService_GetStatistics(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := createLAN(t, svc)
	ctx := context.Background()

	if _, err := svc.ReserveAddress(ctx, p.ID, "192.168.1.10", domain.NICRef{WorkloadID: "w1", NICID: "NIC1"}); err != nil {
		t.Fatalf("ReserveAddress failed: %v", err)
	}

	stats, err := svc.GetStatistics(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetStatistics failed: %v", err)
	}
	if stats.AssignedCount != 1 {
		t.Errorf("Expected 1 assigned, got %d", stats.AssignedCount)
	}
	if stats.AvailableCount != 252 {
		t.Errorf("Expected 252 available, got %d", stats.AvailableCount)
	}
	if stats.NetworkAddress != "192.168.1.0" || stats.BroadcastAddress != "192.168.1.255" {
		t.Errorf("Unexpected bounds %s - %s", stats.NetworkAddress, stats.BroadcastAddress)
	}
	if stats.Exhausted {
		t.Error("Expected pool not to be exhausted")
	}
}

func TestProfileService_ConcurrentReservations(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := createLAN(t, svc)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.ReserveAddress(ctx, p.ID, "", domain.NICRef{WorkloadID: uuid.New().String(), NICID: "NIC1"})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Unexpected error: %v", err)
		}
	}

	got, err := svc.GetProfile(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if got.AssignedCount != 20 {
		t.Errorf("Expected 20 assigned, got %d", got.AssignedCount)
	}
}
