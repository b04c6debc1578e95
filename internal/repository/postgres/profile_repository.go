package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/limiquantix/addrpool/internal/domain"
	"github.com/limiquantix/addrpool/internal/services/network"
)

// Ensure ProfileRepository implements network.ProfileRepository
var _ network.ProfileRepository = (*ProfileRepository)(nil)

const profileColumns = `
	id, label, base_address, mask, prefix_length, gateway, vlan_id, overlay, notes,
	address_list, host_count, usable_host_count, assigned_count, version, created_at, updated_at`

// ProfileRepository implements network.ProfileRepository using PostgreSQL.
// The address list is stored as a JSONB array next to its derived counters.
type ProfileRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewProfileRepository creates a new PostgreSQL profile repository.
func NewProfileRepository(db *DB, logger *zap.Logger) *ProfileRepository {
	return &ProfileRepository{
		db:     db,
		logger: logger.With(zap.String("repository", "network_profile")),
	}
}

// Create stores a new network profile.
func (r *ProfileRepository) Create(ctx context.Context, profile *domain.NetworkProfile) (*domain.NetworkProfile, error) {
	p := profile.Clone()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.Version = 1

	listJSON, err := json.Marshal(p.AddressList)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal address_list: %w", err)
	}

	query := `
		INSERT INTO network_profiles (
			id, label, base_address, mask, prefix_length, gateway, vlan_id, overlay, notes,
			address_list, host_count, usable_host_count, assigned_count, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`

	err = r.db.pool.QueryRow(ctx, query,
		p.ID,
		p.Label,
		p.BaseAddress,
		p.Mask,
		p.PrefixLength,
		p.Gateway,
		p.VLANID,
		p.Overlay,
		p.Notes,
		listJSON,
		p.HostCount,
		p.UsableHostCount,
		p.AssignedCount,
		p.Version,
	).Scan(&p.CreatedAt, &p.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrAlreadyExists
		}
		r.logger.Error("Failed to create profile", zap.Error(err), zap.String("label", p.Label))
		return nil, fmt.Errorf("failed to insert profile: %w", err)
	}

	r.logger.Debug("Created profile", zap.String("id", p.ID), zap.String("label", p.Label))
	return p, nil
}

// Get retrieves a profile by ID.
func (r *ProfileRepository) Get(ctx context.Context, id string) (*domain.NetworkProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM network_profiles WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

// GetByLabel retrieves a profile by its label.
func (r *ProfileRepository) GetByLabel(ctx context.Context, label string) (*domain.NetworkProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM network_profiles WHERE label = $1`
	return r.scanOne(ctx, query, label)
}

// List retrieves profiles based on filter criteria, ordered by label.
func (r *ProfileRepository) List(ctx context.Context, filter network.ProfileFilter) ([]*domain.NetworkProfile, error) {
	whereClause := "WHERE 1=1"
	args := []interface{}{}

	if filter.LabelContains != "" {
		whereClause += " AND label ILIKE '%' || $1 || '%'"
		args = append(args, filter.LabelContains)
	}

	query := fmt.Sprintf(`SELECT %s FROM network_profiles %s ORDER BY label`, profileColumns, whereClause)

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*domain.NetworkProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}

	return profiles, nil
}

// Update replaces a profile when profile.Version is still current.
func (r *ProfileRepository) Update(ctx context.Context, profile *domain.NetworkProfile) (*domain.NetworkProfile, error) {
	p := profile.Clone()

	listJSON, err := json.Marshal(p.AddressList)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal address_list: %w", err)
	}

	query := `
		UPDATE network_profiles SET
			label = $3,
			base_address = $4,
			mask = $5,
			prefix_length = $6,
			gateway = $7,
			vlan_id = $8,
			overlay = $9,
			notes = $10,
			address_list = $11,
			host_count = $12,
			usable_host_count = $13,
			assigned_count = $14,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, created_at, updated_at
	`

	err = r.db.pool.QueryRow(ctx, query,
		p.ID,
		p.Version,
		p.Label,
		p.BaseAddress,
		p.Mask,
		p.PrefixLength,
		p.Gateway,
		p.VLANID,
		p.Overlay,
		p.Notes,
		listJSON,
		p.HostCount,
		p.UsableHostCount,
		p.AssignedCount,
	).Scan(&p.Version, &p.CreatedAt, &p.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.missingOrStale(ctx, p.ID)
		}
		if isUniqueViolation(err) {
			return nil, domain.ErrAlreadyExists
		}
		r.logger.Error("Failed to update profile", zap.Error(err), zap.String("id", p.ID))
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	return p, nil
}

// Delete removes a profile by ID.
func (r *ProfileRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.pool.Exec(ctx, `DELETE FROM network_profiles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// missingOrStale tells a deleted profile from a concurrent update.
func (r *ProfileRepository) missingOrStale(ctx context.Context, id string) error {
	var exists bool
	err := r.db.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM network_profiles WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check profile: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}

func (r *ProfileRepository) scanOne(ctx context.Context, query string, args ...interface{}) (*domain.NetworkProfile, error) {
	p, err := scanProfile(r.db.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func scanProfile(row pgx.Row) (*domain.NetworkProfile, error) {
	var p domain.NetworkProfile
	var listJSON []byte

	err := row.Scan(
		&p.ID,
		&p.Label,
		&p.BaseAddress,
		&p.Mask,
		&p.PrefixLength,
		&p.Gateway,
		&p.VLANID,
		&p.Overlay,
		&p.Notes,
		&listJSON,
		&p.HostCount,
		&p.UsableHostCount,
		&p.AssignedCount,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}

	if len(listJSON) > 0 {
		if err := json.Unmarshal(listJSON, &p.AddressList); err != nil {
			return nil, fmt.Errorf("failed to unmarshal address_list: %w", err)
		}
	}

	return &p, nil
}
