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
	"github.com/limiquantix/addrpool/internal/services/workload"
)

// Ensure WorkloadRepository implements the workload and profile-side interfaces
var (
	_ workload.Repository   = (*WorkloadRepository)(nil)
	_ network.WorkloadStore = (*WorkloadRepository)(nil)
)

const workloadColumns = `id, vm_id, vm_name, guest_os, notes, nics, version, created_at, updated_at`

// WorkloadRepository implements workload.Repository using PostgreSQL. NICs are
// stored as a JSONB array so reservation holders can be found with a containment query.
type WorkloadRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewWorkloadRepository creates a new PostgreSQL workload repository.
func NewWorkloadRepository(db *DB, logger *zap.Logger) *WorkloadRepository {
	return &WorkloadRepository{
		db:     db,
		logger: logger.With(zap.String("repository", "workload")),
	}
}

// Create stores a new workload.
func (r *WorkloadRepository) Create(ctx context.Context, w *domain.Workload) (*domain.Workload, error) {
	out := w.Clone()
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	out.Version = 1

	nicsJSON, err := marshalNICs(out.NICs)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO workloads (id, vm_id, vm_name, guest_os, notes, nics, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err = r.db.pool.QueryRow(ctx, query,
		out.ID, out.VMID, out.VMName, out.GuestOS, out.Notes, nicsJSON, out.Version,
	).Scan(&out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrAlreadyExists
		}
		r.logger.Error("Failed to create workload", zap.Error(err), zap.String("vm_name", out.VMName))
		return nil, fmt.Errorf("failed to insert workload: %w", err)
	}

	return out, nil
}

// Get retrieves a workload by ID.
func (r *WorkloadRepository) Get(ctx context.Context, id string) (*domain.Workload, error) {
	row := r.db.pool.QueryRow(ctx, `SELECT `+workloadColumns+` FROM workloads WHERE id = $1`, id)
	w, err := scanWorkload(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return w, nil
}

// List returns the workloads matching the filter, ordered by VM name.
func (r *WorkloadRepository) List(ctx context.Context, filter workload.Filter) ([]*domain.Workload, error) {
	whereClause := "WHERE 1=1"
	args := []interface{}{}
	argNum := 1

	if filter.NameContains != "" {
		whereClause += fmt.Sprintf(" AND vm_name ILIKE '%%' || $%d || '%%'", argNum)
		args = append(args, filter.NameContains)
		argNum++
	}

	if filter.ProfileLabel != "" {
		whereClause += fmt.Sprintf(" AND nics @> jsonb_build_array(jsonb_build_object('profile_label', $%d::text))", argNum)
		args = append(args, filter.ProfileLabel)
	}

	query := fmt.Sprintf(`SELECT %s FROM workloads %s ORDER BY vm_name, id`, workloadColumns, whereClause)

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workloads: %w", err)
	}
	defer rows.Close()

	var workloads []*domain.Workload
	for rows.Next() {
		w, err := scanWorkload(rows)
		if err != nil {
			return nil, err
		}
		workloads = append(workloads, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workloads: %w", err)
	}

	return workloads, nil
}

// ListByProfileLabel returns the workloads with a NIC in the profile.
func (r *WorkloadRepository) ListByProfileLabel(ctx context.Context, label string) ([]*domain.Workload, error) {
	return r.List(ctx, workload.Filter{ProfileLabel: label})
}

// Update replaces a workload when w.Version is still current.
func (r *WorkloadRepository) Update(ctx context.Context, w *domain.Workload) (*domain.Workload, error) {
	out := w.Clone()

	nicsJSON, err := marshalNICs(out.NICs)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE workloads SET
			vm_id = $3,
			vm_name = $4,
			guest_os = $5,
			notes = $6,
			nics = $7,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, created_at, updated_at
	`

	err = r.db.pool.QueryRow(ctx, query,
		out.ID, out.Version, out.VMID, out.VMName, out.GuestOS, out.Notes, nicsJSON,
	).Scan(&out.Version, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.Get(ctx, out.ID); errors.Is(getErr, domain.ErrNotFound) {
				return nil, domain.ErrNotFound
			}
			return nil, domain.ErrConflict
		}
		r.logger.Error("Failed to update workload", zap.Error(err), zap.String("id", out.ID))
		return nil, fmt.Errorf("failed to update workload: %w", err)
	}

	return out, nil
}

// Delete removes a workload by ID.
func (r *WorkloadRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.pool.Exec(ctx, `DELETE FROM workloads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workload: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func marshalNICs(nics []domain.NIC) ([]byte, error) {
	if nics == nil {
		nics = []domain.NIC{}
	}
	data, err := json.Marshal(nics)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal nics: %w", err)
	}
	return data, nil
}

func scanWorkload(row pgx.Row) (*domain.Workload, error) {
	var w domain.Workload
	var nicsJSON []byte

	err := row.Scan(
		&w.ID,
		&w.VMID,
		&w.VMName,
		&w.GuestOS,
		&w.Notes,
		&nicsJSON,
		&w.Version,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan workload: %w", err)
	}

	if len(nicsJSON) > 0 {
		if err := json.Unmarshal(nicsJSON, &w.NICs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal nics: %w", err)
		}
	}

	return &w, nil
}
