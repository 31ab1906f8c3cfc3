package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/registry/internal/audit"
	"github.com/mcdev12/registry/internal/models"
	"github.com/mcdev12/registry/internal/sqlutil"
	"github.com/mcdev12/registry/internal/tenant"
)

const locationColumns = `id, tenant_id, code, name, region,
	created_at, created_by, updated_at, updated_by, deleted_at, deleted_by`

// Postgres implements Store against a locations table. It binds to whatever
// DBTX it is given, so the unit of work hands it the open transaction.
type Postgres struct {
	db    sqlutil.DBTX
	clock clockwork.Clock
}

// NewPostgres creates a tenant-scoped store bound to db.
func NewPostgres(db sqlutil.DBTX, clock clockwork.Clock) *Postgres {
	return &Postgres{db: db, clock: clock}
}

// GetByID retrieves a location owned by the active tenant.
func (s *Postgres) GetByID(ctx context.Context, id uuid.UUID, opts ...QueryOption) (*models.Location, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM locations WHERE id = $1 AND tenant_id = $2`, locationColumns)
	if !applyOptions(opts).includeDeleted {
		query += ` AND deleted_at IS NULL`
	}

	return s.scanOne(s.db.QueryRowContext(ctx, query, id, tenantID))
}

// GetByCode retrieves a location by its tenant-unique code.
func (s *Postgres) GetByCode(ctx context.Context, code string, opts ...QueryOption) (*models.Location, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM locations WHERE code = $1 AND tenant_id = $2`, locationColumns)
	if !applyOptions(opts).includeDeleted {
		query += ` AND deleted_at IS NULL`
	}

	return s.scanOne(s.db.QueryRowContext(ctx, query, code, tenantID))
}

// Find lists the active tenant's locations matching the filter.
func (s *Postgres) Find(ctx context.Context, filter Filter, opts ...QueryOption) ([]models.Location, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	where := []string{"tenant_id = $1"}
	args := []any{tenantID}
	if !applyOptions(opts).includeDeleted {
		where = append(where, "deleted_at IS NULL")
	}
	if filter.Region != nil {
		args = append(args, *filter.Region)
		where = append(where, fmt.Sprintf("region = $%d", len(args)))
	}
	if filter.CodePrefix != nil {
		args = append(args, *filter.CodePrefix+"%")
		where = append(where, fmt.Sprintf("code LIKE $%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM locations WHERE %s ORDER BY created_at`,
		locationColumns, strings.Join(where, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	defer rows.Close()

	var locations []models.Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locations = append(locations, *loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	return locations, nil
}

// Add inserts a new location under the active tenant. The tenant binding and
// creation stamps are applied here, not by the caller.
func (s *Postgres) Add(ctx context.Context, loc *models.Location) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}
	if err := audit.StampCreate(loc, tenantID, tenant.Actor(ctx), s.clock.Now()); err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO locations (id, tenant_id, code, name, region, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		loc.ID, loc.Tenant.TenantID, loc.Code, loc.Name, loc.Region,
		loc.Audit.CreatedAt, loc.Audit.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to insert location: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of a location the active tenant owns.
func (s *Postgres) Update(ctx context.Context, loc *models.Location, opts ...QueryOption) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}
	// The SET clause never touches tenant_id; reject a rebound struct rather
	// than silently writing it back under the original tenant.
	if loc.Tenant.TenantID != "" && loc.Tenant.TenantID != tenantID {
		return audit.ErrImmutableTenant
	}
	audit.StampUpdate(loc, tenant.Actor(ctx), s.clock.Now())

	query := `
		UPDATE locations
		SET code = $3, name = $4, region = $5,
		    updated_at = $6, updated_by = $7, deleted_at = $8, deleted_by = $9
		WHERE id = $1 AND tenant_id = $2`
	if !applyOptions(opts).includeDeleted {
		query += ` AND deleted_at IS NULL`
	}

	res, err := s.db.ExecContext(ctx, query,
		loc.ID, tenantID, loc.Code, loc.Name, loc.Region,
		sqlutil.ToSqlTime(loc.Audit.UpdatedAt), sqlutil.ToSqlString(loc.Audit.UpdatedBy),
		sqlutil.ToSqlTime(loc.Audit.DeletedAt), sqlutil.ToSqlString(loc.Audit.DeletedBy),
	)
	if err != nil {
		return fmt.Errorf("failed to update location: %w", err)
	}
	return requireRow(res)
}

// SoftDelete marks a location deleted without removing the row.
func (s *Postgres) SoftDelete(ctx context.Context, loc *models.Location) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}
	if loc.Tenant.TenantID != "" && loc.Tenant.TenantID != tenantID {
		return audit.ErrImmutableTenant
	}
	audit.StampDelete(loc, tenant.Actor(ctx), s.clock.Now())

	res, err := s.db.ExecContext(ctx, `
		UPDATE locations
		SET deleted_at = $3, deleted_by = $4
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`,
		loc.ID, tenantID,
		sqlutil.ToSqlTime(loc.Audit.DeletedAt), sqlutil.ToSqlString(loc.Audit.DeletedBy),
	)
	if err != nil {
		return fmt.Errorf("failed to soft delete location: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Postgres) scanOne(row *sql.Row) (*models.Location, error) {
	loc, err := scanLocation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return loc, nil
}

func scanLocation(row rowScanner) (*models.Location, error) {
	var loc models.Location
	var updatedAt, deletedAt sql.NullTime
	var updatedBy, deletedBy sql.NullString

	err := row.Scan(
		&loc.ID, &loc.Tenant.TenantID, &loc.Code, &loc.Name, &loc.Region,
		&loc.Audit.CreatedAt, &loc.Audit.CreatedBy,
		&updatedAt, &updatedBy, &deletedAt, &deletedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan location: %w", err)
	}

	loc.Audit.UpdatedAt = sqlutil.FromSqlTime(updatedAt)
	loc.Audit.UpdatedBy = sqlutil.FromSqlStringPtr(updatedBy)
	loc.Audit.DeletedAt = sqlutil.FromSqlTime(deletedAt)
	loc.Audit.DeletedBy = sqlutil.FromSqlStringPtr(deletedBy)
	return &loc, nil
}
