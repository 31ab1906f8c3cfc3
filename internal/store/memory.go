package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/registry/internal/audit"
	"github.com/mcdev12/registry/internal/models"
	"github.com/mcdev12/registry/internal/tenant"
)

// MemoryDB is an in-memory location table with staged-overlay transactions.
// It backs the memory unit of work used in tests and local development.
type MemoryDB struct {
	mu        sync.RWMutex
	locations map[uuid.UUID]models.Location
	clock     clockwork.Clock
}

// NewMemoryDB creates an empty in-memory location table.
func NewMemoryDB(clock clockwork.Clock) *MemoryDB {
	return &MemoryDB{
		locations: map[uuid.UUID]models.Location{},
		clock:     clock,
	}
}

// Begin opens a staged view over the committed state. Writes land in the
// overlay until Commit.
func (db *MemoryDB) Begin() *MemoryTx {
	return &MemoryTx{
		db:     db,
		staged: map[uuid.UUID]models.Location{},
	}
}

// Count reports committed rows, ignoring tenancy. Test helper.
func (db *MemoryDB) Count() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.locations)
}

// MemoryTx is a single transaction's view of a MemoryDB. It implements Store
// with read-your-writes semantics inside the transaction.
type MemoryTx struct {
	db     *MemoryDB
	staged map[uuid.UUID]models.Location
}

// Commit applies staged writes to the committed state.
func (tx *MemoryTx) Commit() {
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	for id, loc := range tx.staged {
		tx.db.locations[id] = loc
	}
	tx.staged = map[uuid.UUID]models.Location{}
}

// Discard drops all staged writes.
func (tx *MemoryTx) Discard() {
	tx.staged = map[uuid.UUID]models.Location{}
}

func (tx *MemoryTx) lookup(id uuid.UUID) (models.Location, bool) {
	if loc, ok := tx.staged[id]; ok {
		return loc, true
	}
	tx.db.mu.RLock()
	defer tx.db.mu.RUnlock()
	loc, ok := tx.db.locations[id]
	return loc, ok
}

func (tx *MemoryTx) all() []models.Location {
	tx.db.mu.RLock()
	locations := make([]models.Location, 0, len(tx.db.locations)+len(tx.staged))
	for id, loc := range tx.db.locations {
		if _, shadowed := tx.staged[id]; shadowed {
			continue
		}
		locations = append(locations, loc)
	}
	tx.db.mu.RUnlock()
	for _, loc := range tx.staged {
		locations = append(locations, loc)
	}
	sort.Slice(locations, func(i, j int) bool {
		return locations[i].Audit.CreatedAt.Before(locations[j].Audit.CreatedAt)
	})
	return locations
}

func visible(loc models.Location, tenantID string, opts queryOptions) bool {
	if loc.Tenant.TenantID != tenantID {
		return false
	}
	if loc.Audit.Deleted() && !opts.includeDeleted {
		return false
	}
	return true
}

// GetByID retrieves a location owned by the active tenant.
func (tx *MemoryTx) GetByID(ctx context.Context, id uuid.UUID, opts ...QueryOption) (*models.Location, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	loc, ok := tx.lookup(id)
	if !ok || !visible(loc, tenantID, applyOptions(opts)) {
		return nil, ErrNotFound
	}
	return &loc, nil
}

// GetByCode retrieves a location by its tenant-unique code.
func (tx *MemoryTx) GetByCode(ctx context.Context, code string, opts ...QueryOption) (*models.Location, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	o := applyOptions(opts)
	for _, loc := range tx.all() {
		if loc.Code == code && visible(loc, tenantID, o) {
			return &loc, nil
		}
	}
	return nil, ErrNotFound
}

// Find lists the active tenant's locations matching the filter.
func (tx *MemoryTx) Find(ctx context.Context, filter Filter, opts ...QueryOption) ([]models.Location, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	o := applyOptions(opts)

	var out []models.Location
	for _, loc := range tx.all() {
		if !visible(loc, tenantID, o) {
			continue
		}
		if filter.Region != nil && loc.Region != *filter.Region {
			continue
		}
		if filter.CodePrefix != nil && !strings.HasPrefix(loc.Code, *filter.CodePrefix) {
			continue
		}
		out = append(out, loc)
	}
	return out, nil
}

// Add stages a new location under the active tenant.
func (tx *MemoryTx) Add(ctx context.Context, loc *models.Location) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}
	if err := audit.StampCreate(loc, tenantID, tenant.Actor(ctx), tx.db.clock.Now()); err != nil {
		return err
	}
	tx.staged[loc.ID] = *loc
	return nil
}

// Update stages a rewrite of a location the active tenant owns.
func (tx *MemoryTx) Update(ctx context.Context, loc *models.Location, opts ...QueryOption) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}
	existing, ok := tx.lookup(loc.ID)
	if !ok || existing.Tenant.TenantID != tenantID {
		return ErrNotFound
	}
	if existing.Audit.Deleted() && !applyOptions(opts).includeDeleted {
		return ErrNotFound
	}
	if loc.Tenant.TenantID != "" && loc.Tenant.TenantID != existing.Tenant.TenantID {
		return audit.ErrImmutableTenant
	}
	loc.Tenant.TenantID = existing.Tenant.TenantID
	audit.StampUpdate(loc, tenant.Actor(ctx), tx.db.clock.Now())
	tx.staged[loc.ID] = *loc
	return nil
}

// SoftDelete stages a soft delete of a location the active tenant owns.
func (tx *MemoryTx) SoftDelete(ctx context.Context, loc *models.Location) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}
	existing, ok := tx.lookup(loc.ID)
	if !ok || existing.Tenant.TenantID != tenantID || existing.Audit.Deleted() {
		return ErrNotFound
	}
	if loc.Tenant.TenantID != "" && loc.Tenant.TenantID != existing.Tenant.TenantID {
		return audit.ErrImmutableTenant
	}
	loc.Tenant.TenantID = existing.Tenant.TenantID
	audit.StampDelete(loc, tenant.Actor(ctx), tx.db.clock.Now())
	tx.staged[loc.ID] = *loc
	return nil
}
