// Package audit stamps creation/modification/deletion metadata on entities.
// Stamping functions are pure: the clock and actor come in as arguments so
// stores can inject a clockwork.Clock and tests a fixed time.
package audit

import (
	"errors"
	"time"

	"github.com/mcdev12/registry/internal/models"
)

// ErrImmutableTenant is returned when a stamp would rebind an entity to a
// tenant other than the one it was created under.
var ErrImmutableTenant = errors.New("entity tenant id is immutable")

// Entity is anything carrying audit metadata and a tenant binding.
type Entity interface {
	AuditMeta() *models.AuditMetadata
	TenantMeta() *models.TenantBinding
}

// StampCreate sets the tenant binding and creation metadata. The tenant id is
// set exactly once: an entity already bound to a different tenant is rejected.
func StampCreate(e Entity, tenantID, actor string, now time.Time) error {
	binding := e.TenantMeta()
	if binding.TenantID != "" && binding.TenantID != tenantID {
		return ErrImmutableTenant
	}
	binding.TenantID = tenantID

	meta := e.AuditMeta()
	meta.CreatedAt = now.UTC()
	meta.CreatedBy = actor
	return nil
}

// StampUpdate sets modification metadata. Creation metadata is never touched.
func StampUpdate(e Entity, actor string, now time.Time) {
	meta := e.AuditMeta()
	t := now.UTC()
	meta.UpdatedAt = &t
	meta.UpdatedBy = &actor
}

// StampDelete marks the entity soft-deleted.
func StampDelete(e Entity, actor string, now time.Time) {
	meta := e.AuditMeta()
	t := now.UTC()
	meta.DeletedAt = &t
	meta.DeletedBy = &actor
}

// ClearDelete removes the soft-delete mark. Used by reactivation flows, which
// also stamp an update so the change is attributable.
func ClearDelete(e Entity) {
	meta := e.AuditMeta()
	meta.DeletedAt = nil
	meta.DeletedBy = nil
}
