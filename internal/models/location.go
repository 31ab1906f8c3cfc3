package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditMetadata holds creation/modification/deletion stamps for an entity.
// Stamping is done by the audit package, never by callers directly.
type AuditMetadata struct {
	CreatedAt time.Time  `json:"created_at"`
	CreatedBy string     `json:"created_by"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	UpdatedBy *string    `json:"updated_by,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy *string    `json:"deleted_by,omitempty"`
}

// Deleted reports whether the entity is soft-deleted.
func (m AuditMetadata) Deleted() bool {
	return m.DeletedAt != nil
}

// TenantBinding pins an entity to the tenant that owns it. The tenant id is
// set exactly once at creation and never changes afterwards.
type TenantBinding struct {
	TenantID string `json:"-"`
}

// Location is a registered location belonging to a single tenant.
type Location struct {
	ID     uuid.UUID `json:"id"`
	Tenant TenantBinding
	Audit  AuditMetadata

	Code   string `json:"code"`
	Name   string `json:"name"`
	Region string `json:"region"`
}

func (l *Location) AuditMeta() *AuditMetadata  { return &l.Audit }
func (l *Location) TenantMeta() *TenantBinding { return &l.Tenant }
