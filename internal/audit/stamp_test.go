package audit

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/registry/internal/models"
)

var fixedTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newLocation() *models.Location {
	return &models.Location{ID: uuid.New(), Code: "LOC-001", Name: "Main"}
}

func TestStampCreate(t *testing.T) {
	loc := newLocation()

	if err := StampCreate(loc, "ProductA", "alice", fixedTime); err != nil {
		t.Fatalf("StampCreate failed: %v", err)
	}

	if loc.Tenant.TenantID != "ProductA" {
		t.Errorf("TenantID = %q, want %q", loc.Tenant.TenantID, "ProductA")
	}
	if !loc.Audit.CreatedAt.Equal(fixedTime) {
		t.Errorf("CreatedAt = %v, want %v", loc.Audit.CreatedAt, fixedTime)
	}
	if loc.Audit.CreatedBy != "alice" {
		t.Errorf("CreatedBy = %q, want %q", loc.Audit.CreatedBy, "alice")
	}
}

func TestStampCreate_SameTenantIsIdempotent(t *testing.T) {
	loc := newLocation()
	loc.Tenant.TenantID = "ProductA"

	if err := StampCreate(loc, "ProductA", "alice", fixedTime); err != nil {
		t.Fatalf("StampCreate failed: %v", err)
	}
}

func TestStampCreate_ImmutableTenant(t *testing.T) {
	loc := newLocation()
	loc.Tenant.TenantID = "ProductA"

	err := StampCreate(loc, "ProductB", "alice", fixedTime)
	if !errors.Is(err, ErrImmutableTenant) {
		t.Fatalf("err = %v, want ErrImmutableTenant", err)
	}
	if loc.Tenant.TenantID != "ProductA" {
		t.Errorf("TenantID changed to %q", loc.Tenant.TenantID)
	}
}

func TestStampUpdate_NeverTouchesCreation(t *testing.T) {
	loc := newLocation()
	if err := StampCreate(loc, "ProductA", "alice", fixedTime); err != nil {
		t.Fatalf("StampCreate failed: %v", err)
	}

	later := fixedTime.Add(time.Hour)
	StampUpdate(loc, "bob", later)

	if !loc.Audit.CreatedAt.Equal(fixedTime) || loc.Audit.CreatedBy != "alice" {
		t.Errorf("creation metadata changed: %v/%s", loc.Audit.CreatedAt, loc.Audit.CreatedBy)
	}
	if loc.Audit.UpdatedAt == nil || !loc.Audit.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", loc.Audit.UpdatedAt, later)
	}
	if loc.Audit.UpdatedBy == nil || *loc.Audit.UpdatedBy != "bob" {
		t.Errorf("UpdatedBy = %v, want bob", loc.Audit.UpdatedBy)
	}
}

func TestStampDelete_And_Clear(t *testing.T) {
	loc := newLocation()
	if err := StampCreate(loc, "ProductA", "alice", fixedTime); err != nil {
		t.Fatalf("StampCreate failed: %v", err)
	}

	later := fixedTime.Add(time.Hour)
	StampDelete(loc, "bob", later)

	if !loc.Audit.Deleted() {
		t.Fatal("entity should be soft-deleted")
	}
	if !loc.Audit.CreatedAt.Equal(fixedTime) {
		t.Error("delete stamping touched CreatedAt")
	}

	ClearDelete(loc)
	if loc.Audit.Deleted() {
		t.Error("entity should no longer be soft-deleted")
	}
}
