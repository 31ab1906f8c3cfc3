package locations

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/registry/internal/outbox"
	"github.com/mcdev12/registry/internal/pipeline"
	"github.com/mcdev12/registry/internal/store"
	"github.com/mcdev12/registry/internal/tenant"
	"github.com/mcdev12/registry/internal/uow"
)

type fixture struct {
	app       *App
	locations *store.MemoryDB
	outbox    *outbox.MemoryDB
}

func newFixture() *fixture {
	clock := clockwork.NewFakeClock()
	locations := store.NewMemoryDB(clock)
	ob := outbox.NewMemoryDB(clock)
	pipe := pipeline.New(uow.NewMemoryFactory(locations, ob))
	return &fixture{
		app:       NewApp(pipe),
		locations: locations,
		outbox:    ob,
	}
}

func productCtx(t *testing.T, tenantID string) context.Context {
	t.Helper()
	ctx, err := tenant.WithTenant(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("WithTenant failed: %v", err)
	}
	return ctx
}

func TestRegisterLocation_StagesEventWithTenantHeader(t *testing.T) {
	f := newFixture()
	ctx := productCtx(t, "ProductA")

	loc, err := f.app.RegisterLocation(ctx, RegisterLocationRequest{
		Code: "LOC-001", Name: "Main Warehouse", Region: "eu-west",
	})
	if err != nil {
		t.Fatalf("RegisterLocation failed: %v", err)
	}
	if loc.Tenant.TenantID != "ProductA" {
		t.Errorf("tenant = %q, want ProductA", loc.Tenant.TenantID)
	}

	records := f.outbox.All()
	if len(records) != 1 {
		t.Fatalf("outbox records = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.EventType != EventLocationRegistered {
		t.Errorf("event type = %q", rec.EventType)
	}
	if rec.Headers[outbox.TenantHeader] != "ProductA" {
		t.Errorf("tenant header = %q, want ProductA", rec.Headers[outbox.TenantHeader])
	}

	// Business payload only; the tenant travels in the header.
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	for _, key := range []string{"tenant_id", "tenantId", "tenant"} {
		if _, ok := payload[key]; ok {
			t.Errorf("payload contains tenant field %q", key)
		}
	}
	if _, ok := payload["code"]; !ok {
		t.Error("payload missing code field")
	}
}

func TestGetLocation_CrossTenantIsNotFound(t *testing.T) {
	f := newFixture()

	loc, err := f.app.RegisterLocation(productCtx(t, "ProductA"), RegisterLocationRequest{
		Code: "LOC-001", Name: "Main Warehouse",
	})
	if err != nil {
		t.Fatalf("RegisterLocation failed: %v", err)
	}

	if _, err := f.app.GetLocation(productCtx(t, "ProductB"), loc.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("cross-tenant get err = %v, want ErrNotFound", err)
	}

	if got, err := f.app.GetLocation(productCtx(t, "ProductA"), loc.ID); err != nil || got.ID != loc.ID {
		t.Errorf("owner get = %v, %v", got, err)
	}
}

func TestRegisterLocation_DuplicateCodeRollsBack(t *testing.T) {
	f := newFixture()
	ctx := productCtx(t, "ProductA")

	if _, err := f.app.RegisterLocation(ctx, RegisterLocationRequest{Code: "LOC-001", Name: "First"}); err != nil {
		t.Fatalf("first register failed: %v", err)
	}

	_, err := f.app.RegisterLocation(ctx, RegisterLocationRequest{Code: "LOC-001", Name: "Second"})
	var bre *BusinessRuleError
	if !errors.As(err, &bre) || bre.Code != "location_code_taken" {
		t.Fatalf("err = %v, want location_code_taken", err)
	}

	// Nothing from the failed command persisted.
	if f.locations.Count() != 1 {
		t.Errorf("locations = %d, want 1", f.locations.Count())
	}
	if got := len(f.outbox.All()); got != 1 {
		t.Errorf("outbox records = %d, want 1", got)
	}
}

func TestRegisterLocation_SameCodeDifferentTenants(t *testing.T) {
	f := newFixture()

	if _, err := f.app.RegisterLocation(productCtx(t, "ProductA"), RegisterLocationRequest{Code: "LOC-001", Name: "A"}); err != nil {
		t.Fatalf("ProductA register failed: %v", err)
	}
	// Codes are scoped per tenant, so this is not a collision.
	if _, err := f.app.RegisterLocation(productCtx(t, "ProductB"), RegisterLocationRequest{Code: "LOC-001", Name: "B"}); err != nil {
		t.Fatalf("ProductB register failed: %v", err)
	}
}

func TestRegisterLocation_ValidationBeforeTransaction(t *testing.T) {
	f := newFixture()

	_, err := f.app.RegisterLocation(productCtx(t, "ProductA"), RegisterLocationRequest{Code: "", Name: "x"})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "code" {
		t.Fatalf("err = %v, want ValidationError on code", err)
	}
	if f.locations.Count() != 0 || len(f.outbox.All()) != 0 {
		t.Error("validation failure touched storage")
	}
}

func TestUpdateLocation(t *testing.T) {
	f := newFixture()
	ctx := productCtx(t, "ProductA")

	loc, err := f.app.RegisterLocation(ctx, RegisterLocationRequest{Code: "LOC-001", Name: "Old"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	name := "New Name"
	updated, err := f.app.UpdateLocation(ctx, loc.ID, UpdateLocationRequest{Name: &name})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Name != "New Name" {
		t.Errorf("name = %q", updated.Name)
	}

	records := f.outbox.All()
	if len(records) != 2 {
		t.Fatalf("outbox records = %d, want 2", len(records))
	}
}

func TestDeactivateAndReactivateLocation(t *testing.T) {
	f := newFixture()
	ctx := productCtx(t, "ProductA")

	loc, err := f.app.RegisterLocation(ctx, RegisterLocationRequest{Code: "LOC-001", Name: "Main"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := f.app.DeactivateLocation(ctx, loc.ID); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if _, err := f.app.GetLocation(ctx, loc.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("deactivated location still visible, err = %v", err)
	}

	restored, err := f.app.ReactivateLocation(ctx, loc.ID)
	if err != nil {
		t.Fatalf("reactivate failed: %v", err)
	}
	if restored.Audit.Deleted() {
		t.Error("reactivated location still marked deleted")
	}
	if got, err := f.app.GetLocation(ctx, loc.ID); err != nil || got.Code != "LOC-001" {
		t.Errorf("get after reactivate = %v, %v", got, err)
	}

	// registered + deactivated + reactivated
	types := map[string]int{}
	for _, rec := range f.outbox.All() {
		types[rec.EventType]++
	}
	for _, want := range []string{EventLocationRegistered, EventLocationDeactivated, EventLocationReactivated} {
		if types[want] != 1 {
			t.Errorf("event %s staged %d times, want 1", want, types[want])
		}
	}
}

func TestReactivateLocation_NotDeleted(t *testing.T) {
	f := newFixture()
	ctx := productCtx(t, "ProductA")

	loc, err := f.app.RegisterLocation(ctx, RegisterLocationRequest{Code: "LOC-001", Name: "Main"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	_, err = f.app.ReactivateLocation(ctx, loc.ID)
	var bre *BusinessRuleError
	if !errors.As(err, &bre) || bre.Code != "location_not_deleted" {
		t.Errorf("err = %v, want location_not_deleted", err)
	}
}
