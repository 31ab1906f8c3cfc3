package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/registry/internal/tenant"
)

type openGuard struct{ open bool }

func (g *openGuard) Active() bool { return g.open }

func stagingCtx(t *testing.T, tenantID string) context.Context {
	t.Helper()
	ctx, err := tenant.WithTenant(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("WithTenant failed: %v", err)
	}
	return ctx
}

func TestStage_OverwritesTenantHeader(t *testing.T) {
	db := NewMemoryDB(clockwork.NewFakeClock())
	guard := &openGuard{open: true}
	s := db.Begin(guard)

	// Caller attempts to spoof the routing header.
	id, err := s.Stage(stagingCtx(t, "ProductA"), "location.registered",
		[]byte(`{"code":"LOC-001"}`),
		map[string]string{TenantHeader: "ProductB", "Trace-ID": "t-123"})
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	s.Commit()

	rec, ok := db.Get(id)
	if !ok {
		t.Fatal("staged record not committed")
	}
	if rec.Headers[TenantHeader] != "ProductA" {
		t.Errorf("tenant header = %q, want %q", rec.Headers[TenantHeader], "ProductA")
	}
	if rec.Headers["Trace-ID"] != "t-123" {
		t.Errorf("caller header dropped: %v", rec.Headers)
	}
	if rec.Envelope().TenantHeader != "ProductA" {
		t.Errorf("envelope tenant = %q, want %q", rec.Envelope().TenantHeader, "ProductA")
	}
}

func TestStage_RejectsTenantInPayload(t *testing.T) {
	db := NewMemoryDB(clockwork.NewFakeClock())
	s := db.Begin(&openGuard{open: true})
	ctx := stagingCtx(t, "ProductA")

	for _, payload := range []string{
		`{"code":"LOC-001","tenant_id":"ProductA"}`,
		`{"code":"LOC-001","tenantId":"ProductA"}`,
		`{"code":"LOC-001","tenant":"ProductA"}`,
	} {
		if _, err := s.Stage(ctx, "location.registered", []byte(payload), nil); !errors.Is(err, ErrTenantInPayload) {
			t.Errorf("payload %s: err = %v, want ErrTenantInPayload", payload, err)
		}
	}

	// Non-object payloads cannot smuggle a tenant field.
	if _, err := s.Stage(ctx, "location.registered", []byte(`"plain string"`), nil); err != nil {
		t.Errorf("non-object payload rejected: %v", err)
	}
}

func TestStage_EmptyPayload(t *testing.T) {
	db := NewMemoryDB(clockwork.NewFakeClock())
	s := db.Begin(&openGuard{open: true})

	if _, err := s.Stage(stagingCtx(t, "ProductA"), "location.registered", nil, nil); err == nil {
		t.Error("expected error for empty payload")
	}
}

func TestStage_RequiresActiveTransaction(t *testing.T) {
	db := NewMemoryDB(clockwork.NewFakeClock())
	guard := &openGuard{open: false}
	s := db.Begin(guard)

	_, err := s.Stage(stagingCtx(t, "ProductA"), "location.registered", []byte(`{}`), nil)
	if !errors.Is(err, ErrNoActiveTransaction) {
		t.Errorf("err = %v, want ErrNoActiveTransaction", err)
	}
}

func TestStage_RequiresTenant(t *testing.T) {
	db := NewMemoryDB(clockwork.NewFakeClock())
	s := db.Begin(&openGuard{open: true})

	_, err := s.Stage(context.Background(), "location.registered", []byte(`{"code":"LOC-001"}`), nil)
	if !errors.Is(err, tenant.ErrNotResolved) {
		t.Errorf("err = %v, want ErrNotResolved", err)
	}
}

func TestRecord_EnvelopeShape(t *testing.T) {
	clock := clockwork.NewFakeClock()
	db := NewMemoryDB(clock)
	s := db.Begin(&openGuard{open: true})

	id, err := s.Stage(stagingCtx(t, "ProductA"), "location.registered", []byte(`{"code":"LOC-001"}`), nil)
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	s.Commit()

	rec, _ := db.Get(id)
	env := rec.Envelope()
	if env.ID != id.String() {
		t.Errorf("envelope id = %q, want record id %q", env.ID, id)
	}
	if env.Type != "location.registered" {
		t.Errorf("envelope type = %q", env.Type)
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("bad envelope payload: %v", err)
	}
	for _, key := range []string{"tenant_id", "tenantId", "tenant"} {
		if _, ok := payload[key]; ok {
			t.Errorf("payload contains tenant field %q", key)
		}
	}
}
