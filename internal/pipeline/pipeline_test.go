package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/registry/internal/models"
	"github.com/mcdev12/registry/internal/outbox"
	"github.com/mcdev12/registry/internal/store"
	"github.com/mcdev12/registry/internal/tenant"
	"github.com/mcdev12/registry/internal/uow"
)

func testPipeline() (*Pipeline, *store.MemoryDB, *outbox.MemoryDB) {
	clock := clockwork.NewFakeClock()
	locations := store.NewMemoryDB(clock)
	ob := outbox.NewMemoryDB(clock)
	return New(uow.NewMemoryFactory(locations, ob)), locations, ob
}

func pipeCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, err := tenant.WithTenant(context.Background(), "ProductA")
	if err != nil {
		t.Fatalf("WithTenant failed: %v", err)
	}
	return ctx
}

func TestExecute_FailsFastWithoutTenant(t *testing.T) {
	p, locations, _ := testPipeline()

	called := false
	_, err := Execute(context.Background(), p, "test.command",
		func(ctx context.Context, u uow.UnitOfWork) (struct{}, error) {
			called = true
			return struct{}{}, nil
		})

	if !errors.Is(err, tenant.ErrNotResolved) {
		t.Errorf("err = %v, want ErrNotResolved", err)
	}
	if called {
		t.Error("handler ran without a resolved tenant")
	}
	if locations.Count() != 0 {
		t.Error("writes happened without a tenant")
	}
}

func TestExecute_CommitsOnSuccess(t *testing.T) {
	p, locations, ob := testPipeline()

	id, err := Execute(pipeCtx(t), p, "test.command",
		func(ctx context.Context, u uow.UnitOfWork) (uuid.UUID, error) {
			loc := &models.Location{ID: uuid.New(), Code: "LOC-001"}
			if err := u.Store().Add(ctx, loc); err != nil {
				return uuid.Nil, err
			}
			if _, err := u.Outbox().Stage(ctx, "location.registered", []byte(`{"code":"LOC-001"}`), nil); err != nil {
				return uuid.Nil, err
			}
			return loc.ID, nil
		})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if id == uuid.Nil {
		t.Fatal("no result returned")
	}
	if locations.Count() != 1 {
		t.Errorf("locations = %d, want 1", locations.Count())
	}
	if len(ob.All()) != 1 {
		t.Errorf("outbox records = %d, want 1", len(ob.All()))
	}
}

func TestExecute_HandlerErrorRollsBackAndPropagatesUnchanged(t *testing.T) {
	p, locations, ob := testPipeline()
	handlerErr := errors.New("inventory exhausted")

	_, err := Execute(pipeCtx(t), p, "test.command",
		func(ctx context.Context, u uow.UnitOfWork) (struct{}, error) {
			loc := &models.Location{ID: uuid.New(), Code: "LOC-001"}
			if err := u.Store().Add(ctx, loc); err != nil {
				return struct{}{}, err
			}
			if _, err := u.Outbox().Stage(ctx, "location.registered", []byte(`{"code":"LOC-001"}`), nil); err != nil {
				return struct{}{}, err
			}
			return struct{}{}, handlerErr
		})

	// The original error comes back, not a wrapped or replaced one.
	if err != handlerErr {
		t.Errorf("err = %v, want the handler's own error", err)
	}
	if locations.Count() != 0 {
		t.Error("rolled-back write persisted")
	}
	if len(ob.All()) != 0 {
		t.Error("ghost events staged by a rolled-back transaction")
	}
}

func TestExecute_NestedExecuteRejected(t *testing.T) {
	p, _, _ := testPipeline()

	_, err := Execute(pipeCtx(t), p, "outer",
		func(ctx context.Context, u uow.UnitOfWork) (struct{}, error) {
			return Execute(ctx, p, "inner",
				func(ctx context.Context, u uow.UnitOfWork) (struct{}, error) {
					return struct{}{}, nil
				})
		})

	if !errors.Is(err, uow.ErrTransactionAlreadyActive) {
		t.Errorf("err = %v, want ErrTransactionAlreadyActive", err)
	}
}

func TestExecute_CancellationRollsBack(t *testing.T) {
	p, locations, ob := testPipeline()
	ctx, cancel := context.WithCancel(pipeCtx(t))

	_, err := Execute(ctx, p, "test.command",
		func(ctx context.Context, u uow.UnitOfWork) (struct{}, error) {
			loc := &models.Location{ID: uuid.New(), Code: "LOC-001"}
			if err := u.Store().Add(ctx, loc); err != nil {
				return struct{}{}, err
			}
			// Caller timeout arrives while the handler is running.
			cancel()
			return struct{}{}, nil
		})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if locations.Count() != 0 || len(ob.All()) != 0 {
		t.Error("cancelled command left a partial commit")
	}
}
