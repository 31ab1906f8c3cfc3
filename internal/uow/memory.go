package uow

import (
	"context"

	"github.com/mcdev12/registry/internal/outbox"
	"github.com/mcdev12/registry/internal/store"
)

// MemoryFactory begins units of work over in-memory tables. Used by unit
// tests and local development; semantics mirror the SQL factory.
type MemoryFactory struct {
	Locations *store.MemoryDB
	Outbox    *outbox.MemoryDB

	// CommitErr, when set, makes every Commit fail after discarding staged
	// state, simulating a commit failure at the database.
	CommitErr error
}

func NewMemoryFactory(locations *store.MemoryDB, ob *outbox.MemoryDB) *MemoryFactory {
	return &MemoryFactory{Locations: locations, Outbox: ob}
}

func (f *MemoryFactory) Begin(ctx context.Context) (UnitOfWork, context.Context, error) {
	if active(ctx) {
		return nil, ctx, ErrTransactionAlreadyActive
	}
	u := &memoryUnit{factory: f, state: StateOpen}
	u.store = f.Locations.Begin()
	u.outbox = f.Outbox.Begin(u)
	return u, markActive(ctx), nil
}

type memoryUnit struct {
	factory *MemoryFactory
	store   *store.MemoryTx
	outbox  *outbox.MemoryStore
	state   State
}

func (u *memoryUnit) Store() store.Store   { return u.store }
func (u *memoryUnit) Outbox() outbox.Store { return u.outbox }
func (u *memoryUnit) State() State         { return u.state }

// Active implements outbox.TxGuard.
func (u *memoryUnit) Active() bool { return u.state == StateOpen }

func (u *memoryUnit) Commit(ctx context.Context) error {
	if u.state != StateOpen {
		return ErrTransactionClosed
	}
	if err := ctx.Err(); err != nil {
		u.state = StateRolledBack
		u.discard()
		return err
	}
	if err := u.factory.CommitErr; err != nil {
		u.state = StateRolledBack
		u.discard()
		return err
	}
	u.state = StateCommitted
	u.store.Commit()
	u.outbox.Commit()
	return nil
}

func (u *memoryUnit) Rollback(ctx context.Context) error {
	if u.state != StateOpen {
		return ErrTransactionClosed
	}
	u.state = StateRolledBack
	u.discard()
	return nil
}

func (u *memoryUnit) discard() {
	u.store.Discard()
	u.outbox.Discard()
}
