package uow

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/registry/internal/outbox"
	"github.com/mcdev12/registry/internal/store"
)

// SQLFactory begins units of work backed by a database transaction.
type SQLFactory struct {
	db    *sql.DB
	clock clockwork.Clock
}

func NewSQLFactory(db *sql.DB, clock clockwork.Clock) *SQLFactory {
	return &SQLFactory{db: db, clock: clock}
}

func (f *SQLFactory) Begin(ctx context.Context) (UnitOfWork, context.Context, error) {
	if active(ctx) {
		return nil, ctx, ErrTransactionAlreadyActive
	}

	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, ctx, fmt.Errorf("failed to begin transaction: %w", err)
	}

	u := &sqlUnit{tx: tx, state: StateOpen}
	u.store = store.NewPostgres(tx, f.clock)
	u.outbox = outbox.NewSQLStore(tx, u, f.clock)
	return u, markActive(ctx), nil
}

type sqlUnit struct {
	tx     *sql.Tx
	store  *store.Postgres
	outbox *outbox.SQLStore
	state  State
}

func (u *sqlUnit) Store() store.Store   { return u.store }
func (u *sqlUnit) Outbox() outbox.Store { return u.outbox }
func (u *sqlUnit) State() State         { return u.state }

// Active implements outbox.TxGuard.
func (u *sqlUnit) Active() bool { return u.state == StateOpen }

func (u *sqlUnit) Commit(ctx context.Context) error {
	if u.state != StateOpen {
		return ErrTransactionClosed
	}
	if err := ctx.Err(); err != nil {
		// A cancelled invocation must never half-commit.
		u.state = StateRolledBack
		_ = u.tx.Rollback()
		return err
	}
	if err := u.tx.Commit(); err != nil {
		// A failed commit leaves nothing visible, outbox rows included.
		u.state = StateRolledBack
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	u.state = StateCommitted
	return nil
}

func (u *sqlUnit) Rollback(ctx context.Context) error {
	if u.state != StateOpen {
		return ErrTransactionClosed
	}
	u.state = StateRolledBack
	if err := u.tx.Rollback(); err != nil {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}
