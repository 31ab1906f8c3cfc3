// Package uow owns the atomic transaction boundary for a single command
// invocation. Business writes and staged outbox records commit or roll back
// together; an event can only become visible to the publisher if its causing
// mutation is durably committed.
package uow

import (
	"context"
	"errors"

	"github.com/mcdev12/registry/internal/outbox"
	"github.com/mcdev12/registry/internal/store"
)

var (
	// ErrTransactionAlreadyActive is returned when Begin is called while a
	// unit of work is already open on the calling context. Commands compose
	// by sharing the outer transaction, never by nesting.
	ErrTransactionAlreadyActive = errors.New("transaction already active on this context")
	// ErrTransactionClosed is returned when Commit or Rollback is called on
	// a unit of work that already reached a terminal state.
	ErrTransactionClosed = errors.New("transaction already committed or rolled back")
)

// State is the lifecycle of a unit of work. Committed and RolledBack are
// terminal.
type State int

const (
	StateOpen State = iota
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// UnitOfWork is one open transaction. Owned exclusively by the invocation
// that began it; never shared across concurrent commands.
type UnitOfWork interface {
	// Store is the tenant-scoped store bound to this transaction.
	Store() store.Store
	// Outbox is the event staging store bound to this transaction.
	Outbox() outbox.Store
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	State() State
}

// Factory begins units of work. The returned context carries an active-
// transaction marker so nested Begin calls fail fast.
type Factory interface {
	Begin(ctx context.Context) (UnitOfWork, context.Context, error)
}

type txMarker struct{}

func active(ctx context.Context) bool {
	_, ok := ctx.Value(txMarker{}).(bool)
	return ok
}

func markActive(ctx context.Context) context.Context {
	return context.WithValue(ctx, txMarker{}, true)
}
