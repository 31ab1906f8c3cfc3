// Package store provides tenant-scoped access to registry data. Every read
// and write is predicated on the tenant bound to the context plus
// deleted_at IS NULL; a row under another tenant is indistinguishable from an
// absent row.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mcdev12/registry/internal/models"
)

// ErrNotFound covers both genuinely absent rows and rows owned by another
// tenant. Collapsing the two keeps cross-tenant existence unobservable.
var ErrNotFound = errors.New("location not found")

// Filter narrows a Find scan. Nil fields are ignored. The tenant and
// soft-delete predicates are always applied on top and cannot be removed
// through a filter.
type Filter struct {
	Region     *string
	CodePrefix *string
}

type queryOptions struct {
	includeDeleted bool
}

// QueryOption adjusts a single store call.
type QueryOption func(*queryOptions)

// IncludeDeleted lifts the deleted_at IS NULL predicate. Reserved for
// internal reactivation flows; the tenant predicate still applies.
func IncludeDeleted() QueryOption {
	return func(o *queryOptions) { o.includeDeleted = true }
}

func applyOptions(opts []QueryOption) queryOptions {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Store is the tenant-scoped data access surface handed to command handlers.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID, opts ...QueryOption) (*models.Location, error)
	GetByCode(ctx context.Context, code string, opts ...QueryOption) (*models.Location, error)
	Find(ctx context.Context, filter Filter, opts ...QueryOption) ([]models.Location, error)
	Add(ctx context.Context, loc *models.Location) error
	Update(ctx context.Context, loc *models.Location, opts ...QueryOption) error
	SoftDelete(ctx context.Context, loc *models.Location) error
}
