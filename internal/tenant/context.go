// Package tenant carries the resolved tenant identity on the request context.
// The identity is set exactly once by the authentication layer before a
// command runs; everything downstream reads it, nothing downstream writes it.
package tenant

import (
	"context"
	"errors"
)

var (
	// ErrNotResolved is returned when no tenant was set upstream.
	ErrNotResolved = errors.New("tenant not resolved on context")
	// ErrAlreadySet is returned when a different tenant id is set on a
	// context that already carries one. Setting the same id again is a no-op
	// so retried middleware stays safe.
	ErrAlreadySet = errors.New("tenant already set with a different id")
)

type contextKey int

const (
	tenantKey contextKey = iota
	actorKey
)

// SystemActor is the actor recorded when no caller identity is present.
const SystemActor = "system"

// WithTenant binds tenantID to the context. Rebinding the same id returns the
// context unchanged; rebinding a different id fails with ErrAlreadySet.
func WithTenant(ctx context.Context, tenantID string) (context.Context, error) {
	if tenantID == "" {
		return ctx, ErrNotResolved
	}
	if existing, ok := ctx.Value(tenantKey).(string); ok {
		if existing != tenantID {
			return ctx, ErrAlreadySet
		}
		return ctx, nil
	}
	return context.WithValue(ctx, tenantKey, tenantID), nil
}

// FromContext returns the tenant id bound to the context.
func FromContext(ctx context.Context) (string, error) {
	tenantID, ok := ctx.Value(tenantKey).(string)
	if !ok || tenantID == "" {
		return "", ErrNotResolved
	}
	return tenantID, nil
}

// WithActor records the caller identity used for audit stamps.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// Actor returns the caller identity, or SystemActor when none was set.
func Actor(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey).(string); ok && actor != "" {
		return actor
	}
	return SystemActor
}
