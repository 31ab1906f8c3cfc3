package locations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/registry/internal/audit"
	"github.com/mcdev12/registry/internal/models"
	"github.com/mcdev12/registry/internal/pipeline"
	"github.com/mcdev12/registry/internal/store"
	"github.com/mcdev12/registry/internal/uow"
)

// App exposes the location commands. Every write runs through the command
// pipeline: one transaction, tenant-scoped data access, events staged to the
// outbox in the same commit.
type App struct {
	pipe *pipeline.Pipeline
}

func NewApp(pipe *pipeline.Pipeline) *App {
	return &App{pipe: pipe}
}

// RegisterLocation creates a location and stages a registered event.
func (a *App) RegisterLocation(ctx context.Context, req RegisterLocationRequest) (*models.Location, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return pipeline.Execute(ctx, a.pipe, "location.register",
		func(ctx context.Context, u uow.UnitOfWork) (*models.Location, error) {
			if _, err := u.Store().GetByCode(ctx, req.Code); err == nil {
				return nil, ErrCodeTaken
			} else if !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}

			loc := &models.Location{
				ID:     uuid.New(),
				Code:   req.Code,
				Name:   req.Name,
				Region: req.Region,
			}
			if err := u.Store().Add(ctx, loc); err != nil {
				return nil, err
			}

			if err := stageEvent(ctx, u, EventLocationRegistered, LocationRegisteredPayload{
				LocationID: loc.ID,
				Code:       loc.Code,
				Name:       loc.Name,
				Region:     loc.Region,
			}); err != nil {
				return nil, err
			}
			return loc, nil
		})
}

// GetLocation retrieves a location the active tenant owns.
func (a *App) GetLocation(ctx context.Context, id uuid.UUID) (*models.Location, error) {
	return pipeline.Execute(ctx, a.pipe, "location.get",
		func(ctx context.Context, u uow.UnitOfWork) (*models.Location, error) {
			return u.Store().GetByID(ctx, id)
		})
}

// ListLocations lists the active tenant's locations matching the filter.
func (a *App) ListLocations(ctx context.Context, filter store.Filter) ([]models.Location, error) {
	return pipeline.Execute(ctx, a.pipe, "location.list",
		func(ctx context.Context, u uow.UnitOfWork) ([]models.Location, error) {
			return u.Store().Find(ctx, filter)
		})
}

// UpdateLocation rewrites mutable fields and stages an updated event.
func (a *App) UpdateLocation(ctx context.Context, id uuid.UUID, req UpdateLocationRequest) (*models.Location, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return pipeline.Execute(ctx, a.pipe, "location.update",
		func(ctx context.Context, u uow.UnitOfWork) (*models.Location, error) {
			loc, err := u.Store().GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if req.Name != nil {
				loc.Name = *req.Name
			}
			if req.Region != nil {
				loc.Region = *req.Region
			}
			if err := u.Store().Update(ctx, loc); err != nil {
				return nil, err
			}

			if err := stageEvent(ctx, u, EventLocationUpdated, LocationUpdatedPayload{
				LocationID: loc.ID,
				Code:       loc.Code,
				Name:       loc.Name,
				Region:     loc.Region,
			}); err != nil {
				return nil, err
			}
			return loc, nil
		})
}

// DeactivateLocation soft-deletes a location and stages a deactivated event.
func (a *App) DeactivateLocation(ctx context.Context, id uuid.UUID) error {
	_, err := pipeline.Execute(ctx, a.pipe, "location.deactivate",
		func(ctx context.Context, u uow.UnitOfWork) (struct{}, error) {
			loc, err := u.Store().GetByID(ctx, id)
			if err != nil {
				return struct{}{}, err
			}
			if err := u.Store().SoftDelete(ctx, loc); err != nil {
				return struct{}{}, err
			}

			if err := stageEvent(ctx, u, EventLocationDeactivated, LocationDeactivatedPayload{
				LocationID:    loc.ID,
				Code:          loc.Code,
				DeactivatedAt: *loc.Audit.DeletedAt,
			}); err != nil {
				return struct{}{}, err
			}
			return struct{}{}, nil
		})
	return err
}

// ReactivateLocation clears a soft delete. This is the one flow allowed to
// read past the deleted_at predicate.
func (a *App) ReactivateLocation(ctx context.Context, id uuid.UUID) (*models.Location, error) {
	return pipeline.Execute(ctx, a.pipe, "location.reactivate",
		func(ctx context.Context, u uow.UnitOfWork) (*models.Location, error) {
			loc, err := u.Store().GetByID(ctx, id, store.IncludeDeleted())
			if err != nil {
				return nil, err
			}
			if !loc.Audit.Deleted() {
				return nil, ErrNotDeleted
			}

			audit.ClearDelete(loc)
			if err := u.Store().Update(ctx, loc, store.IncludeDeleted()); err != nil {
				return nil, err
			}

			if err := stageEvent(ctx, u, EventLocationReactivated, LocationReactivatedPayload{
				LocationID: loc.ID,
				Code:       loc.Code,
			}); err != nil {
				return nil, err
			}
			return loc, nil
		})
}

func stageEvent(ctx context.Context, u uow.UnitOfWork, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	if _, err := u.Outbox().Stage(ctx, eventType, data, nil); err != nil {
		return fmt.Errorf("failed to stage %s event: %w", eventType, err)
	}
	return nil
}
