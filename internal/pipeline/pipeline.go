// Package pipeline wraps domain command handlers with the cross-cutting
// concerns of a write: tenant resolution, one atomic unit of work, and
// instrumentation. The pipeline itself contains no business logic.
package pipeline

import (
	"context"
	"time"

	"github.com/mcdev12/registry/internal/tenant"
	"github.com/mcdev12/registry/internal/uow"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Handler is a domain command handler. It receives the open unit of work and
// must not begin its own transactions or reach around the scoped store.
type Handler[T any] func(ctx context.Context, u uow.UnitOfWork) (T, error)

// Pipeline is the single integration point command handlers plug into.
type Pipeline struct {
	factory uow.Factory
	metrics Metrics
	logger  zerolog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics replaces the default no-op metrics.
func WithMetrics(m Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger replaces the default global logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

func New(factory uow.Factory, opts ...Option) *Pipeline {
	p := &Pipeline{
		factory: factory,
		metrics: &NoOpMetrics{},
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute runs one command invocation: resolve tenant, begin, invoke the
// handler, commit on success or roll back on any failure. Handler errors
// propagate unchanged; the caller never observes partial writes or events
// from an uncommitted transaction.
func Execute[T any](ctx context.Context, p *Pipeline, command string, handler Handler[T]) (T, error) {
	var zero T
	start := time.Now()

	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		p.observe(command, tenantID, start, err)
		return zero, err
	}

	u, ctx, err := p.factory.Begin(ctx)
	if err != nil {
		p.observe(command, tenantID, start, err)
		return zero, err
	}

	result, err := handler(ctx, u)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		if rbErr := u.Rollback(ctx); rbErr != nil {
			p.logger.Error().Err(rbErr).
				Str("command", command).
				Msg("rollback failed")
		}
		p.observe(command, tenantID, start, err)
		return zero, err
	}

	if err := u.Commit(ctx); err != nil {
		p.observe(command, tenantID, start, err)
		return zero, err
	}

	p.observe(command, tenantID, start, nil)
	return result, nil
}

func (p *Pipeline) observe(command, tenantID string, start time.Time, err error) {
	duration := time.Since(start)
	p.metrics.RecordCommand(command, err == nil, duration)

	evt := p.logger.Info()
	if err != nil {
		evt = p.logger.Warn().Err(err)
	}
	evt.Str("command", command).
		Str("tenant_id", tenantID).
		Dur("duration", duration).
		Bool("success", err == nil).
		Msg("command executed")
}
