package outbox

import (
	"context"
	"log/slog"
)

// EventPublisher ships a committed outbox record to the external sink.
// Implementations must attach the record id as the deduplication key on every
// attempt, retries included.
type EventPublisher interface {
	Publish(ctx context.Context, rec Record) error
}

// MockPublisher is a simple logging publisher for development.
type MockPublisher struct {
	logger *slog.Logger
}

func NewMockPublisher(logger *slog.Logger) *MockPublisher {
	return &MockPublisher{logger: logger}
}

func (p *MockPublisher) Publish(ctx context.Context, rec Record) error {
	env := rec.Envelope()
	p.logger.Info("publishing event",
		slog.String("event_id", env.ID),
		slog.String("event_type", env.Type),
		slog.String("tenant", env.TenantHeader))
	return nil
}
