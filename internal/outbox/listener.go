package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// ListenerConfig tunes the LISTEN/NOTIFY fast path. The polling worker stays
// the correctness backstop; the listener only shortens latency.
type ListenerConfig struct {
	DatabaseURL   string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel string        // Channel name to LISTEN on
	PingInterval  time.Duration // Connection liveness check cadence
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel: "registry_outbox_events",
		PingInterval:  90 * time.Second,
	}
}

// Listener publishes freshly committed records as soon as Postgres notifies,
// instead of waiting for the next poll. Notifications carry the record id.
type Listener struct {
	repo      Repository
	listener  *pq.Listener
	publisher EventPublisher
	clock     clockwork.Clock
	cfg       ListenerConfig
}

func NewListener(repo Repository, publisher EventPublisher, clock clockwork.Clock, cfg ListenerConfig) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for notifications")

	return &Listener{
		repo:      repo,
		listener:  l,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
	}, nil
}

func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Msg("listener started")

	pingTicker := time.NewTicker(l.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener shutting down")
			return l.Stop()
		case note := <-l.listener.Notify:
			if note == nil {
				// nil notification means the connection was lost and pq is
				// reconnecting; the polling worker covers the gap.
				continue
			}
			if err := l.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle notification")
			}
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (l *Listener) Stop() error {
	return l.listener.Close()
}

// handleNotification fetches the notified record and ships it. A failure here
// is not retried; the record stays pending for the polling worker.
func (l *Listener) handleNotification(ctx context.Context, extra string) error {
	id, err := uuid.Parse(extra)
	if err != nil {
		return fmt.Errorf("invalid event ID in notification: %w", err)
	}

	rec, err := l.repo.FetchByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch outbox event: %w", err)
	}

	// An earlier record for the tenant is still pending, likely sitting in
	// backoff. Publishing now would overtake it; the poller handles both in
	// order.
	older, err := l.repo.OlderPendingExists(ctx, rec.TenantID, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to check tenant queue: %w", err)
	}
	if older {
		log.Debug().
			Str("event_id", id.String()).
			Str("tenant_id", rec.TenantID).
			Msg("older pending event for tenant, deferring to poller")
		return nil
	}

	if err := l.publisher.Publish(ctx, *rec); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	now := l.clock.Now().UTC()
	if err := l.repo.MarkDispatched(ctx, id, now, rec.AttemptCount+1); err != nil {
		return fmt.Errorf("failed to mark outbox event dispatched: %w", err)
	}

	log.Info().Str("event_id", id.String()).Msg("published and marked event as dispatched")
	return nil
}
