package outbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/registry/internal/sqlutil"
	"github.com/mcdev12/registry/internal/tenant"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"
)

// Store stages events into the current transaction's write set.
type Store interface {
	// Stage appends a record to the open transaction. The returned id is
	// the event's stable deduplication key. The tenant routing header is
	// always derived from the context; caller-supplied values for it are
	// overwritten.
	Stage(ctx context.Context, eventType string, payload []byte, headers map[string]string) (uuid.UUID, error)
}

// TxGuard reports whether the owning transaction is still open. The unit of
// work implements it so a store outliving its transaction fails loudly.
type TxGuard interface {
	Active() bool
}

// newRecord applies the staging contract shared by all Store implementations:
// payload hygiene, header copying, and forced tenant routing header.
func newRecord(ctx context.Context, eventType string, payload []byte, headers map[string]string, now clockwork.Clock) (Record, error) {
	if eventType == "" {
		return Record{}, fmt.Errorf("event type cannot be empty")
	}
	if err := validatePayload(payload); err != nil {
		return Record{}, err
	}
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return Record{}, err
	}

	merged := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		merged[k] = v
	}
	// Overwrites any tenant header the caller attempted to set.
	merged[TenantHeader] = tenantID

	return Record{
		ID:        uuid.New(),
		TenantID:  tenantID,
		EventType: eventType,
		Payload:   append([]byte(nil), payload...),
		Headers:   merged,
		Status:    StatusPending,
		CreatedAt: now.Now().UTC(),
	}, nil
}

// SQLStore stages records into a Postgres transaction.
type SQLStore struct {
	tx    sqlutil.DBTX
	guard TxGuard
	clock clockwork.Clock
}

// NewSQLStore creates a staging store bound to the transaction tx, guarded by
// the owning unit of work.
func NewSQLStore(tx sqlutil.DBTX, guard TxGuard, clock clockwork.Clock) *SQLStore {
	return &SQLStore{tx: tx, guard: guard, clock: clock}
}

func (s *SQLStore) Stage(ctx context.Context, eventType string, payload []byte, headers map[string]string) (uuid.UUID, error) {
	if s.guard != nil && !s.guard.Active() {
		return uuid.Nil, ErrNoActiveTransaction
	}

	rec, err := newRecord(ctx, eventType, payload, headers, s.clock)
	if err != nil {
		return uuid.Nil, err
	}

	headerJSON, err := marshalHeaders(rec.Headers)
	if err != nil {
		return uuid.Nil, err
	}

	_, err = s.tx.ExecContext(ctx, `
		INSERT INTO outbox (id, tenant_id, status, event_type, payload, headers, created_at, attempt_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0)`,
		rec.ID, rec.TenantID, rec.Status, rec.EventType, []byte(rec.Payload),
		pqtype.NullRawMessage{RawMessage: headerJSON, Valid: true}, rec.CreatedAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to stage outbox event: %w", err)
	}

	log.Debug().
		Str("event_id", rec.ID.String()).
		Str("event_type", rec.EventType).
		Str("tenant_id", rec.TenantID).
		Msg("outbox event staged")

	return rec.ID, nil
}
