package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/registry/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

// Repository is what the publisher worker needs from the outbox table. Only
// committed rows are visible here; staging goes through Store.
type Repository interface {
	// FetchPending returns up to limit pending records ordered by
	// (tenant_id, created_at) so dispatch preserves per-tenant order.
	FetchPending(ctx context.Context, limit int32) ([]Record, error)
	// FetchByID returns a single pending record.
	FetchByID(ctx context.Context, id uuid.UUID) (*Record, error)
	// OlderPendingExists reports whether the tenant has a pending record
	// created before the given time.
	OlderPendingExists(ctx context.Context, tenantID string, createdBefore time.Time) (bool, error)
	// MarkDispatched finalizes a record after a successful dispatch.
	MarkDispatched(ctx context.Context, id uuid.UUID, dispatchedAt time.Time, attempts int) error
	// RecordFailure persists a failed attempt, keeping the record pending.
	RecordFailure(ctx context.Context, id uuid.UUID, attempts int, at time.Time) error
	// MarkFailed dead-letters a record after the attempt budget is spent.
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, at time.Time) error
	// RequeueFailed returns failed records for a tenant to pending with a
	// fresh attempt budget. Operator action, never called by the worker.
	RequeueFailed(ctx context.Context, tenantID string) (int64, error)
	// PendingStats reports pending count and the oldest pending creation
	// time for lag alerting.
	PendingStats(ctx context.Context) (int64, *time.Time, error)
}

// CycleRunner scopes one publisher cycle to a transaction. When the worker's
// repository implements it, fetch and mark run against the same transaction,
// so the row locks taken by FetchPending hold until the cycle commits and
// concurrent worker instances partition the pending set instead of
// double-dispatching.
type CycleRunner interface {
	RunCycle(ctx context.Context, fn func(Repository) error) error
}

const recordColumns = `id, tenant_id, status, event_type, payload, headers,
	created_at, dispatched_at, last_attempt_at, attempt_count`

// PostgresRepository implements Repository against the outbox table. RunCycle
// hands the worker a transaction-bound view for the duration of a cycle.
type PostgresRepository struct {
	queries
	pool *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{queries: queries{db: db}, pool: db}
}

func (r *PostgresRepository) RunCycle(ctx context.Context, fn func(Repository) error) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin outbox cycle: %w", err)
	}
	if err := fn(&queries{db: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("failed to roll back outbox cycle: %w", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit outbox cycle: %w", err)
	}
	return nil
}

// queries holds the Repository queries over a pool or a transaction.
type queries struct {
	db sqlutil.DBTX
}

func (r *queries) FetchPending(ctx context.Context, limit int32) ([]Record, error) {
	// SKIP LOCKED only partitions work when the caller holds the locks for
	// the whole cycle; see CycleRunner.
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM outbox
		WHERE status = $1
		ORDER BY tenant_id, created_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, recordColumns),
		StatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending outbox events: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to fetch pending outbox events: %w", err)
	}
	return records, nil
}

func (r *queries) FetchByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM outbox WHERE id = $1 AND status = $2`, recordColumns),
		id, StatusPending,
	)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("outbox event not found or already dispatched")
		}
		return nil, err
	}
	return &rec, nil
}

func (r *queries) OlderPendingExists(ctx context.Context, tenantID string, createdBefore time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM outbox
			WHERE tenant_id = $1 AND status = $2 AND created_at < $3)`,
		tenantID, StatusPending, createdBefore,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check older pending events: %w", err)
	}
	return exists, nil
}

func (r *queries) MarkDispatched(ctx context.Context, id uuid.UUID, dispatchedAt time.Time, attempts int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox
		SET status = $2, dispatched_at = $3, last_attempt_at = $3, attempt_count = $4
		WHERE id = $1`,
		id, StatusDispatched, dispatchedAt, attempts,
	)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event dispatched: %w", err)
	}
	return nil
}

func (r *queries) RecordFailure(ctx context.Context, id uuid.UUID, attempts int, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox
		SET last_attempt_at = $2, attempt_count = $3
		WHERE id = $1 AND status = $4`,
		id, at, attempts, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to record outbox attempt: %w", err)
	}
	return nil
}

func (r *queries) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox
		SET status = $2, last_attempt_at = $3, attempt_count = $4
		WHERE id = $1`,
		id, StatusFailed, at, attempts,
	)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event failed: %w", err)
	}
	return nil
}

func (r *queries) RequeueFailed(ctx context.Context, tenantID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE outbox
		SET status = $2, attempt_count = 0, last_attempt_at = NULL
		WHERE tenant_id = $1 AND status = $3`,
		tenantID, StatusPending, StatusFailed,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue failed outbox events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

func (r *queries) PendingStats(ctx context.Context) (int64, *time.Time, error) {
	var count int64
	var oldest sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(created_at) FROM outbox WHERE status = $1`,
		StatusPending,
	).Scan(&count, &oldest)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read outbox stats: %w", err)
	}
	return count, sqlutil.FromSqlTime(oldest), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var payload []byte
	var headers pqtype.NullRawMessage
	var dispatchedAt, lastAttemptAt sql.NullTime

	err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.Status, &rec.EventType, &payload, &headers,
		&rec.CreatedAt, &dispatchedAt, &lastAttemptAt, &rec.AttemptCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("failed to scan outbox record: %w", err)
	}

	rec.Payload = payload
	rec.DispatchedAt = sqlutil.FromSqlTime(dispatchedAt)
	rec.LastAttemptAt = sqlutil.FromSqlTime(lastAttemptAt)
	if rec.Headers, err = unmarshalHeaders(headers); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func marshalHeaders(headers map[string]string) (json.RawMessage, error) {
	data, err := json.Marshal(headers)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal outbox headers: %w", err)
	}
	return data, nil
}

func unmarshalHeaders(raw pqtype.NullRawMessage) (map[string]string, error) {
	if !raw.Valid {
		return map[string]string{}, nil
	}
	var headers map[string]string
	if err := json.Unmarshal(raw.RawMessage, &headers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outbox headers: %w", err)
	}
	return headers, nil
}
