// Package outbox stages integration events in the same transaction as the
// business writes that cause them, then drains committed records to an
// external sink. Delivery is at-least-once; the record id doubles as the
// consumer-side deduplication key.
package outbox

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TenantHeader is the routing header carrying the tenant id on every event.
// The tenant id travels only here, never inside the payload.
const TenantHeader = "X-Tenant-ID"

var (
	// ErrNoActiveTransaction is returned when Stage is called outside an
	// open unit of work. Staging only makes sense inside the transaction
	// that also carries the business writes.
	ErrNoActiveTransaction = errors.New("no active transaction for outbox staging")
	// ErrTenantInPayload is returned when a payload carries a tenant field.
	// Tenant identity is routing metadata and lives in headers only.
	ErrTenantInPayload = errors.New("event payload must not contain a tenant field")
)

// Status is the delivery state of an outbox record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusDispatched Status = "dispatched"
	StatusFailed     Status = "failed"
)

// Record is a staged integration event. Created inside the producing
// transaction; after commit only the publisher worker transitions it.
type Record struct {
	ID            uuid.UUID         `json:"id"`
	TenantID      string            `json:"tenant_id"`
	EventType     string            `json:"event_type"`
	Payload       json.RawMessage   `json:"payload"`
	Headers       map[string]string `json:"headers"`
	Status        Status            `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	DispatchedAt  *time.Time        `json:"dispatched_at,omitempty"`
	LastAttemptAt *time.Time        `json:"last_attempt_at,omitempty"`
	AttemptCount  int               `json:"attempt_count"`
}

// Envelope is the wire shape delivered to the sink. The tenant id appears
// only as TenantHeader.
type Envelope struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	TenantHeader string          `json:"tenantHeader"`
	OccurredAt   time.Time       `json:"occurredAt"`
	Payload      json.RawMessage `json:"payload"`
}

// Envelope builds the wire envelope for a record. Stable across retries so
// repeated delivery carries the same id.
func (r Record) Envelope() Envelope {
	return Envelope{
		ID:           r.ID.String(),
		Type:         r.EventType,
		TenantHeader: r.Headers[TenantHeader],
		OccurredAt:   r.CreatedAt,
		Payload:      r.Payload,
	}
}

// payloadTenantKeys are rejected at staging time to keep tenant identity out
// of business payloads.
var payloadTenantKeys = []string{"tenant_id", "tenantId", "tenant"}

func validatePayload(payload []byte) error {
	if len(payload) == 0 {
		return errors.New("event payload cannot be empty")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		// Non-object payloads cannot smuggle a tenant field.
		return nil
	}
	for _, key := range payloadTenantKeys {
		if _, ok := fields[key]; ok {
			return ErrTenantInPayload
		}
	}
	return nil
}
