package locations

import (
	"time"

	"github.com/google/uuid"
)

// Integration event types emitted by location commands. Payloads carry
// business data only; tenant identity travels in the outbox routing header.
const (
	EventLocationRegistered  = "location.registered"
	EventLocationUpdated     = "location.updated"
	EventLocationDeactivated = "location.deactivated"
	EventLocationReactivated = "location.reactivated"
)

type LocationRegisteredPayload struct {
	LocationID uuid.UUID `json:"location_id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Region     string    `json:"region"`
}

type LocationUpdatedPayload struct {
	LocationID uuid.UUID `json:"location_id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Region     string    `json:"region"`
}

type LocationDeactivatedPayload struct {
	LocationID    uuid.UUID `json:"location_id"`
	Code          string    `json:"code"`
	DeactivatedAt time.Time `json:"deactivated_at"`
}

type LocationReactivatedPayload struct {
	LocationID uuid.UUID `json:"location_id"`
	Code       string    `json:"code"`
}
