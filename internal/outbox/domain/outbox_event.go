// Package domain defines the transactional outbox entities used to publish
// presence changes to the rest of the grid.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event types recorded by the session lifecycle.
const (
	EventTypePresenceLogin  = "presence.login"
	EventTypePresenceLogout = "presence.logout"
)

// OutboxEventStatus represents the status of an outbox event
type OutboxEventStatus string

const (
	OutboxEventStatusPending   OutboxEventStatus = "pending"
	OutboxEventStatusProcessed OutboxEventStatus = "processed"
	OutboxEventStatusFailed    OutboxEventStatus = "failed"
)

// OutboxEvent represents an event in the transactional outbox pattern
type OutboxEvent struct {
	ID          uuid.UUID
	EventType   string
	Payload     string
	Status      OutboxEventStatus
	Retries     int
	LastError   *string
	ProcessedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PresencePayload is the JSON payload of presence events.
type PresencePayload struct {
	ProfileID uuid.UUID `json:"profile_id"`
	Name      string    `json:"name"`
	SessionID uuid.UUID `json:"session_id"`
	Reason    string    `json:"reason,omitempty"`
}
