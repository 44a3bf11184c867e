package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/prepmood/prepmood-backend/pkg/enums"
)

// ActorRef identifies who produced the event. UserID is empty for system actors.
type ActorRef struct {
	Type   enums.ActorType `json:"type"`
	UserID *uuid.UUID      `json:"userId,omitempty"`
}

// SystemActor is used by the payment pipeline and background jobs.
func SystemActor() *ActorRef {
	return &ActorRef{Type: enums.ActorSystem}
}

// UserActor builds an actor reference for an authenticated account.
func UserActor(actorType enums.ActorType, userID uuid.UUID) *ActorRef {
	id := userID
	return &ActorRef{Type: actorType, UserID: &id}
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
