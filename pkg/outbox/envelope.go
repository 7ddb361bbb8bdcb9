package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies who performed the audited action.
type ActorRef struct {
	ActorID   uuid.UUID  `json:"actorId"`
	WitnessID *uuid.UUID `json:"witnessId,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
// The audit/reporting consumer depends on this shape staying versioned.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
