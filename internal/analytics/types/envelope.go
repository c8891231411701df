package types

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
)

// Envelope is an outbox event as seen by the analytics worker.
type Envelope struct {
	EventID       string                    `json:"event_id"`
	EventType     enums.OutboxEventType     `json:"event_type"`
	AggregateType enums.OutboxAggregateType `json:"aggregate_type"`
	AggregateID   uint64                    `json:"aggregate_id"`
	OccurredAt    time.Time                 `json:"occurred_at"`
	ActorID       *uint64                   `json:"actor_id,omitempty"`
	Payload       json.RawMessage           `json:"payload"`
}
