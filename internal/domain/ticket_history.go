package domain

import (
	"encoding/json"
	"time"
)

// TicketHistory is an immutable audit trail entry for one lifecycle event.
// It outlives the ticket it describes.
type TicketHistory struct {
	ID        int64           `json:"id"`
	TicketID  string          `json:"ticket_id"`
	UserID    int64           `json:"user_id"`
	EventType string          `json:"event_type"`
	ActorType Sender          `json:"actor_type"`
	ActorID   int64           `json:"actor_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
