package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types emitted on task state transitions. One per edge in the
// transition graphs, so off-chain observers can replay a task's history.
const (
	EventTaskCreated     = "task_created"
	EventMatchRequested  = "match_requested"
	EventMatchApproved   = "match_approved"
	EventDeliveryEntered = "delivery_entered"
	EventDeliveryConfirm = "delivery_confirmed"
	EventTaskCompleted   = "task_completed"
	EventTaskCancelled   = "task_cancelled"
	EventTaskExpired     = "task_expired"
	EventTaskDisputed    = "task_disputed"
	EventDisputeResolved = "dispute_resolved"
	EventTaskAccepted    = "task_accepted"
)

// TaskEvent is an append-only record of a state transition, written in the
// same transaction as the transition itself.
type TaskEvent struct {
	ID        uuid.UUID       `json:"id"`
	Family    string          `json:"family"`
	TaskID    int64           `json:"task_id"`
	Type      string          `json:"type"`
	Actor     uuid.UUID       `json:"actor"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
