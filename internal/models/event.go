package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventApplicationSubmitted EventType = "APPLICATION_SUBMITTED"
	EventApplicationApproved  EventType = "APPLICATION_APPROVED"
	EventApplicationRejected  EventType = "APPLICATION_REJECTED"
	EventTaskSubmit           EventType = "TASK_SUBMIT"
	EventTaskCompleted        EventType = "TASK_COMPLETED"
	EventTaskRejected         EventType = "TASK_REJECTED"
)

// EventDetails is the structured payload stored with task events.
type EventDetails struct {
	TaskID        *uuid.UUID       `json:"taskId,omitempty"`
	TransactionID *uuid.UUID       `json:"transactionId,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	// EventID links a review to the TASK_SUBMIT it answers.
	EventID *uuid.UUID `json:"eventId,omitempty"`
}

// Event is an append-only fact in an application's history.
type Event struct {
	ID          uuid.UUID     `json:"id"`
	Seq         int64         `json:"seq"`
	ProgressID  uuid.UUID     `json:"progress_id"`
	ProjectID   uuid.UUID     `json:"project_id"`
	ActorID     uuid.UUID     `json:"actor_id"`
	ActorRole   Role          `json:"actor_role"`
	EventType   EventType     `json:"event_type"`
	Description string        `json:"description"`
	Message     *string       `json:"message,omitempty"`
	Details     *EventDetails `json:"details,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// TaskID returns the task referenced by the event details, if any.
func (e *Event) TaskID() (uuid.UUID, bool) {
	if e.Details == nil || e.Details.TaskID == nil {
		return uuid.Nil, false
	}
	return *e.Details.TaskID, true
}

// StringPtr returns nil for an empty message.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
