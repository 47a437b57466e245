package models

import (
	"time"

	"github.com/google/uuid"
)

type ProgressStatus string

const (
	ProgressPending  ProgressStatus = "pending"
	ProgressAccepted ProgressStatus = "accepted"
	ProgressRejected ProgressStatus = "rejected"
)

// IsLive reports whether the application can still carry task work.
func (s ProgressStatus) IsLive() bool {
	return s == ProgressPending || s == ProgressAccepted
}

// ApplicationProgress is one creator's participation in one project.
type ApplicationProgress struct {
	ID        uuid.UUID      `json:"id"`
	UserID    uuid.UUID      `json:"user_id"`
	ProjectID uuid.UUID      `json:"project_id"`
	Status    ProgressStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
