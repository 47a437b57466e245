package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type VerificationMethod string

const (
	VerifyNone    VerificationMethod = "NONE"
	VerifyWelcome VerificationMethod = "WELCOME"
	VerifyDaily   VerificationMethod = "DAILY_CHECK"
	VerifyWallet  VerificationMethod = "WALLET_VERIFICATION"
)

// AutoTask is a platform-wide reward that is not tied to a project.
type AutoTask struct {
	ID                 uuid.UUID          `json:"id"`
	Name               string             `json:"name"`
	Reward             decimal.Decimal    `json:"reward"`
	VerificationMethod VerificationMethod `json:"verification_method"`
	CreatedAt          time.Time          `json:"created_at"`
}

type AutoTaskClaim struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	TaskID          uuid.UUID  `json:"task_id"`
	IsConfirmed     bool       `json:"is_confirmed"`
	LastCompletedAt *time.Time `json:"last_completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
