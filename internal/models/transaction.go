package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionPayment    TransactionType = "PAYMENT"
	TransactionSystem     TransactionType = "SYSTEM"
	TransactionReferral   TransactionType = "REFERRAL"
	TransactionWithdrawal TransactionType = "WITHDRAWAL"
)

// Transaction records one settled balance movement. FromUserID is nil for platform-funded rewards.
type Transaction struct {
	ID         uuid.UUID       `json:"id"`
	FromUserID *uuid.UUID      `json:"from_user_id,omitempty"`
	ToUserID   uuid.UUID       `json:"to_user_id"`
	Amount     decimal.Decimal `json:"amount"`
	Type       TransactionType `json:"type"`
	TaskID     *uuid.UUID      `json:"task_id,omitempty"`
	ProjectID  *uuid.UUID      `json:"project_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
