package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role is the marketplace role of a user.
type Role string

const (
	RoleCreator    Role = "creator"
	RoleAdvertiser Role = "advertiser"
)

// Actor is the authenticated caller handed to every core operation.
type Actor struct {
	ID       uuid.UUID `json:"id"`
	Role     Role      `json:"role"`
	Verified bool      `json:"verified"`
}

type Account struct {
	ID            uuid.UUID       `json:"id"`
	Username      string          `json:"username"`
	PasswordHash  string          `json:"-"`
	Role          Role            `json:"role"`
	Verified      bool            `json:"is_verified"`
	Balance       decimal.Decimal `json:"balance"`
	InviterID     *uuid.UUID      `json:"inviter_id,omitempty"`
	WalletAddress *string         `json:"wallet_address,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Actor returns the identity view of the account.
func (a Account) Actor() Actor {
	return Actor{ID: a.ID, Role: a.Role, Verified: a.Verified}
}

// HasWallet reports whether a non-empty wallet address is connected.
func (a *Account) HasWallet() bool {
	return a.WalletAddress != nil && *a.WalletAddress != ""
}
