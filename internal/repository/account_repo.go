package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memefactory/backend/internal/apperr"
	"github.com/memefactory/backend/internal/auth"
	"github.com/memefactory/backend/internal/models"
)

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

func (r *AccountRepo) CreateAccount(ctx context.Context, a *models.Account) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, username, password_hash, role, is_verified, balance, inviter_id, wallet_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, a.ID, a.Username, a.PasswordHash, a.Role, a.Verified, a.Balance, a.InviterID, a.WalletAddress).Scan(&a.CreatedAt, &a.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", auth.ErrUsernameTaken, a.Username)
	}
	return err
}

func (r *AccountRepo) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	var a models.Account
	err := r.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, role, is_verified, balance, inviter_id, wallet_address, created_at, updated_at
		FROM users WHERE username = $1
	`, username).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Role, &a.Verified, &a.Balance, &a.InviterID, &a.WalletAddress, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("user %q", username)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// SetWallet connects (or clears, with an empty address) the user's wallet.
func (r *AccountRepo) SetWallet(ctx context.Context, id uuid.UUID, address string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET wallet_address = NULLIF($2, ''), updated_at = now() WHERE id = $1
	`, id, address)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("account %s", id)
	}
	return nil
}
