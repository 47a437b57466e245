package ledger

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/memefactory/backend/internal/apperr"
	"github.com/memefactory/backend/internal/models"
)

// Store is the minimal account and transaction storage the ledger needs.
// Every method runs inside the caller's transaction.
type Store interface {
	LockAccount(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error)
	DebitAccount(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	CreditAccount(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	InsertTransaction(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
}

// TransferParams describes one balance movement. From is nil for platform-funded credits.
type TransferParams struct {
	From      *uuid.UUID
	To        uuid.UUID
	Amount    decimal.Decimal
	Type      models.TransactionType
	TaskID    *uuid.UUID
	ProjectID *uuid.UUID
}

// TransferResult carries the recorded transaction and the balances after the move.
type TransferResult struct {
	Transaction *models.Transaction
	FromBalance *decimal.Decimal
	ToBalance   decimal.Decimal
}

type Service interface {
	Transfer(ctx context.Context, tx pgx.Tx, p TransferParams) (*TransferResult, error)
}

type service struct {
	store Store
}

func NewService(store Store) Service {
	return &service{store: store}
}

var _ Service = (*service)(nil)

// Transfer debits From (when set), credits To and records a Transaction, all inside tx.
// Account rows are locked in deterministic order (by UUID) to avoid deadlock between
// concurrent transfers touching the same pair.
func (s *service) Transfer(ctx context.Context, tx pgx.Tx, p TransferParams) (*TransferResult, error) {
	if !p.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", apperr.ErrInvalidAmount, p.Amount)
	}

	locked := make(map[uuid.UUID]*models.Account, 2)
	for _, id := range lockOrder(p.From, p.To) {
		acc, err := s.store.LockAccount(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		locked[id] = acc
	}

	res := &TransferResult{}
	if p.From != nil {
		if locked[*p.From].Balance.LessThan(p.Amount) {
			return nil, apperr.ErrInsufficientFunds
		}
		newFrom, err := s.store.DebitAccount(ctx, tx, *p.From, p.Amount)
		if err != nil {
			return nil, err
		}
		res.FromBalance = &newFrom
	}

	newTo, err := s.store.CreditAccount(ctx, tx, p.To, p.Amount)
	if err != nil {
		return nil, err
	}
	res.ToBalance = newTo

	t := &models.Transaction{
		ID:         uuid.New(),
		FromUserID: p.From,
		ToUserID:   p.To,
		Amount:     p.Amount,
		Type:       p.Type,
		TaskID:     p.TaskID,
		ProjectID:  p.ProjectID,
	}
	if err := s.store.InsertTransaction(ctx, tx, t); err != nil {
		return nil, err
	}
	res.Transaction = t
	return res, nil
}

func lockOrder(from *uuid.UUID, to uuid.UUID) []uuid.UUID {
	if from == nil {
		return LockOrder(to)
	}
	return LockOrder(to, *from)
}

// LockOrder returns the distinct ids in the order account rows must be locked.
// Callers that lock accounts before a Transfer use it to stay deadlock-free.
func LockOrder(ids ...uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
