// Package autotask pays platform-funded rewards for one-off, daily and wallet tasks,
// with an optional referral share for the claimant's inviter.
package autotask

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/memefactory/backend/internal/apperr"
	"github.com/memefactory/backend/internal/ledger"
	"github.com/memefactory/backend/internal/models"
	"github.com/memefactory/backend/internal/store"
)

type Store interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	LockAccount(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error)
	GetAutoTaskByName(ctx context.Context, name string) (*models.AutoTask, error)
	ListAutoTasks(ctx context.Context) ([]*models.AutoTask, error)
	LockClaim(ctx context.Context, tx pgx.Tx, userID, taskID uuid.UUID) (*models.AutoTaskClaim, error)
	HasConfirmedClaimForMethod(ctx context.Context, tx pgx.Tx, userID uuid.UUID, method models.VerificationMethod) (bool, error)
	SaveClaim(ctx context.Context, tx pgx.Tx, c *models.AutoTaskClaim) error
	ListClaimsByUser(ctx context.Context, userID uuid.UUID) ([]*models.AutoTaskClaim, error)
}

type Service struct {
	db           store.TxBeginner
	store        Store
	ledger       ledger.Service
	policy       Policy
	referralRate decimal.Decimal
	now          func() time.Time
	logger       *slog.Logger
}

func NewService(db store.TxBeginner, st Store, l ledger.Service, referralRate decimal.Decimal, loc *time.Location, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:           db,
		store:        st,
		ledger:       l,
		policy:       Policy{Location: loc},
		referralRate: referralRate,
		now:          time.Now,
		logger:       logger,
	}
}

// ClaimResult is the confirmed claim and the transactions it produced.
type ClaimResult struct {
	Claim       *models.AutoTaskClaim `json:"claim"`
	Transaction *models.Transaction   `json:"transaction"`
	Referral    *models.Transaction   `json:"referral,omitempty"`
}

// Claim confirms taskName for the actor and pays its reward. A claim that the policy
// refuses changes nothing.
func (s *Service) Claim(ctx context.Context, actor models.Actor, taskName string) (*ClaimResult, error) {
	task, err := s.store.GetAutoTaskByName(ctx, taskName)
	if err != nil {
		return nil, apperr.Storage(err)
	}

	// The inviter is credited too, so both rows are locked up front in ledger order.
	current, err := s.store.GetAccount(ctx, actor.ID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	ids := []uuid.UUID{actor.ID}
	if current.InviterID != nil {
		ids = append(ids, *current.InviterID)
	}

	var out ClaimResult
	err = store.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var account *models.Account
		for _, id := range ledger.LockOrder(ids...) {
			a, err := s.store.LockAccount(ctx, tx, id)
			if err != nil {
				return err
			}
			if id == actor.ID {
				account = a
			}
		}
		claim, err := s.store.LockClaim(ctx, tx, actor.ID, task.ID)
		if err != nil {
			return err
		}
		walletRewarded := false
		if task.VerificationMethod == models.VerifyWallet {
			if walletRewarded, err = s.store.HasConfirmedClaimForMethod(ctx, tx, actor.ID, models.VerifyWallet); err != nil {
				return err
			}
		}
		now := s.now()
		if err := s.policy.Check(ClaimContext{
			Task:           task,
			Claim:          claim,
			Account:        account,
			WalletRewarded: walletRewarded,
			Now:            now,
		}); err != nil {
			return err
		}

		if claim == nil {
			claim = &models.AutoTaskClaim{UserID: actor.ID, TaskID: task.ID}
		}
		claim.IsConfirmed = true
		claim.LastCompletedAt = &now
		if err := s.store.SaveClaim(ctx, tx, claim); err != nil {
			return err
		}

		reward, err := s.ledger.Transfer(ctx, tx, ledger.TransferParams{
			To:     actor.ID,
			Amount: task.Reward,
			Type:   models.TransactionSystem,
		})
		if err != nil {
			return err
		}
		out = ClaimResult{Claim: claim, Transaction: reward.Transaction}

		if account.InviterID == nil || !s.referralRate.IsPositive() {
			return nil
		}
		share := task.Reward.Mul(s.referralRate).Round(8)
		if !share.IsPositive() {
			return nil
		}
		referral, err := s.ledger.Transfer(ctx, tx, ledger.TransferParams{
			To:     *account.InviterID,
			Amount: share,
			Type:   models.TransactionReferral,
		})
		if err != nil {
			return err
		}
		out.Referral = referral.Transaction
		return nil
	})
	if err != nil {
		return nil, apperr.Storage(err)
	}
	s.logger.Info("auto-task claimed",
		"user_id", actor.ID,
		"task", task.Name,
		"transaction_id", out.Transaction.ID,
		"amount", out.Transaction.Amount.String(),
	)
	return &out, nil
}

// TaskStatus describes one auto-task from the actor's point of view.
type TaskStatus struct {
	TaskID             uuid.UUID                 `json:"task_id"`
	Name               string                    `json:"name"`
	Reward             decimal.Decimal           `json:"reward"`
	VerificationMethod models.VerificationMethod `json:"verification_method"`
	IsCompleted        bool                      `json:"is_completed"`
	LastCompletedAt    *time.Time                `json:"last_completed_at"`
	CanBeClaimed       bool                      `json:"can_be_claimed"`
}

// Status lists every auto-task with the actor's claim state, using the same policy as Claim.
func (s *Service) Status(ctx context.Context, actor models.Actor) ([]TaskStatus, error) {
	account, err := s.store.GetAccount(ctx, actor.ID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	tasks, err := s.store.ListAutoTasks(ctx)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	claims, err := s.store.ListClaimsByUser(ctx, actor.ID)
	if err != nil {
		return nil, apperr.Storage(err)
	}

	byTask := make(map[uuid.UUID]*models.AutoTaskClaim, len(claims))
	for _, c := range claims {
		byTask[c.TaskID] = c
	}
	walletRewarded := false
	for _, t := range tasks {
		if c := byTask[t.ID]; c != nil && c.IsConfirmed && t.VerificationMethod == models.VerifyWallet {
			walletRewarded = true
		}
	}

	now := s.now()
	out := make([]TaskStatus, 0, len(tasks))
	for _, t := range tasks {
		c := byTask[t.ID]
		st := TaskStatus{
			TaskID:             t.ID,
			Name:               t.Name,
			Reward:             t.Reward,
			VerificationMethod: t.VerificationMethod,
		}
		if c != nil {
			st.IsCompleted = c.IsConfirmed
			st.LastCompletedAt = c.LastCompletedAt
		}
		st.CanBeClaimed = s.policy.Check(ClaimContext{
			Task:           t,
			Claim:          c,
			Account:        account,
			WalletRewarded: walletRewarded,
			Now:            now,
		}) == nil
		out = append(out, st)
	}
	return out, nil
}
