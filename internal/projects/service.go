// Package projects holds the task mutations that interact with settlement.
package projects

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/memefactory/backend/internal/apperr"
	"github.com/memefactory/backend/internal/models"
	"github.com/memefactory/backend/internal/store"
)

type Store interface {
	GetProjectTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Project, error)
	LockTask(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error)
	TaskHasCompletion(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) (bool, error)
	UpdateTaskPrice(ctx context.Context, tx pgx.Tx, id uuid.UUID, price decimal.Decimal) (*models.Task, error)
}

type Service struct {
	db    store.TxBeginner
	store Store
}

func NewService(db store.TxBeginner, st Store) *Service {
	return &Service{db: db, store: st}
}

// UpdateTaskPrice reprices a task. Once any completion references the task its price is
// frozen, so paid amounts always match the task they settled.
func (s *Service) UpdateTaskPrice(ctx context.Context, actor models.Actor, taskID uuid.UUID, price decimal.Decimal) (*models.Task, error) {
	if actor.Role != models.RoleAdvertiser {
		return nil, apperr.Forbiddenf("only advertisers can change task prices")
	}
	if price.IsNegative() {
		return nil, fmt.Errorf("%w: price %s", apperr.ErrInvalidAmount, price)
	}

	var out *models.Task
	err := store.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		task, err := s.store.LockTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		project, err := s.store.GetProjectTx(ctx, tx, task.ProjectID)
		if err != nil {
			return err
		}
		if project.AuthorID != actor.ID {
			return apperr.Forbiddenf("task %s belongs to another advertiser", taskID)
		}
		locked, err := s.store.TaskHasCompletion(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if locked {
			return fmt.Errorf("%w: task %s", apperr.ErrPriceLocked, taskID)
		}
		out, err = s.store.UpdateTaskPrice(ctx, tx, taskID, price)
		return err
	})
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return out, nil
}
