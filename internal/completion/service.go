// Package completion orchestrates task submission, approval and rejection inside
// an application, settling approved tasks through the ledger.
package completion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/memefactory/backend/internal/apperr"
	"github.com/memefactory/backend/internal/events"
	"github.com/memefactory/backend/internal/ledger"
	"github.com/memefactory/backend/internal/models"
	"github.com/memefactory/backend/internal/store"
)

// AutoAcceptMessage is recorded when approving a task accepts a pending application.
const AutoAcceptMessage = "Application automatically accepted after task approval"

// Store resolves tasks, projects and live applications inside the workflow's transaction.
type Store interface {
	GetTaskTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error)
	GetProjectTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Project, error)
	FindLiveProgressForUpdate(ctx context.Context, tx pgx.Tx, userID, projectID uuid.UUID) (*models.ApplicationProgress, error)
}

// Acceptor performs the pending -> accepted transition without authorization checks.
type Acceptor interface {
	TransitionTx(ctx context.Context, tx pgx.Tx, actor models.Actor, p *models.ApplicationProgress, status models.ProgressStatus, message string) (*models.ApplicationProgress, error)
}

// Approval is the result of a settled task.
type Approval struct {
	Event       *models.Event       `json:"event"`
	Transaction *models.Transaction `json:"transaction"`
}

type Service struct {
	db       store.TxBeginner
	store    Store
	ledger   ledger.Service
	log      *events.Log
	acceptor Acceptor
	logger   *slog.Logger
}

func NewService(db store.TxBeginner, st Store, l ledger.Service, log *events.Log, acceptor Acceptor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, store: st, ledger: l, log: log, acceptor: acceptor, logger: logger}
}

// target is the task, its project and the applicant's live application, resolved in tx.
type target struct {
	task     *models.Task
	project  *models.Project
	progress *models.ApplicationProgress
	state    events.TaskState
	// submission is the unanswered TASK_SUBMIT for the task, if any.
	submission *models.Event
}

// reviewOf returns the id of the submission a review answers, or nil.
func (t *target) reviewOf() *uuid.UUID {
	if t.submission == nil {
		return nil
	}
	return &t.submission.ID
}

func (s *Service) resolve(ctx context.Context, tx pgx.Tx, taskID, applicantID uuid.UUID) (*target, error) {
	task, err := s.store.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}
	project, err := s.store.GetProjectTx(ctx, tx, task.ProjectID)
	if err != nil {
		return nil, err
	}
	p, err := s.store.FindLiveProgressForUpdate(ctx, tx, applicantID, project.ID)
	if err != nil {
		return nil, err
	}
	history, err := s.log.Replay(ctx, tx, p.ID)
	if err != nil {
		return nil, err
	}
	return &target{
		task:       task,
		project:    project,
		progress:   p,
		state:      events.StateOf(history, task.ID),
		submission: events.OpenSubmission(history, task.ID),
	}, nil
}

// Submit records the creator's TASK_SUBMIT. A task already submitted or approved in
// the creator's application cannot be submitted again.
func (s *Service) Submit(ctx context.Context, actor models.Actor, taskID uuid.UUID, message string) (*models.Event, error) {
	if actor.Role != models.RoleCreator {
		return nil, apperr.Forbiddenf("only creators can submit tasks")
	}

	var out *models.Event
	err := store.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		t, err := s.resolve(ctx, tx, taskID, actor.ID)
		if err != nil {
			return err
		}
		switch t.state {
		case events.TaskSubmitted:
			return fmt.Errorf("%w: task %s awaits review", apperr.ErrAlreadySubmitted, taskID)
		case events.TaskApproved:
			return fmt.Errorf("%w: task %s", apperr.ErrAlreadyApproved, taskID)
		}
		out, err = s.log.Append(ctx, tx, t.progress.ID, &models.Event{
			ProjectID:   t.project.ID,
			ActorID:     actor.ID,
			ActorRole:   actor.Role,
			EventType:   models.EventTaskSubmit,
			Description: "Task completion submitted.",
			Message:     models.StringPtr(message),
			Details:     &models.EventDetails{TaskID: &t.task.ID},
		})
		return err
	})
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return out, nil
}

// Approve pays the task price from the owning advertiser to the applicant and records
// TASK_COMPLETED in one transaction. A pending application is accepted on the way.
func (s *Service) Approve(ctx context.Context, actor models.Actor, taskID, applicantID uuid.UUID, message string) (*Approval, error) {
	if actor.Role != models.RoleAdvertiser {
		return nil, apperr.Forbiddenf("only advertisers can approve tasks")
	}

	var out Approval
	var progressID uuid.UUID
	err := store.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		t, err := s.resolve(ctx, tx, taskID, applicantID)
		if err != nil {
			return err
		}
		if t.project.AuthorID != actor.ID {
			return apperr.Forbiddenf("task %s belongs to another advertiser", taskID)
		}
		if t.state == events.TaskApproved {
			return fmt.Errorf("%w: task %s", apperr.ErrAlreadyApproved, taskID)
		}

		res, err := s.ledger.Transfer(ctx, tx, ledger.TransferParams{
			From:      &actor.ID,
			To:        applicantID,
			Amount:    t.task.Price,
			Type:      models.TransactionPayment,
			TaskID:    &t.task.ID,
			ProjectID: &t.project.ID,
		})
		if err != nil {
			return err
		}
		txn := res.Transaction

		event, err := s.log.Append(ctx, tx, t.progress.ID, &models.Event{
			ProjectID:   t.project.ID,
			ActorID:     actor.ID,
			ActorRole:   actor.Role,
			EventType:   models.EventTaskCompleted,
			Description: "Task completion approved.",
			Message:     models.StringPtr(message),
			Details: &models.EventDetails{
				TaskID:        &t.task.ID,
				TransactionID: &txn.ID,
				Amount:        &txn.Amount,
				EventID:       t.reviewOf(),
			},
		})
		if err != nil {
			return err
		}

		if t.progress.Status == models.ProgressPending {
			if _, err := s.acceptor.TransitionTx(ctx, tx, actor, t.progress, models.ProgressAccepted, AutoAcceptMessage); err != nil {
				return err
			}
		}
		out = Approval{Event: event, Transaction: txn}
		progressID = t.progress.ID
		return nil
	})
	if err != nil {
		return nil, apperr.Storage(err)
	}
	s.logger.Info("task approved",
		"progress_id", progressID,
		"task_id", taskID,
		"transaction_id", out.Transaction.ID,
		"amount", out.Transaction.Amount.String(),
	)
	return &out, nil
}

// Reject records TASK_REJECTED for the applicant's task. No funds move.
func (s *Service) Reject(ctx context.Context, actor models.Actor, taskID, applicantID uuid.UUID, message string) (*models.Event, error) {
	if actor.Role != models.RoleAdvertiser {
		return nil, apperr.Forbiddenf("only advertisers can reject tasks")
	}

	var out *models.Event
	err := store.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		t, err := s.resolve(ctx, tx, taskID, applicantID)
		if err != nil {
			return err
		}
		if t.project.AuthorID != actor.ID {
			return apperr.Forbiddenf("task %s belongs to another advertiser", taskID)
		}
		if t.state == events.TaskApproved {
			return fmt.Errorf("%w: task %s", apperr.ErrAlreadyApproved, taskID)
		}
		out, err = s.log.Append(ctx, tx, t.progress.ID, &models.Event{
			ProjectID:   t.project.ID,
			ActorID:     actor.ID,
			ActorRole:   actor.Role,
			EventType:   models.EventTaskRejected,
			Description: "Task completion rejected.",
			Message:     models.StringPtr(message),
			Details:     &models.EventDetails{TaskID: &t.task.ID, EventID: t.reviewOf()},
		})
		return err
	})
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return out, nil
}
