// Package progress is the application lifecycle state machine:
// pending -> accepted | rejected, and rejected -> pending on re-application.
package progress

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/memefactory/backend/internal/apperr"
	"github.com/memefactory/backend/internal/events"
	"github.com/memefactory/backend/internal/models"
	"github.com/memefactory/backend/internal/store"
)

// AutoAcceptMessage is recorded on the approval event written for verified applicants.
const AutoAcceptMessage = "A verified user is automatically accepted into the project"

// Store is the minimal project and progress storage the state machine needs.
type Store interface {
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	GetProjectTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Project, error)
	EnsureProgress(ctx context.Context, tx pgx.Tx, userID, projectID uuid.UUID) (*models.ApplicationProgress, bool, error)
	GetProgress(ctx context.Context, id uuid.UUID) (*models.ApplicationProgress, error)
	GetProgressForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.ApplicationProgress, error)
	UpdateProgressStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status models.ProgressStatus) (*models.ApplicationProgress, error)
	ListProgressByProject(ctx context.Context, projectID uuid.UUID, status *models.ProgressStatus, userID *uuid.UUID) ([]*models.ApplicationProgress, error)
	ListProgressByUser(ctx context.Context, userID uuid.UUID) ([]*models.ApplicationProgress, error)
}

type Service struct {
	db     store.TxBeginner
	store  Store
	log    *events.Log
	logger *slog.Logger
}

func NewService(db store.TxBeginner, st Store, log *events.Log, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, store: st, log: log, logger: logger}
}

// Apply creates or revives the actor's application to projectID and records
// APPLICATION_SUBMITTED. Verified creators are accepted in the same transaction.
func (s *Service) Apply(ctx context.Context, actor models.Actor, projectID uuid.UUID, message string) (*models.ApplicationProgress, error) {
	if actor.Role != models.RoleCreator {
		return nil, apperr.Forbiddenf("only creators can apply to projects")
	}

	var out *models.ApplicationProgress
	err := store.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		project, err := s.store.GetProjectTx(ctx, tx, projectID)
		if err != nil {
			return err
		}
		p, created, err := s.store.EnsureProgress(ctx, tx, actor.ID, project.ID)
		if err != nil {
			return err
		}
		if !created {
			// Re-read under lock so two concurrent applies see each other.
			if p, err = s.store.GetProgressForUpdate(ctx, tx, p.ID); err != nil {
				return err
			}
			switch p.Status {
			case models.ProgressPending, models.ProgressAccepted:
				return fmt.Errorf("%w: application %s is %s", apperr.ErrAlreadyApplied, p.ID, p.Status)
			case models.ProgressRejected:
				if p, err = s.store.UpdateProgressStatus(ctx, tx, p.ID, models.ProgressPending); err != nil {
					return err
				}
			}
		}

		if _, err := s.log.Append(ctx, tx, p.ID, &models.Event{
			ProjectID:   project.ID,
			ActorID:     actor.ID,
			ActorRole:   actor.Role,
			EventType:   models.EventApplicationSubmitted,
			Description: "Application to the project submitted.",
			Message:     models.StringPtr(message),
		}); err != nil {
			return err
		}

		if actor.Verified {
			if p, err = s.TransitionTx(ctx, tx, actor, p, models.ProgressAccepted, AutoAcceptMessage); err != nil {
				return err
			}
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return out, nil
}

// SetStatus accepts or rejects a pending application. The caller must be verified or
// be the advertiser owning the project, and must be the owner or the applicant.
func (s *Service) SetStatus(ctx context.Context, actor models.Actor, progressID uuid.UUID, status models.ProgressStatus, message string) (*models.ApplicationProgress, error) {
	if status != models.ProgressAccepted && status != models.ProgressRejected {
		return nil, fmt.Errorf("%w: cannot set status %q", apperr.ErrInvalidTransition, status)
	}

	var out *models.ApplicationProgress
	err := store.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		p, err := s.store.GetProgressForUpdate(ctx, tx, progressID)
		if err != nil {
			return err
		}
		project, err := s.store.GetProjectTx(ctx, tx, p.ProjectID)
		if err != nil {
			return err
		}
		isOwner := project.AuthorID == actor.ID
		if !actor.Verified && !(actor.Role == models.RoleAdvertiser && isOwner) {
			return apperr.Forbiddenf("only verified users or the project owner can change application status")
		}
		if !isOwner && p.UserID != actor.ID {
			return apperr.Forbiddenf("not the project owner or the applicant")
		}
		out, err = s.TransitionTx(ctx, tx, actor, p, status, message)
		return err
	})
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return out, nil
}

// TransitionTx moves a pending application to accepted or rejected inside tx and
// appends the matching event. It performs no authorization; callers own that.
func (s *Service) TransitionTx(ctx context.Context, tx pgx.Tx, actor models.Actor, p *models.ApplicationProgress, status models.ProgressStatus, message string) (*models.ApplicationProgress, error) {
	if p.Status != models.ProgressPending {
		return nil, fmt.Errorf("%w: %s -> %s", apperr.ErrInvalidTransition, p.Status, status)
	}
	var (
		eventType   models.EventType
		description string
	)
	switch status {
	case models.ProgressAccepted:
		eventType, description = models.EventApplicationApproved, "Application to the project approved."
	case models.ProgressRejected:
		eventType, description = models.EventApplicationRejected, "Application to the project rejected."
	default:
		return nil, fmt.Errorf("%w: %s -> %s", apperr.ErrInvalidTransition, p.Status, status)
	}

	updated, err := s.store.UpdateProgressStatus(ctx, tx, p.ID, status)
	if err != nil {
		return nil, err
	}
	if _, err := s.log.Append(ctx, tx, p.ID, &models.Event{
		ProjectID:   p.ProjectID,
		ActorID:     actor.ID,
		ActorRole:   actor.Role,
		EventType:   eventType,
		Description: description,
		Message:     models.StringPtr(message),
	}); err != nil {
		return nil, err
	}
	s.logger.Info("application status changed",
		"progress_id", p.ID, "from", p.Status, "to", status, "actor_id", actor.ID)
	return updated, nil
}

// View is an application together with the task summary projected from its history.
type View struct {
	*models.ApplicationProgress
	events.Summary
}

// Filter narrows ListProjectProgress.
type Filter struct {
	Status    *models.ProgressStatus
	CreatorID *uuid.UUID
}

// ListProjectProgress lists a project's applications for its owner.
func (s *Service) ListProjectProgress(ctx context.Context, actor models.Actor, projectID uuid.UUID, f Filter) ([]View, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	if project.AuthorID != actor.ID {
		return nil, apperr.Forbiddenf("not the project owner")
	}
	list, err := s.store.ListProgressByProject(ctx, projectID, f.Status, f.CreatorID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return s.summarize(ctx, list)
}

// ListMine lists the actor's own applications.
func (s *Service) ListMine(ctx context.Context, actor models.Actor) ([]View, error) {
	list, err := s.store.ListProgressByUser(ctx, actor.ID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return s.summarize(ctx, list)
}

// summarize replays every history in one read transaction so the summaries
// are consistent with each other.
func (s *Service) summarize(ctx context.Context, list []*models.ApplicationProgress) ([]View, error) {
	views := make([]View, 0, len(list))
	if len(list) == 0 {
		return views, nil
	}
	err := store.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		for _, p := range list {
			history, err := s.log.Replay(ctx, tx, p.ID)
			if err != nil {
				return err
			}
			views = append(views, View{ApplicationProgress: p, Summary: events.Summarize(history)})
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return views, nil
}

// History returns one page of an application's events to its applicant or project owner.
func (s *Service) History(ctx context.Context, actor models.Actor, progressID uuid.UUID, page, limit int) (*events.HistoryPage, error) {
	p, err := s.store.GetProgress(ctx, progressID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	project, err := s.store.GetProject(ctx, p.ProjectID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	if p.UserID != actor.ID && project.AuthorID != actor.ID {
		return nil, apperr.Forbiddenf("not the project owner or the applicant")
	}
	h, err := s.log.History(ctx, progressID, page, limit)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return h, nil
}
