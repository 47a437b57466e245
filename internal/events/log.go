// Package events is the append-only application history and the task-state
// projection replayed from it.
package events

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/memefactory/backend/internal/models"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Store persists events. InsertEvent assigns Seq and CreatedAt and must map a
// duplicate TASK_COMPLETED for the same (progress, task) to apperr.ErrAlreadyApproved.
type Store interface {
	InsertEvent(ctx context.Context, tx pgx.Tx, e *models.Event) error
	ListEventsTx(ctx context.Context, tx pgx.Tx, progressID uuid.UUID) ([]*models.Event, error)
	ListEvents(ctx context.Context, progressID uuid.UUID, offset, limit int) ([]*models.Event, int, error)
}

// AppendHook runs inside the appending transaction after the event row is written.
type AppendHook func(ctx context.Context, tx pgx.Tx, e *models.Event) error

type Log struct {
	store     Store
	validator *Validator
	hooks     []AppendHook
}

func NewLog(store Store, validator *Validator, hooks ...AppendHook) *Log {
	return &Log{store: store, validator: validator, hooks: hooks}
}

// Append validates and writes e under progressID inside tx. The event id is
// generated here; sequence and timestamp come from the store.
func (l *Log) Append(ctx context.Context, tx pgx.Tx, progressID uuid.UUID, e *models.Event) (*models.Event, error) {
	e.ProgressID = progressID
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if l.validator != nil {
		if err := l.validator.Validate(e.EventType, e.Details); err != nil {
			return nil, err
		}
	}
	if err := l.store.InsertEvent(ctx, tx, e); err != nil {
		return nil, err
	}
	for _, hook := range l.hooks {
		if err := hook(ctx, tx, e); err != nil {
			return nil, fmt.Errorf("append hook for %s: %w", e.EventType, err)
		}
	}
	return e, nil
}

// Replay returns the full history of a progress row in creation order, as seen by tx.
func (l *Log) Replay(ctx context.Context, tx pgx.Tx, progressID uuid.UUID) ([]*models.Event, error) {
	list, err := l.store.ListEventsTx(ctx, tx, progressID)
	if err != nil {
		return nil, err
	}
	return ordered(list), nil
}

// TaskState projects the state of one task inside tx.
func (l *Log) TaskState(ctx context.Context, tx pgx.Tx, progressID, taskID uuid.UUID) (TaskState, error) {
	list, err := l.Replay(ctx, tx, progressID)
	if err != nil {
		return TaskNone, err
	}
	return StateOf(list, taskID), nil
}

type HistoryPage struct {
	Events     []*models.Event `json:"events"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	TotalPages int             `json:"total_pages"`
}

// NormalizePage clamps paging input: page below 1 becomes 1, limit outside 1..MaxLimit
// becomes DefaultLimit or MaxLimit.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

// History returns one page of a progress row's events, oldest first.
func (l *Log) History(ctx context.Context, progressID uuid.UUID, page, limit int) (*HistoryPage, error) {
	page, limit = NormalizePage(page, limit)
	list, total, err := l.store.ListEvents(ctx, progressID, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*models.Event{}
	}
	return &HistoryPage{
		Events:     list,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}
