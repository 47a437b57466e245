package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memefactory/backend/internal/apperr"
	"github.com/memefactory/backend/internal/models"
)

// EventRepo only ever inserts and reads; the table rejects UPDATE and DELETE.
type EventRepo struct {
	pool *pgxpool.Pool
}

func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

const eventColumns = `id, seq, progress_id, project_id, actor_id, actor_role, event_type, description, message, details, created_at`

func (r *EventRepo) InsertEvent(ctx context.Context, tx pgx.Tx, e *models.Event) error {
	var details []byte
	if e.Details != nil {
		var err error
		if details, err = json.Marshal(e.Details); err != nil {
			return fmt.Errorf("marshal details: %w", err)
		}
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO events (id, progress_id, project_id, actor_id, actor_role, event_type, description, message, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING seq, created_at
	`, e.ID, e.ProgressID, e.ProjectID, e.ActorID, e.ActorRole, e.EventType, e.Description, e.Message, details).Scan(&e.Seq, &e.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: task already completed in this application", apperr.ErrAlreadyApproved)
	}
	return err
}

func (r *EventRepo) ListEventsTx(ctx context.Context, tx pgx.Tx, progressID uuid.UUID) ([]*models.Event, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+eventColumns+` FROM events WHERE progress_id = $1 ORDER BY created_at, seq
	`, progressID)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

// ListEvents returns one page of history, oldest first, and the total number of events.
func (r *EventRepo) ListEvents(ctx context.Context, progressID uuid.UUID, offset, limit int) ([]*models.Event, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM events WHERE progress_id = $1`, progressID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+` FROM events WHERE progress_id = $1
		ORDER BY created_at, seq
		OFFSET $2 LIMIT $3
	`, progressID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	list, err := collectEvents(rows)
	return list, total, err
}

func collectEvents(rows pgx.Rows) ([]*models.Event, error) {
	defer rows.Close()
	list := []*models.Event{}
	for rows.Next() {
		var (
			e       models.Event
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.Seq, &e.ProgressID, &e.ProjectID, &e.ActorID, &e.ActorRole, &e.EventType, &e.Description, &e.Message, &details, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			e.Details = &models.EventDetails{}
			if err := json.Unmarshal(details, e.Details); err != nil {
				return nil, fmt.Errorf("event %s details: %w", e.ID, err)
			}
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
