package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memefactory/backend/internal/apperr"
	"github.com/memefactory/backend/internal/models"
)

type ProgressRepo struct {
	pool *pgxpool.Pool
}

func NewProgressRepo(pool *pgxpool.Pool) *ProgressRepo {
	return &ProgressRepo{pool: pool}
}

const progressColumns = `id, user_id, project_id, status, created_at, updated_at`

func scanProgress(row pgx.Row) (*models.ApplicationProgress, error) {
	var p models.ApplicationProgress
	if err := row.Scan(&p.ID, &p.UserID, &p.ProjectID, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func notFoundProgress(p *models.ApplicationProgress, err error, id uuid.UUID) (*models.ApplicationProgress, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("application progress %s", id)
	}
	return p, err
}

// EnsureProgress returns the (user, project) row, inserting a pending one if none exists.
// created reports whether this call inserted it.
func (r *ProgressRepo) EnsureProgress(ctx context.Context, tx pgx.Tx, userID, projectID uuid.UUID) (*models.ApplicationProgress, bool, error) {
	p, err := scanProgress(tx.QueryRow(ctx, `
		INSERT INTO application_progress (id, user_id, project_id, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, project_id) DO NOTHING
		RETURNING `+progressColumns,
		uuid.New(), userID, projectID, models.ProgressPending))
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}
	p, err = scanProgress(tx.QueryRow(ctx, `
		SELECT `+progressColumns+` FROM application_progress WHERE user_id = $1 AND project_id = $2
	`, userID, projectID))
	if err != nil {
		return nil, false, err
	}
	return p, false, nil
}

func (r *ProgressRepo) GetProgress(ctx context.Context, id uuid.UUID) (*models.ApplicationProgress, error) {
	p, err := scanProgress(r.pool.QueryRow(ctx, `SELECT `+progressColumns+` FROM application_progress WHERE id = $1`, id))
	return notFoundProgress(p, err, id)
}

// GetProgressForUpdate locks the row. Call within a transaction.
func (r *ProgressRepo) GetProgressForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.ApplicationProgress, error) {
	p, err := scanProgress(tx.QueryRow(ctx, `SELECT `+progressColumns+` FROM application_progress WHERE id = $1 FOR UPDATE`, id))
	return notFoundProgress(p, err, id)
}

// FindLiveProgressForUpdate locks the user's pending or accepted application to the project.
func (r *ProgressRepo) FindLiveProgressForUpdate(ctx context.Context, tx pgx.Tx, userID, projectID uuid.UUID) (*models.ApplicationProgress, error) {
	p, err := scanProgress(tx.QueryRow(ctx, `
		SELECT `+progressColumns+` FROM application_progress
		WHERE user_id = $1 AND project_id = $2 AND status IN ($3, $4)
		FOR UPDATE
	`, userID, projectID, models.ProgressPending, models.ProgressAccepted))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNoActiveApplication
	}
	return p, err
}

func (r *ProgressRepo) UpdateProgressStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status models.ProgressStatus) (*models.ApplicationProgress, error) {
	p, err := scanProgress(tx.QueryRow(ctx, `
		UPDATE application_progress SET status = $2, updated_at = now() WHERE id = $1
		RETURNING `+progressColumns, id, status))
	return notFoundProgress(p, err, id)
}

func (r *ProgressRepo) ListProgressByProject(ctx context.Context, projectID uuid.UUID, status *models.ProgressStatus, userID *uuid.UUID) ([]*models.ApplicationProgress, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+progressColumns+` FROM application_progress
		WHERE project_id = $1
		  AND ($2::text IS NULL OR status = $2)
		  AND ($3::uuid IS NULL OR user_id = $3)
		ORDER BY created_at
	`, projectID, status, userID)
	if err != nil {
		return nil, err
	}
	return collectProgress(rows)
}

func (r *ProgressRepo) ListProgressByUser(ctx context.Context, userID uuid.UUID) ([]*models.ApplicationProgress, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+progressColumns+` FROM application_progress WHERE user_id = $1 ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	return collectProgress(rows)
}

func collectProgress(rows pgx.Rows) ([]*models.ApplicationProgress, error) {
	defer rows.Close()
	list := []*models.ApplicationProgress{}
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}
