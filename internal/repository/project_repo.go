package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/memefactory/backend/internal/apperr"
	"github.com/memefactory/backend/internal/models"
)

type ProjectRepo struct {
	pool *pgxpool.Pool
}

func NewProjectRepo(pool *pgxpool.Pool) *ProjectRepo {
	return &ProjectRepo{pool: pool}
}

func scanProject(row pgx.Row, id uuid.UUID) (*models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.AuthorID, &p.Title, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("project %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const selectProject = `SELECT id, author_id, title, status, created_at, updated_at FROM projects WHERE id = $1`

func (r *ProjectRepo) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return scanProject(r.pool.QueryRow(ctx, selectProject, id), id)
}

func (r *ProjectRepo) GetProjectTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Project, error) {
	return scanProject(tx.QueryRow(ctx, selectProject, id), id)
}

func scanTask(row pgx.Row, id uuid.UUID) (*models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Price, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("task %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const selectTask = `SELECT id, project_id, title, description, price, created_at FROM tasks WHERE id = $1`

func (r *ProjectRepo) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return scanTask(r.pool.QueryRow(ctx, selectTask, id), id)
}

func (r *ProjectRepo) GetTaskTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error) {
	return scanTask(tx.QueryRow(ctx, selectTask, id), id)
}

// LockTask locks the task row for update. Call within a transaction.
func (r *ProjectRepo) LockTask(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error) {
	return scanTask(tx.QueryRow(ctx, selectTask+` FOR UPDATE`, id), id)
}

func (r *ProjectRepo) UpdateTaskPrice(ctx context.Context, tx pgx.Tx, id uuid.UUID, price decimal.Decimal) (*models.Task, error) {
	return scanTask(tx.QueryRow(ctx, `
		UPDATE tasks SET price = $2 WHERE id = $1
		RETURNING id, project_id, title, description, price, created_at
	`, id, price), id)
}

// TaskHasCompletion reports whether any application has a TASK_COMPLETED event for the task.
func (r *ProjectRepo) TaskHasCompletion(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM events
			WHERE event_type = $1 AND details->>'taskId' = $2
		)
	`, models.EventTaskCompleted, taskID.String()).Scan(&exists)
	return exists, err
}
