package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memefactory/backend/internal/apperr"
	"github.com/memefactory/backend/internal/models"
)

type AutoTaskRepo struct {
	pool *pgxpool.Pool
}

func NewAutoTaskRepo(pool *pgxpool.Pool) *AutoTaskRepo {
	return &AutoTaskRepo{pool: pool}
}

const claimColumns = `id, user_id, task_id, is_confirmed, last_completed_at, created_at, updated_at`

func (r *AutoTaskRepo) GetAutoTaskByName(ctx context.Context, name string) (*models.AutoTask, error) {
	var t models.AutoTask
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, reward, verification_method, created_at FROM auto_tasks WHERE name = $1
	`, name).Scan(&t.ID, &t.Name, &t.Reward, &t.VerificationMethod, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("auto-task %q", name)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *AutoTaskRepo) ListAutoTasks(ctx context.Context) ([]*models.AutoTask, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, reward, verification_method, created_at FROM auto_tasks ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.AutoTask{}
	for rows.Next() {
		var t models.AutoTask
		if err := rows.Scan(&t.ID, &t.Name, &t.Reward, &t.VerificationMethod, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}

func scanClaim(row pgx.Row) (*models.AutoTaskClaim, error) {
	var c models.AutoTaskClaim
	if err := row.Scan(&c.ID, &c.UserID, &c.TaskID, &c.IsConfirmed, &c.LastCompletedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// LockClaim locks the user's claim row for the task. It returns nil, nil when the user
// never claimed it; the unique (user_id, task_id) constraint then guards the insert.
func (r *AutoTaskRepo) LockClaim(ctx context.Context, tx pgx.Tx, userID, taskID uuid.UUID) (*models.AutoTaskClaim, error) {
	c, err := scanClaim(tx.QueryRow(ctx, `
		SELECT `+claimColumns+` FROM auto_task_claims WHERE user_id = $1 AND task_id = $2 FOR UPDATE
	`, userID, taskID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (r *AutoTaskRepo) HasConfirmedClaimForMethod(ctx context.Context, tx pgx.Tx, userID uuid.UUID, method models.VerificationMethod) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM auto_task_claims c
			JOIN auto_tasks t ON t.id = c.task_id
			WHERE c.user_id = $1 AND c.is_confirmed AND t.verification_method = $2
		)
	`, userID, method).Scan(&exists)
	return exists, err
}

// SaveClaim inserts a new claim (zero ID) or updates an existing one.
func (r *AutoTaskRepo) SaveClaim(ctx context.Context, tx pgx.Tx, c *models.AutoTaskClaim) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
		err := tx.QueryRow(ctx, `
			INSERT INTO auto_task_claims (id, user_id, task_id, is_confirmed, last_completed_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at, updated_at
		`, c.ID, c.UserID, c.TaskID, c.IsConfirmed, c.LastCompletedAt).Scan(&c.CreatedAt, &c.UpdatedAt)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: concurrent claim", apperr.ErrAlreadyClaimed)
		}
		return err
	}
	return tx.QueryRow(ctx, `
		UPDATE auto_task_claims SET is_confirmed = $2, last_completed_at = $3, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, c.ID, c.IsConfirmed, c.LastCompletedAt).Scan(&c.UpdatedAt)
}

func (r *AutoTaskRepo) ListClaimsByUser(ctx context.Context, userID uuid.UUID) ([]*models.AutoTaskClaim, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+claimColumns+` FROM auto_task_claims WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.AutoTaskClaim{}
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}
