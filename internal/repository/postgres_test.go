package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memefactory/backend/internal/apperr"
	"github.com/memefactory/backend/internal/auth"
	"github.com/memefactory/backend/internal/models"
	"github.com/memefactory/backend/internal/store"
)

// These tests run against a real Postgres and are skipped unless DATABASE_URL is set.

type pgFixture struct {
	pool    *pgxpool.Pool
	repo    *Store
	adv     *models.Account
	creator *models.Account
	project uuid.UUID
	task    uuid.UUID
}

func newPGFixture(t *testing.T) *pgFixture {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, pool.Ping(ctx))
	require.NoError(t, store.Migrate(ctx, pool))

	f := &pgFixture{pool: pool, repo: New(pool)}
	f.adv = f.account(t, models.RoleAdvertiser, 100)
	f.creator = f.account(t, models.RoleCreator, 0)

	f.project = uuid.New()
	_, err = pool.Exec(ctx, `INSERT INTO projects (id, author_id, title, status) VALUES ($1, $2, 'Meme drop', 'published')`,
		f.project, f.adv.ID)
	require.NoError(t, err)
	f.task = uuid.New()
	_, err = pool.Exec(ctx, `INSERT INTO tasks (id, project_id, title, price) VALUES ($1, $2, 'Post a meme', 30)`,
		f.task, f.project)
	require.NoError(t, err)
	return f
}

func (f *pgFixture) account(t *testing.T, role models.Role, balance int64) *models.Account {
	t.Helper()
	a := &models.Account{
		ID:       uuid.New(),
		Username: "u-" + uuid.NewString(),
		Role:     role,
		Balance:  decimal.NewFromInt(balance),
	}
	require.NoError(t, f.repo.CreateAccount(context.Background(), a))
	return a
}

func (f *pgFixture) balance(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	a, err := f.repo.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return a.Balance
}

// inTx commits fn's work, or rolls back and returns its error.
func (f *pgFixture) inTx(t *testing.T, fn func(tx pgx.Tx) error) error {
	t.Helper()
	return store.WithTx(context.Background(), f.pool, fn)
}

func (f *pgFixture) progress(t *testing.T) *models.ApplicationProgress {
	t.Helper()
	var p *models.ApplicationProgress
	require.NoError(t, f.inTx(t, func(tx pgx.Tx) error {
		var err error
		p, _, err = f.repo.EnsureProgress(context.Background(), tx, f.creator.ID, f.project)
		return err
	}))
	return p
}

func (f *pgFixture) completion(p *models.ApplicationProgress, submission *uuid.UUID) *models.Event {
	txn, amount := uuid.New(), decimal.NewFromInt(30)
	return &models.Event{
		ID:          uuid.New(),
		ProgressID:  p.ID,
		ProjectID:   f.project,
		ActorID:     f.adv.ID,
		ActorRole:   models.RoleAdvertiser,
		EventType:   models.EventTaskCompleted,
		Description: "Task completion approved.",
		Details:     &models.EventDetails{TaskID: &f.task, TransactionID: &txn, Amount: &amount, EventID: submission},
	}
}

func TestPG_DebitOnlyWhenBalanceCovers(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	err := f.inTx(t, func(tx pgx.Tx) error {
		_, err := f.repo.DebitAccount(ctx, tx, f.adv.ID, decimal.NewFromInt(150))
		return err
	})
	assert.True(t, errors.Is(err, apperr.ErrInsufficientFunds), "got %v", err)
	assert.True(t, f.balance(t, f.adv.ID).Equal(decimal.NewFromInt(100)))

	var left decimal.Decimal
	require.NoError(t, f.inTx(t, func(tx pgx.Tx) error {
		var err error
		left, err = f.repo.DebitAccount(ctx, tx, f.adv.ID, decimal.NewFromInt(100))
		return err
	}))
	assert.True(t, left.IsZero())
	assert.True(t, f.balance(t, f.adv.ID).IsZero())
}

func TestPG_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	const n = 5
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		ok     int
		failed int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithTx(ctx, f.pool, func(tx pgx.Tx) error {
				_, err := f.repo.DebitAccount(ctx, tx, f.adv.ID, decimal.NewFromInt(60))
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, apperr.ErrInsufficientFunds) {
				failed++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, failed)
	assert.True(t, f.balance(t, f.adv.ID).Equal(decimal.NewFromInt(40)))
}

func TestPG_EventsAreAppendOnly(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	p := f.progress(t)
	e := f.completion(p, nil)
	require.NoError(t, f.inTx(t, func(tx pgx.Tx) error { return f.repo.InsertEvent(ctx, tx, e) }))

	_, err := f.pool.Exec(ctx, `UPDATE events SET description = 'edited' WHERE id = $1`, e.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	_, err = f.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, e.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	list, total, err := f.repo.ListEvents(ctx, p.ID, 0, 10)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "Task completion approved.", list[0].Description)
}

func TestPG_OneCompletionPerTaskAndApplication(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	p := f.progress(t)
	submission := uuid.New()

	require.NoError(t, f.inTx(t, func(tx pgx.Tx) error { return f.repo.InsertEvent(ctx, tx, f.completion(p, &submission)) }))

	err := f.inTx(t, func(tx pgx.Tx) error { return f.repo.InsertEvent(ctx, tx, f.completion(p, nil)) })
	assert.True(t, errors.Is(err, apperr.ErrAlreadyApproved), "got %v", err)

	require.NoError(t, f.inTx(t, func(tx pgx.Tx) error {
		locked, err := f.repo.TaskHasCompletion(ctx, tx, f.task)
		if err != nil {
			return err
		}
		assert.True(t, locked)

		list, err := f.repo.ListEventsTx(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		require.Len(t, list, 1)
		require.NotNil(t, list[0].Details.EventID)
		assert.Equal(t, submission, *list[0].Details.EventID)
		return nil
	}))
}

func TestPG_DuplicateUsername(t *testing.T) {
	f := newPGFixture(t)
	dup := &models.Account{ID: uuid.New(), Username: f.adv.Username, Role: models.RoleCreator}
	err := f.repo.CreateAccount(context.Background(), dup)
	assert.True(t, errors.Is(err, auth.ErrUsernameTaken), "got %v", err)
}
