package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memefactory/backend/internal/auth"
	"github.com/memefactory/backend/internal/autotask"
	"github.com/memefactory/backend/internal/completion"
	"github.com/memefactory/backend/internal/events"
	"github.com/memefactory/backend/internal/ledger"
	"github.com/memefactory/backend/internal/progress"
	"github.com/memefactory/backend/internal/projects"
)

// Store bundles every table repository so one value satisfies each service's
// narrow Store interface.
type Store struct {
	*ledger.Repository
	*AccountRepo
	*ProjectRepo
	*ProgressRepo
	*EventRepo
	*AutoTaskRepo
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{
		Repository:   ledger.NewRepository(pool),
		AccountRepo:  NewAccountRepo(pool),
		ProjectRepo:  NewProjectRepo(pool),
		ProgressRepo: NewProgressRepo(pool),
		EventRepo:    NewEventRepo(pool),
		AutoTaskRepo: NewAutoTaskRepo(pool),
	}
}

var (
	_ auth.Store       = (*Store)(nil)
	_ ledger.Store     = (*Store)(nil)
	_ events.Store     = (*Store)(nil)
	_ progress.Store   = (*Store)(nil)
	_ completion.Store = (*Store)(nil)
	_ autotask.Store   = (*Store)(nil)
	_ projects.Store   = (*Store)(nil)
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
