// Package storetest provides an in-memory, transactional implementation of every
// repository interface used by the core services. It exists for tests only.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/memefactory/backend/internal/apperr"
	"github.com/memefactory/backend/internal/models"
)

type state struct {
	accounts     map[uuid.UUID]models.Account
	projects     map[uuid.UUID]models.Project
	tasks        map[uuid.UUID]models.Task
	progress     map[uuid.UUID]models.ApplicationProgress
	events       []models.Event
	transactions []models.Transaction
	autoTasks    map[uuid.UUID]models.AutoTask
	claims       map[uuid.UUID]models.AutoTaskClaim
	seq          int64
}

func newState() *state {
	return &state{
		accounts:  make(map[uuid.UUID]models.Account),
		projects:  make(map[uuid.UUID]models.Project),
		tasks:     make(map[uuid.UUID]models.Task),
		progress:  make(map[uuid.UUID]models.ApplicationProgress),
		autoTasks: make(map[uuid.UUID]models.AutoTask),
		claims:    make(map[uuid.UUID]models.AutoTaskClaim),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.projects {
		c.projects[k] = v
	}
	for k, v := range s.tasks {
		c.tasks[k] = v
	}
	for k, v := range s.progress {
		c.progress[k] = v
	}
	for k, v := range s.autoTasks {
		c.autoTasks[k] = v
	}
	for k, v := range s.claims {
		c.claims[k] = v
	}
	c.events = append([]models.Event(nil), s.events...)
	c.transactions = append([]models.Transaction(nil), s.transactions...)
	c.seq = s.seq
	return c
}

// Memory is a serializable in-memory store. Methods taking a pgx.Tx expect the
// transaction's lock to be held; the others lock on their own.
type Memory struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time

	failMu     sync.Mutex
	failCommit error
	failAppend error
	commits    int
	rollbacks  int
}

func NewMemory() *Memory {
	return &Memory{st: newState(), now: time.Now}
}

// Begin locks the store and snapshots it for rollback.
func (m *Memory) Begin(context.Context) (pgx.Tx, error) {
	m.mu.Lock()
	return &Tx{m: m, snapshot: m.st.clone()}, nil
}

// FailNextCommit makes the next Commit return err and discard the transaction's writes.
func (m *Memory) FailNextCommit(err error) {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	m.failCommit = err
}

// FailNextEventInsert makes the next InsertEvent return err.
func (m *Memory) FailNextEventInsert(err error) {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	m.failAppend = err
}

func (m *Memory) takeCommitFailure() error {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	err := m.failCommit
	m.failCommit = nil
	return err
}

func (m *Memory) takeAppendFailure() error {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	err := m.failAppend
	m.failAppend = nil
	return err
}

// ---------------------------------------------------------------------------
// Seeding and inspection helpers
// ---------------------------------------------------------------------------

func (m *Memory) AddAccount(a models.Account) models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt, a.UpdatedAt = m.now(), m.now()
	m.st.accounts[a.ID] = a
	return a
}

func (m *Memory) AddProject(p models.Project) models.Project {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = models.ProjectStatusPublished
	}
	p.CreatedAt, p.UpdatedAt = m.now(), m.now()
	m.st.projects[p.ID] = p
	return p
}

func (m *Memory) AddTask(t models.Task) models.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = m.now()
	m.st.tasks[t.ID] = t
	return t
}

func (m *Memory) AddAutoTask(t models.AutoTask) models.AutoTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = m.now()
	m.st.autoTasks[t.ID] = t
	return t
}

func (m *Memory) AddClaim(c models.AutoTaskClaim) models.AutoTaskClaim {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	m.st.claims[c.ID] = c
	return c
}

func (m *Memory) Balance(id uuid.UUID) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.accounts[id].Balance
}

// Events returns the history of a progress row in append order.
func (m *Memory) Events(progressID uuid.UUID) []models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Event
	for _, e := range m.st.events {
		if e.ProgressID == progressID {
			out = append(out, e)
		}
	}
	return out
}

func (m *Memory) AllEvents() []models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Event(nil), m.st.events...)
}

func (m *Memory) Transactions() []models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Transaction(nil), m.st.transactions...)
}

func (m *Memory) Progress(id uuid.UUID) (models.ApplicationProgress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.st.progress[id]
	return p, ok
}

func (m *Memory) ProgressRows() []models.ApplicationProgress {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ApplicationProgress, 0, len(m.st.progress))
	for _, p := range m.st.progress {
		out = append(out, p)
	}
	return out
}

func (m *Memory) Claims() []models.AutoTaskClaim {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.AutoTaskClaim, 0, len(m.st.claims))
	for _, c := range m.st.claims {
		out = append(out, c)
	}
	return out
}

func (m *Memory) Rollbacks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rollbacks
}

// ---------------------------------------------------------------------------
// Accounts and transactions (ledger.Store)
// ---------------------------------------------------------------------------

func (m *Memory) GetAccount(_ context.Context, id uuid.UUID) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.account(id)
}

func (m *Memory) account(id uuid.UUID) (*models.Account, error) {
	a, ok := m.st.accounts[id]
	if !ok {
		return nil, apperr.NotFoundf("account %s", id)
	}
	return &a, nil
}

func (m *Memory) SetWallet(_ context.Context, id uuid.UUID, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.st.accounts[id]
	if !ok {
		return apperr.NotFoundf("account %s", id)
	}
	if address == "" {
		a.WalletAddress = nil
	} else {
		a.WalletAddress = &address
	}
	a.UpdatedAt = m.now()
	m.st.accounts[id] = a
	return nil
}

func (m *Memory) LockAccount(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Account, error) {
	return m.account(id)
}

func (m *Memory) DebitAccount(_ context.Context, _ pgx.Tx, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	a, ok := m.st.accounts[id]
	if !ok || a.Balance.LessThan(amount) {
		return decimal.Zero, apperr.ErrInsufficientFunds
	}
	a.Balance = a.Balance.Sub(amount)
	a.UpdatedAt = m.now()
	m.st.accounts[id] = a
	return a.Balance, nil
}

func (m *Memory) CreditAccount(_ context.Context, _ pgx.Tx, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	a, ok := m.st.accounts[id]
	if !ok {
		return decimal.Zero, apperr.NotFoundf("account %s", id)
	}
	a.Balance = a.Balance.Add(amount)
	a.UpdatedAt = m.now()
	m.st.accounts[id] = a
	return a.Balance, nil
}

func (m *Memory) InsertTransaction(_ context.Context, _ pgx.Tx, t *models.Transaction) error {
	t.CreatedAt = m.now()
	m.st.transactions = append(m.st.transactions, *t)
	return nil
}

func (m *Memory) ListTransactions(_ context.Context, userID uuid.UUID) ([]*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := []*models.Transaction{}
	for i := len(m.st.transactions) - 1; i >= 0; i-- {
		t := m.st.transactions[i]
		if t.ToUserID == userID || (t.FromUserID != nil && *t.FromUserID == userID) {
			list = append(list, &t)
		}
	}
	return list, nil
}

// ---------------------------------------------------------------------------
// Projects and tasks
// ---------------------------------------------------------------------------

func (m *Memory) GetProject(_ context.Context, id uuid.UUID) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.project(id)
}

func (m *Memory) GetProjectTx(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Project, error) {
	return m.project(id)
}

func (m *Memory) project(id uuid.UUID) (*models.Project, error) {
	p, ok := m.st.projects[id]
	if !ok {
		return nil, apperr.NotFoundf("project %s", id)
	}
	return &p, nil
}

func (m *Memory) GetTask(_ context.Context, id uuid.UUID) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.task(id)
}

func (m *Memory) GetTaskTx(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Task, error) {
	return m.task(id)
}

func (m *Memory) LockTask(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Task, error) {
	return m.task(id)
}

func (m *Memory) task(id uuid.UUID) (*models.Task, error) {
	t, ok := m.st.tasks[id]
	if !ok {
		return nil, apperr.NotFoundf("task %s", id)
	}
	return &t, nil
}

func (m *Memory) UpdateTaskPrice(_ context.Context, _ pgx.Tx, id uuid.UUID, price decimal.Decimal) (*models.Task, error) {
	t, ok := m.st.tasks[id]
	if !ok {
		return nil, apperr.NotFoundf("task %s", id)
	}
	t.Price = price
	m.st.tasks[id] = t
	return &t, nil
}

// ---------------------------------------------------------------------------
// Application progress
// ---------------------------------------------------------------------------

func (m *Memory) EnsureProgress(_ context.Context, _ pgx.Tx, userID, projectID uuid.UUID) (*models.ApplicationProgress, bool, error) {
	for _, p := range m.st.progress {
		if p.UserID == userID && p.ProjectID == projectID {
			return &p, false, nil
		}
	}
	p := models.ApplicationProgress{
		ID:        uuid.New(),
		UserID:    userID,
		ProjectID: projectID,
		Status:    models.ProgressPending,
		CreatedAt: m.now(),
		UpdatedAt: m.now(),
	}
	m.st.progress[p.ID] = p
	return &p, true, nil
}

func (m *Memory) GetProgress(_ context.Context, id uuid.UUID) (*models.ApplicationProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progressByID(id)
}

func (m *Memory) GetProgressForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.ApplicationProgress, error) {
	return m.progressByID(id)
}

func (m *Memory) progressByID(id uuid.UUID) (*models.ApplicationProgress, error) {
	p, ok := m.st.progress[id]
	if !ok {
		return nil, apperr.NotFoundf("application progress %s", id)
	}
	return &p, nil
}

func (m *Memory) FindLiveProgressForUpdate(_ context.Context, _ pgx.Tx, userID, projectID uuid.UUID) (*models.ApplicationProgress, error) {
	for _, p := range m.st.progress {
		if p.UserID == userID && p.ProjectID == projectID && p.Status.IsLive() {
			return &p, nil
		}
	}
	return nil, apperr.ErrNoActiveApplication
}

func (m *Memory) UpdateProgressStatus(_ context.Context, _ pgx.Tx, id uuid.UUID, status models.ProgressStatus) (*models.ApplicationProgress, error) {
	p, ok := m.st.progress[id]
	if !ok {
		return nil, apperr.NotFoundf("application progress %s", id)
	}
	p.Status = status
	p.UpdatedAt = m.now()
	m.st.progress[id] = p
	return &p, nil
}

func (m *Memory) ListProgressByProject(_ context.Context, projectID uuid.UUID, status *models.ProgressStatus, userID *uuid.UUID) ([]*models.ApplicationProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := []*models.ApplicationProgress{}
	for _, p := range m.st.progress {
		if p.ProjectID != projectID {
			continue
		}
		if status != nil && p.Status != *status {
			continue
		}
		if userID != nil && p.UserID != *userID {
			continue
		}
		list = append(list, &p)
	}
	sortProgress(list)
	return list, nil
}

func (m *Memory) ListProgressByUser(_ context.Context, userID uuid.UUID) ([]*models.ApplicationProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := []*models.ApplicationProgress{}
	for _, p := range m.st.progress {
		if p.UserID == userID {
			list = append(list, &p)
		}
	}
	sortProgress(list)
	return list, nil
}

func sortProgress(list []*models.ApplicationProgress) {
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
}

// ---------------------------------------------------------------------------
// Events (events.Store)
// ---------------------------------------------------------------------------

func (m *Memory) InsertEvent(_ context.Context, _ pgx.Tx, e *models.Event) error {
	if err := m.takeAppendFailure(); err != nil {
		return err
	}
	if e.EventType == models.EventTaskCompleted {
		if taskID, ok := e.TaskID(); ok {
			for _, prev := range m.st.events {
				if prevTask, ok := prev.TaskID(); ok && prev.ProgressID == e.ProgressID &&
					prev.EventType == models.EventTaskCompleted && prevTask == taskID {
					return apperr.ErrAlreadyApproved
				}
			}
		}
	}
	m.st.seq++
	e.Seq = m.st.seq
	e.CreatedAt = m.now()
	m.st.events = append(m.st.events, *e)
	return nil
}

func (m *Memory) ListEventsTx(_ context.Context, _ pgx.Tx, progressID uuid.UUID) ([]*models.Event, error) {
	return m.eventsFor(progressID), nil
}

func (m *Memory) ListEvents(_ context.Context, progressID uuid.UUID, offset, limit int) ([]*models.Event, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.eventsFor(progressID)
	total := len(all)
	if offset >= total {
		return []*models.Event{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *Memory) eventsFor(progressID uuid.UUID) []*models.Event {
	list := []*models.Event{}
	for _, e := range m.st.events {
		if e.ProgressID == progressID {
			e := e
			list = append(list, &e)
		}
	}
	return list
}

func (m *Memory) TaskHasCompletion(_ context.Context, _ pgx.Tx, taskID uuid.UUID) (bool, error) {
	for _, e := range m.st.events {
		if id, ok := e.TaskID(); ok && id == taskID && e.EventType == models.EventTaskCompleted {
			return true, nil
		}
	}
	return false, nil
}

// ---------------------------------------------------------------------------
// Auto-tasks and claims
// ---------------------------------------------------------------------------

func (m *Memory) GetAutoTaskByName(_ context.Context, name string) (*models.AutoTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.st.autoTasks {
		if t.Name == name {
			return &t, nil
		}
	}
	return nil, apperr.NotFoundf("auto-task %q", name)
}

func (m *Memory) ListAutoTasks(_ context.Context) ([]*models.AutoTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := []*models.AutoTask{}
	for _, t := range m.st.autoTasks {
		list = append(list, &t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (m *Memory) LockClaim(_ context.Context, _ pgx.Tx, userID, taskID uuid.UUID) (*models.AutoTaskClaim, error) {
	for _, c := range m.st.claims {
		if c.UserID == userID && c.TaskID == taskID {
			return &c, nil
		}
	}
	return nil, nil
}

func (m *Memory) HasConfirmedClaimForMethod(_ context.Context, _ pgx.Tx, userID uuid.UUID, method models.VerificationMethod) (bool, error) {
	for _, c := range m.st.claims {
		if c.UserID != userID || !c.IsConfirmed {
			continue
		}
		if t, ok := m.st.autoTasks[c.TaskID]; ok && t.VerificationMethod == method {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) SaveClaim(_ context.Context, _ pgx.Tx, c *models.AutoTaskClaim) error {
	for id, prev := range m.st.claims {
		if prev.UserID == c.UserID && prev.TaskID == c.TaskID {
			c.ID = id
			c.CreatedAt = prev.CreatedAt
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
		c.CreatedAt = m.now()
	}
	c.UpdatedAt = m.now()
	m.st.claims[c.ID] = *c
	return nil
}

func (m *Memory) ListClaimsByUser(_ context.Context, userID uuid.UUID) ([]*models.AutoTaskClaim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := []*models.AutoTaskClaim{}
	for _, c := range m.st.claims {
		if c.UserID == userID {
			list = append(list, &c)
		}
	}
	return list, nil
}
