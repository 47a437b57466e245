package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memefactory/backend/internal/apperr"
	"github.com/memefactory/backend/internal/autotask"
	"github.com/memefactory/backend/internal/completion"
	"github.com/memefactory/backend/internal/events"
	"github.com/memefactory/backend/internal/ledger"
	"github.com/memefactory/backend/internal/middleware"
	"github.com/memefactory/backend/internal/models"
	"github.com/memefactory/backend/internal/progress"
	"github.com/memefactory/backend/internal/projects"
	"github.com/memefactory/backend/internal/storetest"
)

type fixture struct {
	mem        *storetest.Memory
	h          *Handler
	advertiser models.Actor
	creator    models.Actor
	project    models.Project
	task       models.Task
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := storetest.NewMemory()
	v, err := events.NewValidator()
	require.NoError(t, err)
	log := events.NewLog(mem, v)
	l := ledger.NewService(mem)

	adv := mem.AddAccount(models.Account{Username: "adv", Role: models.RoleAdvertiser, Balance: decimal.NewFromInt(1000)})
	cr := mem.AddAccount(models.Account{Username: "creator", Role: models.RoleCreator})
	project := mem.AddProject(models.Project{AuthorID: adv.ID, Title: "Meme drop"})
	task := mem.AddTask(models.Task{ProjectID: project.ID, Title: "Post a meme", Price: decimal.NewFromInt(300)})

	ps := progress.NewService(mem, mem, log, nil)
	return &fixture{
		mem: mem,
		h: &Handler{
			Progress:   ps,
			Completion: completion.NewService(mem, mem, l, log, ps, nil),
			Projects:   projects.NewService(mem, mem),
			AutoTasks:  autotask.NewService(mem, mem, l, decimal.RequireFromString("0.1"), nil, nil),
			Accounts:   mem,
		},
		advertiser: adv.Actor(),
		creator:    cr.Actor(),
		project:    project,
		task:       task,
	}
}

// call invokes fn as the given actor with optional path values and JSON body.
func call(t *testing.T, fn http.HandlerFunc, method, target string, as *models.Actor, path map[string]string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	for k, v := range path {
		req.SetPathValue(k, v)
	}
	if as != nil {
		req = req.WithContext(middleware.WithActor(req.Context(), *as))
	}
	rec := httptest.NewRecorder()
	fn(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.NotFoundf("task"), http.StatusNotFound},
		{apperr.ErrNoActiveApplication, http.StatusNotFound},
		{apperr.Forbiddenf("nope"), http.StatusForbidden},
		{apperr.ErrAlreadyApplied, http.StatusConflict},
		{apperr.ErrAlreadySubmitted, http.StatusConflict},
		{apperr.ErrAlreadyApproved, http.StatusConflict},
		{apperr.ErrAlreadyClaimed, http.StatusConflict},
		{apperr.ErrPriceLocked, http.StatusConflict},
		{fmt.Errorf("debit: %w", apperr.ErrInsufficientFunds), http.StatusPaymentRequired},
		{apperr.ErrInvalidAmount, http.StatusUnprocessableEntity},
		{apperr.ErrInvalidTransition, http.StatusUnprocessableEntity},
		{apperr.Storage(errors.New("conn reset")), http.StatusInternalServerError},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, statusFor(c.err), c.err.Error())
	}
}

func TestUnauthenticatedRequestsAreRejected(t *testing.T) {
	f := newFixture(t)
	rec := call(t, f.h.ListMine, http.MethodGet, "/v1/progress/mine", nil, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestApply_InvalidProjectID(t *testing.T) {
	f := newFixture(t)
	rec := call(t, f.h.Apply, http.MethodPost, "/", &f.creator, map[string]string{"id": "not-a-uuid"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApply_ThenDuplicateConflicts(t *testing.T) {
	f := newFixture(t)
	path := map[string]string{"id": f.project.ID.String()}

	rec := call(t, f.h.Apply, http.MethodPost, "/", &f.creator, path, messageRequest{Message: "let me in"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decodeBody[models.ApplicationProgress](t, rec)
	assert.Equal(t, models.ProgressPending, p.Status)
	assert.Equal(t, f.creator.ID, p.UserID)

	rec = call(t, f.h.Apply, http.MethodPost, "/", &f.creator, path, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestApply_UnknownProject(t *testing.T) {
	f := newFixture(t)
	rec := call(t, f.h.Apply, http.MethodPost, "/", &f.creator, map[string]string{"id": uuid.NewString()}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApply_MalformedBody(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("{"))
	req.SetPathValue("id", f.project.ID.String())
	req = req.WithContext(middleware.WithActor(req.Context(), f.creator))
	rec := httptest.NewRecorder()
	f.h.Apply(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetStatus_RequiresStatus(t *testing.T) {
	f := newFixture(t)
	p, err := f.h.Progress.Apply(context.Background(), f.creator, f.project.ID, "")
	require.NoError(t, err)

	rec := call(t, f.h.SetStatus, http.MethodPatch, "/", &f.advertiser, map[string]string{"id": p.ID.String()}, statusRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetStatus_OwnerAccepts(t *testing.T) {
	f := newFixture(t)
	p, err := f.h.Progress.Apply(context.Background(), f.creator, f.project.ID, "")
	require.NoError(t, err)

	rec := call(t, f.h.SetStatus, http.MethodPatch, "/", &f.advertiser, map[string]string{"id": p.ID.String()},
		statusRequest{Status: models.ProgressAccepted, Message: "welcome"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeBody[models.ApplicationProgress](t, rec)
	assert.Equal(t, models.ProgressAccepted, got.Status)

	// a second transition from accepted is not allowed
	rec = call(t, f.h.SetStatus, http.MethodPatch, "/", &f.advertiser, map[string]string{"id": p.ID.String()},
		statusRequest{Status: models.ProgressRejected})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestTaskFlow_SubmitApproveAndHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.h.Progress.Apply(ctx, f.creator, f.project.ID, "")
	require.NoError(t, err)
	taskPath := map[string]string{"id": f.task.ID.String()}

	rec := call(t, f.h.SubmitTask, http.MethodPost, "/", &f.creator, taskPath, messageRequest{Message: "done"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = call(t, f.h.SubmitTask, http.MethodPost, "/", &f.creator, taskPath, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(t, f.h.ApproveTask, http.MethodPost, "/", &f.advertiser, taskPath, reviewRequest{ApplicantID: f.creator.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approval := decodeBody[completion.Approval](t, rec)
	require.NotNil(t, approval.Transaction)
	assert.True(t, approval.Transaction.Amount.Equal(decimal.NewFromInt(300)))
	assert.True(t, f.mem.Balance(f.creator.ID).Equal(decimal.NewFromInt(300)))

	rec = call(t, f.h.ApproveTask, http.MethodPost, "/", &f.advertiser, taskPath, reviewRequest{ApplicantID: f.creator.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(t, f.h.History, http.MethodGet, "/v1/progress/x/events?page=1&limit=2", &f.creator,
		map[string]string{"id": p.ID.String()}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decodeBody[events.HistoryPage](t, rec)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Events, 2)

	rec = call(t, f.h.ListProjectProgress, http.MethodGet, "/?status=accepted", &f.advertiser,
		map[string]string{"id": f.project.ID.String()}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var views []struct {
		ID            uuid.UUID   `json:"id"`
		Status        string      `json:"status"`
		ApprovedTasks []uuid.UUID `json:"approved_tasks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, p.ID, views[0].ID)
	assert.Equal(t, []uuid.UUID{f.task.ID}, views[0].ApprovedTasks)
}

func TestHistory_InvalidPage(t *testing.T) {
	f := newFixture(t)
	rec := call(t, f.h.History, http.MethodGet, "/?page=abc", &f.creator, map[string]string{"id": uuid.NewString()}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApprove_RequiresApplicant(t *testing.T) {
	f := newFixture(t)
	rec := call(t, f.h.ApproveTask, http.MethodPost, "/", &f.advertiser, map[string]string{"id": f.task.ID.String()}, reviewRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApprove_InsufficientFunds(t *testing.T) {
	f := newFixture(t)
	expensive := f.mem.AddTask(models.Task{ProjectID: f.project.ID, Title: "Billboard", Price: decimal.NewFromInt(5000)})
	_, err := f.h.Progress.Apply(context.Background(), f.creator, f.project.ID, "")
	require.NoError(t, err)

	rec := call(t, f.h.ApproveTask, http.MethodPost, "/", &f.advertiser, map[string]string{"id": expensive.ID.String()},
		reviewRequest{ApplicantID: f.creator.ID})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.True(t, f.mem.Balance(f.advertiser.ID).Equal(decimal.NewFromInt(1000)))
}

func TestRejectTask_ByNonOwnerForbidden(t *testing.T) {
	f := newFixture(t)
	other := f.mem.AddAccount(models.Account{Username: "other", Role: models.RoleAdvertiser}).Actor()
	_, err := f.h.Progress.Apply(context.Background(), f.creator, f.project.ID, "")
	require.NoError(t, err)

	rec := call(t, f.h.RejectTask, http.MethodPost, "/", &other, map[string]string{"id": f.task.ID.String()},
		reviewRequest{ApplicantID: f.creator.ID})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateTaskPrice(t *testing.T) {
	f := newFixture(t)
	path := map[string]string{"id": f.task.ID.String()}

	rec := call(t, f.h.UpdateTaskPrice, http.MethodPatch, "/", &f.advertiser, path, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, f.h.UpdateTaskPrice, http.MethodPatch, "/", &f.advertiser, path, map[string]string{"price": "42.5"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeBody[models.Task](t, rec)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("42.5")))

	rec = call(t, f.h.UpdateTaskPrice, http.MethodPatch, "/", &f.creator, path, map[string]string{"price": "1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestConnectWalletThenClaim(t *testing.T) {
	f := newFixture(t)
	f.mem.AddAutoTask(models.AutoTask{Name: "connect-wallet", Reward: decimal.NewFromInt(5), VerificationMethod: models.VerifyWallet})
	claimPath := map[string]string{"name": "connect-wallet"}

	rec := call(t, f.h.ClaimAutoTask, http.MethodPost, "/", &f.creator, claimPath, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, f.h.ConnectWallet, http.MethodPut, "/", &f.creator, nil, walletRequest{Address: " 0xabc "})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	acc := decodeBody[models.Account](t, rec)
	require.NotNil(t, acc.WalletAddress)
	assert.Equal(t, "0xabc", *acc.WalletAddress)

	rec = call(t, f.h.ClaimAutoTask, http.MethodPost, "/", &f.creator, claimPath, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, f.mem.Balance(f.creator.ID).Equal(decimal.NewFromInt(5)))

	rec = call(t, f.h.ClaimAutoTask, http.MethodPost, "/", &f.creator, claimPath, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(t, f.h.AutoTaskStatus, http.MethodGet, "/", &f.creator, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	statuses := decodeBody[[]autotask.TaskStatus](t, rec)
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].IsCompleted)
	assert.False(t, statuses[0].CanBeClaimed)

	rec = call(t, f.h.ListTransactions, http.MethodGet, "/", &f.creator, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	txns := decodeBody[[]models.Transaction](t, rec)
	require.Len(t, txns, 1)
	assert.Equal(t, models.TransactionSystem, txns[0].Type)
}

func TestClaimUnknownAutoTask(t *testing.T) {
	f := newFixture(t)
	rec := call(t, f.h.ClaimAutoTask, http.MethodPost, "/", &f.creator, map[string]string{"name": "nope"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetMe(t *testing.T) {
	f := newFixture(t)
	rec := call(t, f.h.GetMe, http.MethodGet, "/", &f.advertiser, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	acc := decodeBody[models.Account](t, rec)
	assert.Equal(t, "adv", acc.Username)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(1000)))
}

func TestStorageFailureIsHidden(t *testing.T) {
	f := newFixture(t)
	_, err := f.h.Progress.Apply(context.Background(), f.creator, f.project.ID, "")
	require.NoError(t, err)
	f.mem.FailNextCommit(errors.New("disk full"))

	rec := call(t, f.h.SubmitTask, http.MethodPost, "/", &f.creator, map[string]string{"id": f.task.ID.String()}, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk full")
}
