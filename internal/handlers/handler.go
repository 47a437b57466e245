// Package handlers exposes the progress, settlement and reward services over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/memefactory/backend/internal/apperr"
	"github.com/memefactory/backend/internal/autotask"
	"github.com/memefactory/backend/internal/completion"
	"github.com/memefactory/backend/internal/middleware"
	"github.com/memefactory/backend/internal/models"
	"github.com/memefactory/backend/internal/progress"
	"github.com/memefactory/backend/internal/projects"
)

// AccountStore is the account data the /v1/me and /v1/transactions endpoints read and write.
type AccountStore interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	SetWallet(ctx context.Context, id uuid.UUID, address string) error
	ListTransactions(ctx context.Context, userID uuid.UUID) ([]*models.Transaction, error)
}

// Handler serves every authenticated /v1 endpoint.
type Handler struct {
	Progress   *progress.Service
	Completion *completion.Service
	Projects   *projects.Service
	AutoTasks  *autotask.Service
	Accounts   AccountStore
	Logger     *slog.Logger
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// messageRequest is the optional body accepted by apply, submit and status changes.
type messageRequest struct {
	Message string `json:"message"`
}

// reviewRequest is the body of approve and reject.
type reviewRequest struct {
	ApplicantID uuid.UUID `json:"applicant_id"`
	Message     string    `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch apperr.Kind(err) {
	case apperr.ErrNotFound:
		return http.StatusNotFound
	case apperr.ErrForbidden:
		return http.StatusForbidden
	case apperr.ErrAlreadyApplied, apperr.ErrAlreadySubmitted, apperr.ErrAlreadyApproved,
		apperr.ErrAlreadyClaimed, apperr.ErrPriceLocked:
		return http.StatusConflict
	case apperr.ErrInsufficientFunds:
		return http.StatusPaymentRequired
	case apperr.ErrInvalidAmount, apperr.ErrInvalidTransition:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger().Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeMessage(w, status, "internal error")
		return
	}
	writeMessage(w, status, err.Error())
}

// actor returns the authenticated caller or writes 401.
func actor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	a, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "unauthorized")
	}
	return a, ok
}

// pathUUID parses the named path wildcard or writes 400.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeMessage(w, http.StatusBadRequest, "invalid JSON")
	return false
}
