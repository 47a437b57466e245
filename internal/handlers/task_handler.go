package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubmitTask handles POST /v1/tasks/{id}/submit.
func (h *Handler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	taskID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req messageRequest
	if !decode(w, r, &req) {
		return
	}
	ev, err := h.Completion.Submit(r.Context(), a, taskID, req.Message)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// review decodes the approve/reject body shared by both endpoints.
func review(w http.ResponseWriter, r *http.Request) (uuid.UUID, reviewRequest, bool) {
	var req reviewRequest
	taskID, ok := pathUUID(w, r, "id")
	if !ok {
		return uuid.Nil, req, false
	}
	if !decode(w, r, &req) {
		return uuid.Nil, req, false
	}
	if req.ApplicantID == uuid.Nil {
		writeMessage(w, http.StatusBadRequest, "applicant_id is required")
		return uuid.Nil, req, false
	}
	return taskID, req, true
}

// ApproveTask handles POST /v1/tasks/{id}/approve.
func (h *Handler) ApproveTask(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	taskID, req, ok := review(w, r)
	if !ok {
		return
	}
	res, err := h.Completion.Approve(r.Context(), a, taskID, req.ApplicantID, req.Message)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RejectTask handles POST /v1/tasks/{id}/reject.
func (h *Handler) RejectTask(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	taskID, req, ok := review(w, r)
	if !ok {
		return
	}
	ev, err := h.Completion.Reject(r.Context(), a, taskID, req.ApplicantID, req.Message)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

type priceRequest struct {
	Price *decimal.Decimal `json:"price"`
}

// UpdateTaskPrice handles PATCH /v1/tasks/{id}/price.
func (h *Handler) UpdateTaskPrice(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	taskID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req priceRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Price == nil {
		writeMessage(w, http.StatusBadRequest, "price is required")
		return
	}
	t, err := h.Projects.UpdateTaskPrice(r.Context(), a, taskID, *req.Price)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
