package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/memefactory/backend/internal/models"
	"github.com/memefactory/backend/internal/progress"
)

// Apply handles POST /v1/projects/{id}/apply.
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	projectID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req messageRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.Progress.Apply(r.Context(), a, projectID, req.Message)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

type statusRequest struct {
	Status  models.ProgressStatus `json:"status"`
	Message string                `json:"message"`
}

// SetStatus handles PATCH /v1/progress/{id}/status.
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	progressID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Status == "" {
		writeMessage(w, http.StatusBadRequest, "status is required")
		return
	}
	p, err := h.Progress.SetStatus(r.Context(), a, progressID, req.Status, req.Message)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// History handles GET /v1/progress/{id}/events?page=&limit=.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	progressID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	page, ok := queryInt(w, r, "page")
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	res, err := h.Progress.History(r.Context(), a, progressID, page, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListProjectProgress handles GET /v1/projects/{id}/progress?status=&creator_id=.
func (h *Handler) ListProjectProgress(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	projectID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var f progress.Filter
	q := r.URL.Query()
	if s := q.Get("status"); s != "" {
		status := models.ProgressStatus(s)
		f.Status = &status
	}
	if s := q.Get("creator_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid creator_id")
			return
		}
		f.CreatorID = &id
	}
	list, err := h.Progress.ListProjectProgress(r.Context(), a, projectID, f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ListMine handles GET /v1/progress/mine.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	list, err := h.Progress.ListMine(r.Context(), a)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// queryInt reads an optional integer query parameter; absent means 0.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return n, true
}
