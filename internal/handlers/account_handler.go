package handlers

import (
	"net/http"
	"strings"
)

// ClaimAutoTask handles POST /v1/auto-tasks/{name}/claim.
func (h *Handler) ClaimAutoTask(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")
	if name == "" {
		writeMessage(w, http.StatusBadRequest, "task name is required")
		return
	}
	res, err := h.AutoTasks.Claim(r.Context(), a, name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AutoTaskStatus handles GET /v1/auto-tasks/status.
func (h *Handler) AutoTaskStatus(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	list, err := h.AutoTasks.Status(r.Context(), a)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ListTransactions handles GET /v1/transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	list, err := h.Accounts.ListTransactions(r.Context(), a.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetMe handles GET /v1/me.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	acc, err := h.Accounts.GetAccount(r.Context(), a.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

type walletRequest struct {
	Address string `json:"address"`
}

// ConnectWallet handles PUT /v1/me/wallet. An empty address disconnects the wallet.
func (h *Handler) ConnectWallet(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req walletRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Accounts.SetWallet(r.Context(), a.ID, strings.TrimSpace(req.Address)); err != nil {
		h.writeError(w, r, err)
		return
	}
	acc, err := h.Accounts.GetAccount(r.Context(), a.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}
