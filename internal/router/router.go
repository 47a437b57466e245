package router

import (
	"net/http"

	"github.com/memefactory/backend/internal/auth"
	"github.com/memefactory/backend/internal/handlers"
)

// New returns an http.Handler that serves the API under /api/v1. Every route except
// register, login and the health check goes through authn.
func New(authHandler *auth.Handler, h *handlers.Handler, authn func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("POST "+base+"/auth/register", authHandler.Register)
	mux.HandleFunc("POST "+base+"/auth/login", authHandler.Login)

	protected := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, authn(fn))
	}

	protected("POST "+base+"/projects/{id}/apply", h.Apply)
	protected("GET "+base+"/projects/{id}/progress", h.ListProjectProgress)
	protected("GET "+base+"/progress/mine", h.ListMine)
	protected("PATCH "+base+"/progress/{id}/status", h.SetStatus)
	protected("GET "+base+"/progress/{id}/events", h.History)

	protected("POST "+base+"/tasks/{id}/submit", h.SubmitTask)
	protected("POST "+base+"/tasks/{id}/approve", h.ApproveTask)
	protected("POST "+base+"/tasks/{id}/reject", h.RejectTask)
	protected("PATCH "+base+"/tasks/{id}/price", h.UpdateTaskPrice)

	protected("POST "+base+"/auto-tasks/{name}/claim", h.ClaimAutoTask)
	protected("GET "+base+"/auto-tasks/status", h.AutoTaskStatus)

	protected("GET "+base+"/transactions", h.ListTransactions)
	protected("GET "+base+"/me", h.GetMe)
	protected("PUT "+base+"/me/wallet", h.ConnectWallet)

	return mux
}
