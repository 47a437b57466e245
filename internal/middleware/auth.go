package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/memefactory/backend/internal/models"
)

type contextKey string

const ctxActorKey contextKey = "actor"

// TokenValidator turns a bearer token into the authenticated actor.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (models.Actor, error)
}

// BearerAuth validates the Bearer JWT and stores the actor (id, role, verified)
// in the request context.
func BearerAuth(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}
			actor, err := v.ValidateToken(r.Context(), raw)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// ActorFromCtx returns the authenticated actor and whether one is present.
func ActorFromCtx(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(ctxActorKey).(models.Actor)
	return actor, ok
}

// WithActor returns a context carrying the given actor.
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, ctxActorKey, actor)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
