package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/clearpath-clinical/inventory-backend/pkg/errors"
	"github.com/clearpath-clinical/inventory-backend/pkg/logger"
)

// actorIDHeader carries the authenticated clinician identity injected by
// the gateway. The service treats it as an opaque reference; it never
// validates the identity against a directory.
const actorIDHeader = "X-Actor-Id"

type contextKey string

const ctxActorID contextKey = "actor_id"

// Actor lifts the gateway-injected actor identity into the request context
// and the log fields. Requests without the header pass through; handlers
// that mutate state reject them via RequireActor.
func Actor(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(actorIDHeader))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			actorID, err := uuid.Parse(raw)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithActorID(r.Context(), actorID)
			if logg != nil {
				ctx = logg.WithActorID(ctx, actorID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithActorID injects the actor identifier into the context.
func WithActorID(ctx context.Context, actorID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActorID, actorID)
}

func ActorIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	if v, ok := ctx.Value(ctxActorID).(uuid.UUID); ok && v != uuid.Nil {
		return v, true
	}
	return uuid.Nil, false
}

// RequireActor returns the acting clinician or an UNAUTHORIZED error for
// handlers that record ledger state.
func RequireActor(ctx context.Context) (uuid.UUID, error) {
	actorID, ok := ActorIDFromContext(ctx)
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	return actorID, nil
}
