package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"kyb/pkg/requestcontext"
)

// Identity headers set by the upstream gateway after authenticating the
// back-office user.
const (
	HeaderActorID   = "X-Actor-Id"
	HeaderActorName = "X-Actor-Name"
	HeaderActorRole = "X-Actor-Role"
)

// RequireActor rejects requests without an actor id and attaches the
// principal to the request context.
func RequireActor(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := requestcontext.Principal{
				UserID:   strings.TrimSpace(r.Header.Get(HeaderActorID)),
				UserName: strings.TrimSpace(r.Header.Get(HeaderActorName)),
				Role:     strings.TrimSpace(r.Header.Get(HeaderActorRole)),
			}
			if p.IsZero() {
				ctx := r.Context()
				logger.WarnContext(ctx, "request without actor identity",
					"request_id", requestcontext.RequestID(ctx),
					"path", r.URL.Path,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"missing actor identity"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(r.Context(), p)))
		})
	}
}
