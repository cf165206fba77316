package middleware

import (
	"context"
	"net/http"

	"github.com/adarena/backend/internal/domain"
)

type contextKey int

const (
	teamContextKey contextKey = iota
)

// TeamStore resolves the bearer token on a team-facing request to the
// team that owns it.
type TeamStore interface {
	GetTeamByToken(ctx context.Context, token string) (domain.Team, error)
}

// SessionVerifier checks an admin session cookie, implemented by
// internal/auth.Service.
type SessionVerifier interface {
	Verify(ctx context.Context, session string) bool
}

// TeamAuth resolves the X-Team-Token header to a team and rejects the
// request if it doesn't match one, matching the original's per-team
// bearer-token scheme for submission and client-data endpoints.
func TeamAuth(store TeamStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Team-Token")
			if token == "" {
				http.Error(w, `{"error":"missing team token"}`, http.StatusBadRequest)
				return
			}

			team, err := store.GetTeamByToken(r.Context(), token)
			if err != nil || !team.Active {
				http.Error(w, `{"error":"invalid team token"}`, http.StatusBadRequest)
				return
			}

			ctx := context.WithValue(r.Context(), teamContextKey, team)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TeamFromContext returns the team TeamAuth attached to the request context.
func TeamFromContext(ctx context.Context) (domain.Team, bool) {
	team, ok := ctx.Value(teamContextKey).(domain.Team)
	return team, ok
}

// TeamTokenFromContext is the rate limiter's lookup key — the bearer token
// of the team TeamAuth attached, or "" when none is attached. A token
// rotation therefore starts the team on a fresh window.
func TeamTokenFromContext(ctx context.Context) string {
	team, ok := TeamFromContext(ctx)
	if !ok {
		return ""
	}
	return team.Token
}

// AdminAuth checks the "session" cookie against the session verifier,
// matching check_admin_auth's 401-on-missing-or-invalid-session behavior.
func AdminAuth(verifier SessionVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie("session")
			if err != nil || !verifier.Verify(r.Context(), cookie.Value) {
				http.Error(w, `{"error":"Not authenticated. Please login first."}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
