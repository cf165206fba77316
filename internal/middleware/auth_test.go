package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adarena/backend/internal/domain"
)

type stubTeamStore struct {
	team domain.Team
	err  error
}

func (s stubTeamStore) GetTeamByToken(ctx context.Context, token string) (domain.Team, error) {
	if s.err != nil {
		return domain.Team{}, s.err
	}
	return s.team, nil
}

type stubVerifier struct{ ok bool }

func (s stubVerifier) Verify(ctx context.Context, session string) bool { return s.ok }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestTeamAuth_MissingToken(t *testing.T) {
	h := TeamAuth(stubTeamStore{})(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/submit", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTeamAuth_UnknownToken(t *testing.T) {
	h := TeamAuth(stubTeamStore{err: errors.New("not found")})(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/submit", nil)
	req.Header.Set("X-Team-Token", "bogus")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTeamAuth_InactiveTeam(t *testing.T) {
	h := TeamAuth(stubTeamStore{team: domain.Team{ID: 1, Token: "abc", Active: false}})(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/submit", nil)
	req.Header.Set("X-Team-Token", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTeamAuth_ValidToken_SetsContext(t *testing.T) {
	team := domain.Team{ID: 7, Name: "corvus", Token: "abc", Active: true}
	var seen domain.Team
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = TeamFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	h := TeamAuth(stubTeamStore{team: team})(next)
	req := httptest.NewRequest(http.MethodPost, "/submit", nil)
	req.Header.Set("X-Team-Token", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, team.ID, seen.ID)
	require.Equal(t, "abc", TeamTokenFromContext(req.Context()))
}

func TestTeamTokenFromContext_Unset(t *testing.T) {
	require.Equal(t, "", TeamTokenFromContext(context.Background()))
}

func TestAdminAuth_MissingCookie(t *testing.T) {
	h := AdminAuth(stubVerifier{ok: true})(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/admin/teams", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminAuth_InvalidSession(t *testing.T) {
	h := AdminAuth(stubVerifier{ok: false})(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/admin/teams", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "expired"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminAuth_ValidSession(t *testing.T) {
	h := AdminAuth(stubVerifier{ok: true})(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/admin/teams", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "good"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
