package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adarena/backend/internal/domain"
	"github.com/adarena/backend/internal/events"
	"github.com/adarena/backend/internal/submission"
	"github.com/adarena/backend/internal/wshub"
)

var errNotFound = errors.New("not found")

type fakeStore struct {
	teams       map[string]domain.Team
	teamsByID   map[int]domain.Team
	realRound   int
	cfg         domain.GameConfig
	gameRunning bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{teams: map[string]domain.Team{}, teamsByID: map[int]domain.Team{}}
}

func (f *fakeStore) GetTeams(ctx context.Context) ([]domain.Team, error)    { return nil, nil }
func (f *fakeStore) GetAllTeams(ctx context.Context) ([]domain.Team, error) { return nil, nil }
func (f *fakeStore) GetTeamByID(ctx context.Context, teamID int) (domain.Team, error) {
	t, ok := f.teamsByID[teamID]
	if !ok {
		return domain.Team{}, errNotFound
	}
	return t, nil
}
func (f *fakeStore) GetTeamByToken(ctx context.Context, token string) (domain.Team, error) {
	t, ok := f.teams[token]
	if !ok {
		return domain.Team{}, errNotFound
	}
	return t, nil
}
func (f *fakeStore) CreateTeam(ctx context.Context, t domain.Team) (domain.Team, error) { return t, nil }
func (f *fakeStore) UpdateTeam(ctx context.Context, t domain.Team) error                { return nil }
func (f *fakeStore) DeleteTeam(ctx context.Context, teamID int) error                   { return nil }

func (f *fakeStore) GetTasks(ctx context.Context) ([]domain.Task, error)    { return nil, nil }
func (f *fakeStore) GetAllTasks(ctx context.Context) ([]domain.Task, error) { return nil, nil }
func (f *fakeStore) GetTaskByID(ctx context.Context, taskID int) (domain.Task, error) {
	return domain.Task{}, errNotFound
}
func (f *fakeStore) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) { return t, nil }
func (f *fakeStore) UpdateTask(ctx context.Context, t domain.Task) error                { return nil }
func (f *fakeStore) DeleteTask(ctx context.Context, taskID int) error                   { return nil }

func (f *fakeStore) CurrentGameConfig(ctx context.Context) (domain.GameConfig, error) { return f.cfg, nil }
func (f *fakeStore) UpsertGameConfig(ctx context.Context, c domain.GameConfig) error  { f.cfg = c; return nil }
func (f *fakeStore) GameRunning(ctx context.Context) (bool, error)                    { return f.gameRunning, nil }
func (f *fakeStore) SetGameRunning(ctx context.Context, running bool) error {
	f.gameRunning = running
	return nil
}
func (f *fakeStore) AvailableRound(ctx context.Context) int { return f.realRound }

func (f *fakeStore) ConstructScoreboard(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{"round": f.realRound}, nil
}

type submissionStore struct {
	cfg domain.GameConfig
}

func (s *submissionStore) CurrentGameConfig(ctx context.Context) (domain.GameConfig, error) {
	return s.cfg, nil
}
func (s *submissionStore) TeamTaskStatus(ctx context.Context, teamID, taskID int) (domain.TaskStatus, error) {
	return domain.StatusUp, nil
}
func (s *submissionStore) CountStolen(ctx context.Context, flagID, attackerID int) (int, error) {
	return 0, nil
}
func (s *submissionStore) RecalculateRating(ctx context.Context, attackerID, victimID, taskID, flagID int) (float64, float64, error) {
	return 0, 0, nil
}

func newTestServer(t *testing.T, store *fakeStore) *Server {
	t.Helper()
	sub := &submission.Handler{Store: &submissionStore{cfg: domain.GameConfig{MaxRound: 0}}}
	gameHub := wshub.New("game")
	liveHub := wshub.New("live")
	bus := events.NewBus()
	return New(store, nil, sub, nil, nil, bus, nil, gameHub, liveHub, nil, "*", nil)
}

func TestRouter_CORSPreflight(t *testing.T) {
	s := newTestServer(t, newFakeStore())
	req := httptest.NewRequest(http.MethodOptions, "/flags/", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandleSubmit_MissingTeamToken(t *testing.T) {
	s := newTestServer(t, newFakeStore())
	body, _ := json.Marshal(map[string][]string{"flags": {"FLAGxxx"}})
	req := httptest.NewRequest(http.MethodPut, "/flags/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSubmit_GameNotAvailable(t *testing.T) {
	store := newFakeStore()
	store.teams["team-token"] = domain.Team{ID: 1, Token: "team-token", Active: true}
	store.realRound = -1
	s := newTestServer(t, store)

	body, _ := json.Marshal(map[string][]string{"flags": {"FLAGxxx"}})
	req := httptest.NewRequest(http.MethodPut, "/flags/", bytes.NewReader(body))
	req.Header.Set("X-Team-Token", "team-token")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var results []submitResultItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "FLAGxxx", results[0].Flag)
	assert.Contains(t, results[0].Msg, "Game is not available")
}

func TestHandleSubmit_TooManyFlags(t *testing.T) {
	store := newFakeStore()
	store.teams["team-token"] = domain.Team{ID: 1, Token: "team-token", Active: true}
	s := newTestServer(t, store)

	flags := make([]string, 101)
	for i := range flags {
		flags[i] = "FLAGxxx"
	}
	body, _ := json.Marshal(map[string][]string{"flags": flags})
	req := httptest.NewRequest(http.MethodPut, "/flags/", bytes.NewReader(body))
	req.Header.Set("X-Team-Token", "team-token")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminRoutes_RequireAuth(t *testing.T) {
	s := newTestServer(t, newFakeStore())
	req := httptest.NewRequest(http.MethodGet, "/api/admin/teams", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminAuthStatus_NotGatedButUnauthenticated(t *testing.T) {
	s := newTestServer(t, newFakeStore())
	req := httptest.NewRequest(http.MethodGet, "/api/admin/auth/status", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var status map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status["authenticated"])
}
