// Package api exposes the tournament's REST surface: the team-facing flag
// submission endpoint, admin CRUD over teams/tasks/config behind session
// auth, read-only spectator endpoints, and the two WebSocket fan-out
// streams, all wired over gorilla/mux.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/adarena/backend/internal/auth"
	"github.com/adarena/backend/internal/cache"
	"github.com/adarena/backend/internal/domain"
	"github.com/adarena/backend/internal/events"
	"github.com/adarena/backend/internal/middleware"
	"github.com/adarena/backend/internal/monitor"
	"github.com/adarena/backend/internal/notifier"
	"github.com/adarena/backend/internal/submission"
	"github.com/adarena/backend/internal/wshub"
)

// Metrics is the subset of internal/monitoring.Metrics the API needs to
// record submission outcomes and expose the scrape endpoint.
type Metrics interface {
	RecordSubmission(outcome string)
	Handler() http.Handler
}

// Store is the subset of internal/store the API needs.
type Store interface {
	GetTeams(ctx context.Context) ([]domain.Team, error)
	GetAllTeams(ctx context.Context) ([]domain.Team, error)
	GetTeamByID(ctx context.Context, teamID int) (domain.Team, error)
	GetTeamByToken(ctx context.Context, token string) (domain.Team, error)
	CreateTeam(ctx context.Context, t domain.Team) (domain.Team, error)
	UpdateTeam(ctx context.Context, t domain.Team) error
	DeleteTeam(ctx context.Context, teamID int) error

	GetTasks(ctx context.Context) ([]domain.Task, error)
	GetAllTasks(ctx context.Context) ([]domain.Task, error)
	GetTaskByID(ctx context.Context, taskID int) (domain.Task, error)
	CreateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	UpdateTask(ctx context.Context, t domain.Task) error
	DeleteTask(ctx context.Context, taskID int) error

	CurrentGameConfig(ctx context.Context) (domain.GameConfig, error)
	UpsertGameConfig(ctx context.Context, c domain.GameConfig) error
	GameRunning(ctx context.Context) (bool, error)
	SetGameRunning(ctx context.Context, running bool) error
	AvailableRound(ctx context.Context) int

	ConstructScoreboard(ctx context.Context) (map[string]interface{}, error)
}

// Server wires the tournament's HTTP and WebSocket surface.
type Server struct {
	store      Store
	cache      *cache.Client
	submission *submission.Handler
	monitor    *monitor.Monitor
	auth       *auth.Service
	bus        *events.Bus
	notifier   *notifier.Notifier
	gameHub    *wshub.Hub
	liveHub    *wshub.Hub
	rateLimit  *middleware.RateLimiter
	corsOrigin string
	metrics    Metrics
}

// New builds a Server. gameHub and liveHub must already be registered with
// bus via Pump by the caller (cmd/server) so reconnects replay the init
// snapshot even if the server started mid-round. metrics and notif may be
// nil: with metrics nil, submission outcomes go unrecorded and /metrics is
// not mounted; with notif nil, a stolen flag is published to bus directly
// instead of going through the bounded notification queue.
func New(store Store, c *cache.Client, sub *submission.Handler, mon *monitor.Monitor, authSvc *auth.Service, bus *events.Bus, notif *notifier.Notifier, gameHub, liveHub *wshub.Hub, rateLimit *middleware.RateLimiter, corsOrigin string, metrics Metrics) *Server {
	s := &Server{
		store: store, cache: c, submission: sub, monitor: mon, auth: authSvc,
		bus: bus, notifier: notif, gameHub: gameHub, liveHub: liveHub, rateLimit: rateLimit, corsOrigin: corsOrigin,
		metrics: metrics,
	}
	gameHub.SetInitFunc(s.initScoreboardEvent)
	return s
}

// Router builds the full mux, ready to be wrapped by a Start/http.Server.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.corsMiddleware)

	r.HandleFunc("/flags/", s.rateLimited(middleware.TeamAuth(s.store)(http.HandlerFunc(s.handleSubmit)))).Methods("PUT", "OPTIONS")

	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.HandleFunc("/auth/login", s.handleAdminLogin).Methods("POST", "OPTIONS")
	admin.HandleFunc("/auth/logout", s.handleAdminLogout).Methods("POST", "OPTIONS")
	admin.HandleFunc("/auth/status", s.handleAdminStatus).Methods("GET", "OPTIONS")

	adminAuthed := admin.NewRoute().Subrouter()
	adminAuthed.Use(func(next http.Handler) http.Handler { return middleware.AdminAuth(s.auth)(next) })

	adminAuthed.HandleFunc("/teams", s.handleListTeams).Methods("GET")
	adminAuthed.HandleFunc("/teams", s.handleCreateTeam).Methods("POST")
	adminAuthed.HandleFunc("/teams/{id:[0-9]+}", s.handleUpdateTeam).Methods("PUT")
	adminAuthed.HandleFunc("/teams/{id:[0-9]+}", s.handleDeleteTeam).Methods("DELETE")

	adminAuthed.HandleFunc("/tasks", s.handleListTasks).Methods("GET")
	adminAuthed.HandleFunc("/tasks", s.handleCreateTask).Methods("POST")
	adminAuthed.HandleFunc("/tasks/{id:[0-9]+}", s.handleUpdateTask).Methods("PUT")
	adminAuthed.HandleFunc("/tasks/{id:[0-9]+}", s.handleDeleteTask).Methods("DELETE")

	adminAuthed.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	adminAuthed.HandleFunc("/config", s.handlePutConfig).Methods("PUT")
	adminAuthed.HandleFunc("/game/pause", s.handleGamePause).Methods("POST")
	adminAuthed.HandleFunc("/game/resume", s.handleGameResume).Methods("POST")

	adminAuthed.HandleFunc("/monitor/health", s.handleMonitorHealth).Methods("GET")
	adminAuthed.HandleFunc("/monitor/current", s.handleMonitorCurrent).Methods("GET")
	adminAuthed.HandleFunc("/monitor/round/{round:[0-9]+}", s.handleMonitorRound).Methods("GET")
	adminAuthed.HandleFunc("/monitor/round/{round:[0-9]+}/team/{team_id:[0-9]+}/task/{task_id:[0-9]+}", s.handleMonitorTeamTask).Methods("GET")

	client := r.PathPrefix("/api/client").Subrouter()
	client.HandleFunc("/teams/", s.handleClientTeams).Methods("GET")
	client.HandleFunc("/teams/{id:[0-9]+}/", s.handleClientTeam).Methods("GET")
	client.HandleFunc("/tasks/", s.handleClientTasks).Methods("GET")
	client.HandleFunc("/config/", s.handleClientConfig).Methods("GET")
	client.HandleFunc("/attack_data/", s.handleClientAttackData).Methods("GET")

	r.Handle("/ws/game_events", s.gameHub)
	r.Handle("/ws/live_events", s.liveHub)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	return r
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := s.corsOrigin
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Team-Token")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimited(h http.Handler) func(http.ResponseWriter, *http.Request) {
	if s.rateLimit == nil {
		return h.ServeHTTP
	}
	return s.rateLimit.Middleware(h).ServeHTTP
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("api: encode response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Submission ---

type submitRequest struct {
	Flags []string `json:"flags"`
}

type submitResultItem struct {
	Msg  string `json:"msg"`
	Flag string `json:"flag"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	team, ok := middleware.TeamFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "missing team token")
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Flags) == 0 || len(req.Flags) > 100 {
		writeError(w, http.StatusBadRequest, "flags must be a non-empty array of at most 100 items")
		return
	}

	round := s.store.AvailableRound(r.Context())

	results := make([]submitResultItem, 0, len(req.Flags))
	for _, flagStr := range req.Flags {
		res := s.submission.Submit(r.Context(), team.ID, flagStr, round)
		results = append(results, submitResultItem{Msg: fmt.Sprintf("[%s] %s", flagStr, res.Message), Flag: flagStr})
		if s.metrics != nil {
			outcome := res.Message
			if res.SubmitOK {
				outcome = "accepted"
			}
			s.metrics.RecordSubmission(outcome)
		}
		if res.SubmitOK {
			s.announceTheft(r.Context(), res)
		}
	}
	writeJSON(w, http.StatusOK, results)
}

// announceTheft queues a flag_stolen notification for the live-events hub.
// It runs after scoring already succeeded; the three name lookups
// (attacker, victim, task) run inline before the HTTP response is written,
// and only the websocket fan-out itself is queued.
func (s *Server) announceTheft(ctx context.Context, res submission.Result) {
	attacker, err := s.store.GetTeamByID(ctx, res.AttackerID)
	if err != nil {
		slog.Error("api: resolve attacker for theft notification failed", "error", err)
		return
	}
	victim, err := s.store.GetTeamByID(ctx, res.VictimID)
	if err != nil {
		slog.Error("api: resolve victim for theft notification failed", "error", err)
		return
	}
	task, err := s.store.GetTaskByID(ctx, res.TaskID)
	if err != nil {
		slog.Error("api: resolve task for theft notification failed", "error", err)
		return
	}

	if s.notifier != nil {
		s.notifier.Notify(notifier.Notification{
			AttackerID: attacker.ID, AttackerName: attacker.Name,
			VictimID: victim.ID, VictimName: victim.Name,
			TaskID: task.ID, TaskName: task.Name,
			Points: res.AttackerDelta,
		})
		return
	}

	s.bus.Emit(events.TypeFlagStolen, "submission", fmt.Sprintf("task:%d", res.TaskID), map[string]interface{}{
		"attacker_id": attacker.ID, "attacker_name": attacker.Name,
		"victim_id": victim.ID, "victim_name": victim.Name,
		"task_id": task.ID, "task_name": task.Name,
		"attacker_delta": res.AttackerDelta, "victim_delta": res.VictimDelta,
	})
}

// --- Admin auth ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name: "session", Value: token, Path: "/", HttpOnly: true,
		MaxAge: 24 * 60 * 60, SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAdminLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie("session"); err == nil {
		s.auth.Logout(r.Context(), cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: "session", Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie("session")
	authenticated := err == nil && s.auth.Verify(r.Context(), cookie.Value)
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": authenticated})
}

// --- Admin team CRUD ---

func (s *Server) handleListTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := s.store.GetAllTeams(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list teams")
		return
	}
	writeJSON(w, http.StatusOK, teams)
}

type teamCreateRequest struct {
	Name   string `json:"name"`
	IP     string `json:"ip"`
	Active *bool  `json:"active"`
}

func (s *Server) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	var req teamCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	team, err := s.store.CreateTeam(r.Context(), domain.Team{Name: req.Name, IP: req.IP, Active: active})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create team")
		return
	}
	writeJSON(w, http.StatusCreated, team)
}

type teamUpdateRequest struct {
	Name   *string `json:"name"`
	IP     *string `json:"ip"`
	Active *bool   `json:"active"`
}

func (s *Server) handleUpdateTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := intPathVar(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid team id")
		return
	}
	existing, err := s.store.GetTeamByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "team not found")
		return
	}

	var req teamUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name != nil {
		existing.Name = *req.Name
	}
	if req.IP != nil {
		existing.IP = *req.IP
	}
	if req.Active != nil {
		existing.Active = *req.Active
	}

	if err := s.store.UpdateTeam(r.Context(), existing); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update team")
		return
	}
	writeJSON(w, http.StatusOK, existing)
}

func (s *Server) handleDeleteTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := intPathVar(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid team id")
		return
	}
	if err := s.store.DeleteTeam(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "team not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- Admin task CRUD ---

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.GetAllTasks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

type taskCreateRequest struct {
	Name           string `json:"name"`
	Checker        string `json:"checker"`
	EnvPath        string `json:"env_path"`
	Gets           int    `json:"gets"`
	Puts           int    `json:"puts"`
	Places         int    `json:"places"`
	CheckerTimeout int    `json:"checker_timeout"`
	CheckerType    string `json:"checker_type"`
	DefaultScore   int    `json:"default_score"`
	Active         *bool  `json:"active"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req taskCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	places := req.Places
	if places == 0 {
		places = 1
	}
	timeout := req.CheckerTimeout
	if timeout == 0 {
		timeout = 1
	}
	defaultScore := req.DefaultScore
	if defaultScore == 0 {
		defaultScore = 2500
	}
	checkerType := req.CheckerType
	if checkerType == "" {
		checkerType = "hackerdom"
	}

	task, err := s.store.CreateTask(r.Context(), domain.Task{
		Name: req.Name, Checker: req.Checker, EnvPath: req.EnvPath,
		Gets: req.Gets, Puts: req.Puts, Places: places,
		CheckerTimeout: timeout, CheckerType: checkerType,
		DefaultScore: defaultScore, Active: active,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

type taskUpdateRequest struct {
	Name           *string `json:"name"`
	Checker        *string `json:"checker"`
	EnvPath        *string `json:"env_path"`
	Gets           *int    `json:"gets"`
	Puts           *int    `json:"puts"`
	Places         *int    `json:"places"`
	CheckerTimeout *int    `json:"checker_timeout"`
	CheckerType    *string `json:"checker_type"`
	DefaultScore   *int    `json:"default_score"`
	Active         *bool   `json:"active"`
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := intPathVar(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	existing, err := s.store.GetTaskByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	var req taskUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name != nil {
		existing.Name = *req.Name
	}
	if req.Checker != nil {
		existing.Checker = *req.Checker
	}
	if req.EnvPath != nil {
		existing.EnvPath = *req.EnvPath
	}
	if req.Gets != nil {
		existing.Gets = *req.Gets
	}
	if req.Puts != nil {
		existing.Puts = *req.Puts
	}
	if req.Places != nil {
		existing.Places = *req.Places
	}
	if req.CheckerTimeout != nil {
		existing.CheckerTimeout = *req.CheckerTimeout
	}
	if req.CheckerType != nil {
		existing.CheckerType = *req.CheckerType
	}
	if req.DefaultScore != nil {
		existing.DefaultScore = *req.DefaultScore
	}
	if req.Active != nil {
		existing.Active = *req.Active
	}

	if err := s.store.UpdateTask(r.Context(), existing); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}
	writeJSON(w, http.StatusOK, existing)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := intPathVar(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	if err := s.store.DeleteTask(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- Admin config / game state ---

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.CurrentGameConfig(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load game config")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var cfg domain.GameConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.store.UpsertGameConfig(r.Context(), cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update game config")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleGamePause(w http.ResponseWriter, r *http.Request) {
	if err := s.store.SetGameRunning(r.Context(), false); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to pause game")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleGameResume(w http.ResponseWriter, r *http.Request) {
	if err := s.store.SetGameRunning(r.Context(), true); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resume game")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

// --- Admin monitor reads ---

func (s *Server) handleMonitorHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.monitor.GetGlobalHealth(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute health")
		return
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleMonitorCurrent(w http.ResponseWriter, r *http.Request) {
	health, err := s.monitor.GetGlobalHealth(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute health")
		return
	}
	if health.CurrentRound == 0 {
		writeError(w, http.StatusNotFound, "Game not started yet")
		return
	}
	status, err := s.monitor.GetRoundCompletionStatus(r.Context(), health.CurrentRound)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute round status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleMonitorRound(w http.ResponseWriter, r *http.Request) {
	round, ok := intPathVar(r, "round")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid round")
		return
	}
	status, err := s.monitor.GetRoundCompletionStatus(r.Context(), round)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute round status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleMonitorTeamTask(w http.ResponseWriter, r *http.Request) {
	round, ok1 := intPathVar(r, "round")
	teamID, ok2 := intPathVar(r, "team_id")
	taskID, ok3 := intPathVar(r, "task_id")
	if !ok1 || !ok2 || !ok3 {
		writeError(w, http.StatusBadRequest, "invalid path parameters")
		return
	}
	status, err := s.monitor.GetTeamTaskStatus(r.Context(), teamID, taskID, round)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute team/task status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// --- Public spectator endpoints ---

func (s *Server) handleClientTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := s.store.GetTeams(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list teams")
		return
	}
	writeJSON(w, http.StatusOK, teams)
}

func (s *Server) handleClientTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := intPathVar(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid team id")
		return
	}
	team, err := s.store.GetTeamByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "team not found")
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (s *Server) handleClientTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.GetTasks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleClientConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.CurrentGameConfig(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load game config")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleClientAttackData(w http.ResponseWriter, r *http.Request) {
	data, err := s.cache.GetAttackData(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load attack data")
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// --- WebSocket init snapshot ---

func (s *Server) initScoreboardEvent() (*events.CloudEvent, error) {
	board, err := s.store.ConstructScoreboard(context.Background())
	if err != nil {
		return nil, err
	}
	return events.NewCloudEvent("init_scoreboard", "adarena.api", "scoreboard", board), nil
}

func intPathVar(r *http.Request, name string) (int, bool) {
	vars := mux.Vars(r)
	raw, ok := vars[name]
	if !ok {
		return 0, false
	}
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
		return 0, false
	}
	return n, true
}

// Start runs the HTTP server on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
