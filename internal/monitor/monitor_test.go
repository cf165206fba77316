package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adarena/backend/internal/coordinator"
	"github.com/adarena/backend/internal/domain"
)

type fakeStore struct {
	teams       []domain.Team
	tasks       []domain.Task
	realRound   int
	gameRunning bool
}

func (f *fakeStore) GetTeams(ctx context.Context) ([]domain.Team, error) { return f.teams, nil }
func (f *fakeStore) GetTasks(ctx context.Context) ([]domain.Task, error) { return f.tasks, nil }
func (f *fakeStore) GetRealRound(ctx context.Context) (int, error)      { return f.realRound, nil }
func (f *fakeStore) GameRunning(ctx context.Context) (bool, error)      { return f.gameRunning, nil }

type fakeRedis struct{}

func (fakeRedis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}
func (fakeRedis) Get(ctx context.Context, key string) ([]byte, error) { return nil, nil }
func (fakeRedis) Publish(ctx context.Context, channel string, message []byte) error {
	return nil
}
func (fakeRedis) Subscribe(ctx context.Context, channel string, handler func([]byte)) (func(), error) {
	return func() {}, nil
}

type fakePoller struct{}

func (fakePoller) CheckStatus(ctx context.Context, teamID, taskID int) (domain.TaskStatus, error) {
	return domain.StatusNotChecked, nil
}

type fakeStream struct {
	hashes map[string]map[string]string
	events []map[string]string
}

func (s *fakeStream) HSet(ctx context.Context, key string, values map[string]string) error {
	return nil
}
func (s *fakeStream) Expire(ctx context.Context, key string, ttl time.Duration) error { return nil }
func (s *fakeStream) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.hashes[key], nil
}
func (s *fakeStream) XAdd(ctx context.Context, stream string, maxLen int64, values map[string]string) error {
	return nil
}
func (s *fakeStream) XRange(ctx context.Context, stream string) ([]map[string]string, error) {
	return s.events, nil
}

func newTestCoordinator(events []map[string]string) *coordinator.Coordinator {
	return coordinator.New(fakeRedis{}, &fakeStream{events: events}, fakePoller{})
}

func TestGetGlobalHealth_WaitingBeforeRoundOne(t *testing.T) {
	store := &fakeStore{realRound: 0, gameRunning: false}
	m := New(store, newTestCoordinator(nil), nil)

	health, err := m.GetGlobalHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "WAITING", health.Health)
	assert.Equal(t, 0, health.CurrentRound)
}

func TestGetGlobalHealth_HealthyWithNoErrors(t *testing.T) {
	store := &fakeStore{
		realRound:   3,
		gameRunning: true,
		teams:       []domain.Team{{ID: 1}, {ID: 2}},
		tasks:       []domain.Task{{ID: 1, Puts: 1, Gets: 1}},
	}
	events := []map[string]string{
		{"action": "CHECK", "status": "UP", "team_id": "1", "task_id": "1"},
		{"action": "CHECK", "status": "UP", "team_id": "2", "task_id": "1"},
	}
	m := New(store, newTestCoordinator(events), nil)

	health, err := m.GetGlobalHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "HEALTHY", health.Health)
	assert.Equal(t, 3, health.CurrentRound)
}

func TestGetGlobalHealth_CriticalWithHighErrorRate(t *testing.T) {
	store := &fakeStore{
		realRound:   3,
		gameRunning: true,
		teams:       []domain.Team{{ID: 1}},
		tasks:       []domain.Task{{ID: 1}},
	}
	events := []map[string]string{
		{"action": "CHECK", "status": "DOWN", "team_id": "1", "task_id": "1"},
	}
	m := New(store, newTestCoordinator(events), nil)

	health, err := m.GetGlobalHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "CRITICAL", health.Health)
	assert.Equal(t, 1, health.ErrorCount)
}

type fakeMetrics struct {
	round       int
	progress    float64
	activeTeams int
	activeTasks int
	running     bool
	calls       int
}

func (f *fakeMetrics) SetRoundState(round int, progress float64, activeTeams, activeTasks int, running bool) {
	f.round, f.progress, f.activeTeams, f.activeTasks, f.running = round, progress, activeTeams, activeTasks, running
	f.calls++
}

func TestPublishMetrics_NilMetricsIsNoop(t *testing.T) {
	store := &fakeStore{realRound: 0}
	m := New(store, newTestCoordinator(nil), nil)
	m.publishMetrics(context.Background(), 0)
}

func TestPublishMetrics_PublishesGaugesEachTick(t *testing.T) {
	store := &fakeStore{
		realRound:   2,
		gameRunning: true,
		teams:       []domain.Team{{ID: 1}, {ID: 2}},
		tasks:       []domain.Task{{ID: 1}},
	}
	metrics := &fakeMetrics{}
	m := New(store, newTestCoordinator(nil), metrics)

	m.publishMetrics(context.Background(), 2)

	assert.Equal(t, 1, metrics.calls)
	assert.Equal(t, 2, metrics.round)
	assert.Equal(t, 2, metrics.activeTeams)
	assert.Equal(t, 1, metrics.activeTasks)
	assert.True(t, metrics.running)
}

func TestGetRoundCompletionStatus_ComputesExpectedTotals(t *testing.T) {
	store := &fakeStore{
		teams: []domain.Team{{ID: 1}, {ID: 2}},
		tasks: []domain.Task{{ID: 1, Puts: 2, Gets: 1}},
	}
	events := []map[string]string{
		{"action": "CHECK", "status": "UP"},
		{"action": "CHECK", "status": "UP"},
	}
	m := New(store, newTestCoordinator(events), nil)

	status, err := m.GetRoundCompletionStatus(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2+2*2+1*2, status.ExpectedActions)
	assert.Equal(t, 2, status.CompletedActions)
	assert.False(t, status.Completed)
}
