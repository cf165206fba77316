package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adarena/backend/internal/checker"
	"github.com/adarena/backend/internal/domain"
)

type fakeStore struct {
	team domain.Team
	task domain.Task

	checkResult *domain.CheckerVerdict
	putResult   *domain.CheckerVerdict
	getResult   *domain.CheckerVerdict
	skipped     *skipCall
	failed      *failCall

	checkStatus domain.TaskStatus
	putStatus   domain.TaskStatus

	insertedFlag domain.Flag
	flagToReturn domain.Flag
	flagErr      error
}

type skipCall struct {
	action domain.Action
	status domain.TaskStatus
	msg    string
}

type failCall struct {
	action domain.Action
	err    error
}

func (f *fakeStore) LoadTeamAndTask(ctx context.Context, teamID, taskID int) (domain.Team, domain.Task, error) {
	return f.team, f.task, nil
}
func (f *fakeStore) UpdateCheckResult(ctx context.Context, teamID, taskID int, v domain.CheckerVerdict) error {
	f.checkResult = &v
	return nil
}
func (f *fakeStore) UpdatePutResult(ctx context.Context, teamID, taskID int, v domain.CheckerVerdict) error {
	f.putResult = &v
	return nil
}
func (f *fakeStore) UpdateGetResult(ctx context.Context, teamID, taskID int, v domain.CheckerVerdict) error {
	f.getResult = &v
	return nil
}
func (f *fakeStore) UpdateSkipped(ctx context.Context, teamID, taskID int, action domain.Action, status domain.TaskStatus, msg string) error {
	f.skipped = &skipCall{action, status, msg}
	return nil
}
func (f *fakeStore) UpdateActionError(ctx context.Context, teamID, taskID int, action domain.Action, err error) error {
	f.failed = &failCall{action, err}
	return nil
}
func (f *fakeStore) CheckPutStatus(ctx context.Context, teamID, taskID int) (domain.TaskStatus, domain.TaskStatus, error) {
	return f.checkStatus, f.putStatus, nil
}
func (f *fakeStore) InsertFlag(ctx context.Context, flag domain.Flag) (domain.Flag, error) {
	flag.ID = 42
	f.insertedFlag = flag
	return flag, nil
}
func (f *fakeStore) LoadFlagWithTeamTask(ctx context.Context, flagID int) (domain.Flag, domain.Team, domain.Task, error) {
	if f.flagErr != nil {
		return domain.Flag{}, domain.Team{}, domain.Task{}, f.flagErr
	}
	return f.flagToReturn, f.team, f.task, nil
}
func (f *fakeStore) CurrentGameConfig(ctx context.Context) (domain.GameConfig, error) {
	return domain.GameConfig{FlagLifetime: 5, RoundTime: 60}, nil
}

type fakeRunner struct {
	verdict domain.CheckerVerdict
}

func (r *fakeRunner) Run(ctx context.Context, action domain.Action, team checker.Team, task checker.TaskSpec, flag *checker.FlagArgs) (domain.CheckerVerdict, error) {
	v := r.verdict
	v.Action = action
	return v, nil
}

func newHandlers(store *fakeStore, runner *fakeRunner) *Handlers {
	return &Handlers{
		Store:       store,
		Checkers:    runner,
		CheckWait:   50 * time.Millisecond,
		MaxRetries:  2,
		InitBackoff: 10 * time.Millisecond,
	}
}

func TestHandleCheck_UpdatesAndRecordsWithoutCoordinator(t *testing.T) {
	store := &fakeStore{team: domain.Team{ID: 1, IP: "10.0.0.1"}, task: domain.Task{ID: 2, Places: 5}}
	runner := &fakeRunner{verdict: domain.CheckerVerdict{Status: domain.StatusUp, PublicMessage: "ok"}}
	h := newHandlers(store, runner)

	// Coord is nil here; HandleCheck skips the CHECK-complete signal and
	// the action-stream record, and still writes the verdict to the store.
	require.NoError(t, h.HandleCheck(context.Background(), 1, 2, 3))
	require.NotNil(t, store.checkResult)
	assert.Equal(t, domain.StatusUp, store.checkResult.Status)
}

func TestIsFailing(t *testing.T) {
	assert.True(t, isFailing(domain.StatusCheckFailed))
	assert.True(t, isFailing(domain.StatusDown))
	assert.False(t, isFailing(domain.StatusUp))
	assert.False(t, isFailing(domain.StatusMumble))
}

func TestRandHelpers(t *testing.T) {
	for i := 0; i < 20; i++ {
		n, err := randInt(5)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 1)
		assert.LessOrEqual(t, n, 5)
	}

	flag, err := randomFlag()
	require.NoError(t, err)
	assert.Contains(t, flag, "FLAG")
	assert.Len(t, flag, len("FLAG")+32)

	hex, err := randomHex(16)
	require.NoError(t, err)
	assert.Len(t, hex, 32)
}

func TestSkipAndFail_ErrorPropagation(t *testing.T) {
	store := &fakeStore{}
	h := &Handlers{Store: store}

	err := h.fail(context.Background(), 1, 2, 3, domain.ActionPut, errors.New("boom"))
	assert.EqualError(t, err, "boom")
	require.NotNil(t, store.failed)
	assert.Equal(t, domain.ActionPut, store.failed.action)
}

type recordedMetric struct {
	action, status string
	duration        time.Duration
}

type fakeMetrics struct {
	recorded []recordedMetric
}

func (m *fakeMetrics) RecordAction(action, status string, durationSeconds float64) {
	m.recorded = append(m.recorded, recordedMetric{action, status, time.Duration(durationSeconds * float64(time.Second))})
}

func TestRecordTimed_ReportsToMetrics(t *testing.T) {
	store := &fakeStore{}
	metrics := &fakeMetrics{}
	h := &Handlers{Store: store, Metrics: metrics}

	verdict := domain.CheckerVerdict{Status: domain.StatusUp, Action: domain.ActionCheck}
	h.recordTimed(context.Background(), domain.ActionCheck, 1, 2, 3, verdict, "", 150*time.Millisecond)

	require.Len(t, metrics.recorded, 1)
	assert.Equal(t, "CHECK", metrics.recorded[0].action)
	assert.Equal(t, "UP", metrics.recorded[0].status)
	assert.Equal(t, 150*time.Millisecond, metrics.recorded[0].duration)
}

func TestSkipAndFail_RecordMetricsWithZeroDuration(t *testing.T) {
	store := &fakeStore{}
	metrics := &fakeMetrics{}
	h := &Handlers{Store: store, Metrics: metrics}

	require.NoError(t, h.skip(context.Background(), 1, 2, 3, domain.ActionGet, domain.StatusDown, "Skipped: CHECK failed"))
	require.Len(t, metrics.recorded, 1)
	assert.Equal(t, time.Duration(0), metrics.recorded[0].duration)
}
