package store

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adarena/backend/internal/domain"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, nil), mock
}

func TestGameRunning(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT game_running FROM gameconfig WHERE id = $1`)).
		WithArgs(gameConfigID).
		WillReturnRows(sqlmock.NewRows([]string{"game_running"}).AddRow(true))

	running, err := s.GameRunning(context.Background())
	require.NoError(t, err)
	assert.True(t, running)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRealRound_DBFallback(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT real_round FROM gameconfig WHERE id = $1`)).
		WithArgs(gameConfigID).
		WillReturnRows(sqlmock.NewRows([]string{"real_round"}).AddRow(7))

	round, err := s.GetRealRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, round)
}

func TestAvailableRound_NoCacheMeansUnavailable(t *testing.T) {
	s, _ := newMockStore(t)
	assert.Equal(t, -1, s.AvailableRound(context.Background()))
}

func TestCheckStatus_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT check_status FROM teamtasks WHERE team_id = $1 AND task_id = $2`)).
		WithArgs(1, 2).
		WillReturnRows(sqlmock.NewRows([]string{"check_status"}))

	_, err := s.CheckStatus(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCountStolen(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM stolenflags WHERE flag_id = $1 AND attacker_id = $2`)).
		WithArgs(5, 9).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	count, err := s.CountStolen(context.Background(), 5, 9)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRecalculateRating(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT attacker_delta, victim_delta FROM recalculate_rating($1, $2, $3, $4)`)).
		WithArgs(1, 2, 3, 4).
		WillReturnRows(sqlmock.NewRows([]string{"attacker_delta", "victim_delta"}).AddRow(12.5, -12.5))

	attackerDelta, victimDelta, err := s.RecalculateRating(context.Background(), 1, 2, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, 12.5, attackerDelta)
	assert.Equal(t, -12.5, victimDelta)
}

func TestDeleteTeam_SoftDelete(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE teams SET active = false WHERE id = $1`)).
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.DeleteTeam(context.Background(), 3)
	require.NoError(t, err)
}

func TestWipeTournamentData(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(
		`TRUNCATE teamtaskslog, stolenflags, flags, teamtasks, tasks, teams, schedulehistory, gameconfig RESTART IDENTITY CASCADE`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.WipeTournamentData(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.EnsureSchema(context.Background())
	require.NoError(t, err)
}

func TestDeleteTeam_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE teams SET active = false WHERE id = $1`)).
		WithArgs(99).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.DeleteTeam(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGenerateToken_Length(t *testing.T) {
	token, err := GenerateToken()
	require.NoError(t, err)
	assert.Len(t, token, 16)
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 12.35, roundTo(12.345, 2))
	assert.Equal(t, 0.123, roundTo(0.1234, 3))
}

func TestAggregateStatusCaseMatchesDomain(t *testing.T) {
	cases := []struct {
		check, put, get domain.TaskStatus
	}{
		{domain.StatusCheckFailed, domain.StatusUp, domain.StatusUp},
		{domain.StatusDown, domain.StatusUp, domain.StatusUp},
		{domain.StatusNotChecked, domain.StatusNotChecked, domain.StatusNotChecked},
		{domain.StatusUp, domain.StatusCheckFailed, domain.StatusUp},
		{domain.StatusUp, domain.StatusDown, domain.StatusUp},
		{domain.StatusUp, domain.StatusUp, domain.StatusCheckFailed},
		{domain.StatusUp, domain.StatusUp, domain.StatusDown},
		{domain.StatusUp, domain.StatusUp, domain.StatusUp},
	}
	for _, c := range cases {
		wantStatus, wantMsg := domain.AggregateStatus(c.check, c.put, c.get)
		gotStatus, gotMsg := sqlCaseReference(c.check, c.put, c.get)
		assert.Equal(t, wantStatus, gotStatus)
		assert.Equal(t, wantMsg, gotMsg)
	}
}

// sqlCaseReference is a literal Go transcription of statusCaseSQL/messageCaseSQL,
// asserting the two representations of the derivation never drift apart.
func sqlCaseReference(check, put, get domain.TaskStatus) (domain.TaskStatus, string) {
	switch {
	case check == domain.StatusCheckFailed:
		return domain.StatusCheckFailed, "Service check failed"
	case check == domain.StatusDown:
		return domain.StatusDown, "Service is down"
	case check == domain.StatusNotChecked:
		return domain.StatusNotChecked, "Not checked yet"
	case put == domain.StatusCheckFailed:
		return domain.StatusCorrupt, "Service corrupted (PUT failed)"
	case put == domain.StatusDown:
		return domain.StatusCorrupt, "Service corrupted (PUT unreachable)"
	case get == domain.StatusCheckFailed:
		return domain.StatusMumble, "Service mumble (GET failed)"
	case get == domain.StatusDown:
		return domain.StatusMumble, "Service mumble (GET unreachable)"
	default:
		return domain.StatusUp, "Service operational"
	}
}
