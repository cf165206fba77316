package submission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adarena/backend/internal/domain"
)

type fakeStore struct {
	cfg              domain.GameConfig
	teamTaskStatus   domain.TaskStatus
	teamTaskErr      error
	stolenCount      int
	stolenErr        error
	attackerDelta    float64
	victimDelta      float64
	recalculateErr   error
	recalculateCalls int
}

func (f *fakeStore) CurrentGameConfig(ctx context.Context) (domain.GameConfig, error) {
	return f.cfg, nil
}

func (f *fakeStore) TeamTaskStatus(ctx context.Context, teamID, taskID int) (domain.TaskStatus, error) {
	return f.teamTaskStatus, f.teamTaskErr
}

func (f *fakeStore) CountStolen(ctx context.Context, flagID, attackerID int) (int, error) {
	return f.stolenCount, f.stolenErr
}

func (f *fakeStore) RecalculateRating(ctx context.Context, attackerID, victimID, taskID, flagID int) (float64, float64, error) {
	f.recalculateCalls++
	return f.attackerDelta, f.victimDelta, f.recalculateErr
}

func TestSubmit_GameNotAvailable(t *testing.T) {
	h := &Handler{Store: &fakeStore{}}
	result := h.Submit(context.Background(), 1, "FLAGxxx", -1)
	assert.False(t, result.SubmitOK)
	assert.Equal(t, string(ReasonGameNotAvailable), result.Message)
}

func TestSubmit_GameFinished(t *testing.T) {
	h := &Handler{Store: &fakeStore{cfg: domain.GameConfig{MaxRound: 5}}}
	result := h.Submit(context.Background(), 1, "FLAGxxx", 6)
	assert.False(t, result.SubmitOK)
	assert.Equal(t, string(ReasonGameFinished), result.Message)
}

func TestReject_ErrorString(t *testing.T) {
	err := reject(ReasonAlreadyStolen)
	assert.EqualError(t, err, "Flag already stolen")
}
