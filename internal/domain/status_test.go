package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregateStatus(t *testing.T) {
	cases := []struct {
		name         string
		check        TaskStatus
		put          TaskStatus
		get          TaskStatus
		wantStatus   TaskStatus
		wantContains string
	}{
		{"check_failed_wins", StatusCheckFailed, StatusUp, StatusUp, StatusCheckFailed, "check failed"},
		{"check_down_wins", StatusDown, StatusUp, StatusUp, StatusDown, "is down"},
		{"not_checked", StatusNotChecked, StatusNotChecked, StatusNotChecked, StatusNotChecked, "Not checked"},
		{"put_failed_is_corrupt", StatusUp, StatusCheckFailed, StatusNotChecked, StatusCorrupt, "PUT failed"},
		{"put_down_is_corrupt", StatusUp, StatusDown, StatusNotChecked, StatusCorrupt, "PUT unreachable"},
		{"get_failed_is_mumble", StatusUp, StatusUp, StatusCheckFailed, StatusMumble, "GET failed"},
		{"get_down_is_mumble", StatusUp, StatusUp, StatusDown, StatusMumble, "GET unreachable"},
		{"all_up_is_operational", StatusUp, StatusUp, StatusUp, StatusUp, "operational"},
		{"check_failed_precedes_put_failed", StatusCheckFailed, StatusCheckFailed, StatusUp, StatusCheckFailed, "check failed"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, msg := AggregateStatus(tc.check, tc.put, tc.get)
			assert.Equal(t, tc.wantStatus, status)
			assert.Contains(t, msg, tc.wantContains)
		})
	}
}

func TestStatusFromExitCode(t *testing.T) {
	assert.Equal(t, StatusUp, StatusFromExitCode(101))
	assert.Equal(t, StatusDown, StatusFromExitCode(104))
	assert.Equal(t, StatusCheckFailed, StatusFromExitCode(110))
	assert.Equal(t, StatusCheckFailed, StatusFromExitCode(1))
	assert.Equal(t, StatusCheckFailed, StatusFromExitCode(255))
}

func TestTeamTaskSLA(t *testing.T) {
	assert.Equal(t, 0.0, TeamTask{}.SLA())
	tt := TeamTask{Checks: 4, ChecksPassed: 3}
	assert.Equal(t, 75.0, tt.SLA())
}

func TestTaskCheckerTags(t *testing.T) {
	task := Task{CheckerType: "hackerdom_nfr"}
	assert.False(t, task.CheckerReturnsFlagID())
	assert.False(t, task.CheckerProvidesPublicFlagData())

	task2 := Task{CheckerType: "hackerdom_pfr"}
	assert.True(t, task2.CheckerReturnsFlagID())
	assert.True(t, task2.CheckerProvidesPublicFlagData())
}
