package monitoring

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordAction(t *testing.T) {
	m := NewMetrics()

	m.RecordAction("check", "up", 0.12)
	m.RecordAction("check", "up", 0.08)
	m.RecordAction("put", "check_failed", 1.5)

	require.Equal(t, float64(2), testutil.ToFloat64(m.ActionTotal.WithLabelValues("check", "up")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.ActionTotal.WithLabelValues("put", "check_failed")))
}

func TestMetrics_RecordSubmission(t *testing.T) {
	m := NewMetrics()

	m.RecordSubmission("accepted")
	m.RecordSubmission("accepted")
	m.RecordSubmission("Flag is too old")

	require.Equal(t, float64(2), testutil.ToFloat64(m.SubmissionTotal.WithLabelValues("accepted")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.SubmissionTotal.WithLabelValues("Flag is too old")))
	require.Equal(t, float64(2), testutil.ToFloat64(m.FlagStolenTotal))
}

func TestMetrics_SetRoundState(t *testing.T) {
	m := NewMetrics()

	m.SetRoundState(7, 0.82, 10, 5, true)

	require.Equal(t, float64(7), testutil.ToFloat64(m.CurrentRound))
	require.Equal(t, 0.82, testutil.ToFloat64(m.RoundProgress))
	require.Equal(t, float64(10), testutil.ToFloat64(m.ActiveTeams))
	require.Equal(t, float64(5), testutil.ToFloat64(m.ActiveTasks))
	require.Equal(t, float64(1), testutil.ToFloat64(m.GameRunning))

	m.SetRoundState(7, 0.9, 10, 5, false)
	require.Equal(t, float64(0), testutil.ToFloat64(m.GameRunning))
}
