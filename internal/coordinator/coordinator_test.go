package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultCheckWaitTimeout(t *testing.T) {
	assert.Equal(t, 60*time.Second, DefaultCheckWaitTimeout(100*time.Second))
}

func TestDefaultRetrySchedule(t *testing.T) {
	cases := []struct {
		roundTime   time.Duration
		maxRetries  int
		minBackoff  time.Duration
		maxBackoff  time.Duration
	}{
		{30 * time.Second, 2, 500 * time.Millisecond, 500 * time.Millisecond},
		{90 * time.Second, 3, 1350 * time.Millisecond, 1350 * time.Millisecond},
		{200 * time.Second, 5, 3 * time.Second, 3 * time.Second},
		{600 * time.Second, 7, 5 * time.Second, 5 * time.Second},
	}
	for _, c := range cases {
		retries, backoff := DefaultRetrySchedule(c.roundTime)
		assert.Equal(t, c.maxRetries, retries, "round_time=%s", c.roundTime)
		assert.GreaterOrEqual(t, backoff, c.minBackoff, "round_time=%s", c.roundTime)
		assert.LessOrEqual(t, backoff, c.maxBackoff, "round_time=%s", c.roundTime)
	}
}

func TestDefaultRetrySchedule_BackoffClampedToFiveSeconds(t *testing.T) {
	_, backoff := DefaultRetrySchedule(1000 * time.Second)
	assert.Equal(t, 5*time.Second, backoff)
}

func TestDefaultRetrySchedule_BackoffClampedToHalfSecond(t *testing.T) {
	_, backoff := DefaultRetrySchedule(1 * time.Second)
	assert.Equal(t, 500*time.Millisecond, backoff)
}
