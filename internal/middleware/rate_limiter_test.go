package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adarena/backend/internal/domain"
)

func TestRateLimiter_Allow_WithinLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 5, BurstSize: 5})
	for i := 0; i < 5; i++ {
		require.True(t, rl.Allow("team-1"))
	}
}

func TestRateLimiter_Allow_ExceedsBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 2, BurstSize: 3})
	require.True(t, rl.Allow("team-1"))
	require.True(t, rl.Allow("team-1"))
	require.True(t, rl.Allow("team-1"))
	require.False(t, rl.Allow("team-1"))
}

func TestRateLimiter_Allow_KeysIndependent(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 1, BurstSize: 1})
	require.True(t, rl.Allow("team-1"))
	require.False(t, rl.Allow("team-1"))
	require.True(t, rl.Allow("team-2"))
}

func TestRateLimiter_Middleware_RejectsOverLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 1, BurstSize: 1})
	h := rl.Middleware(okHandler())

	withTeam := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/submit", nil)
		ctx := context.WithValue(req.Context(), teamContextKey, domain.Team{Token: "abc"})
		return req.WithContext(ctx)
	}

	rec1 := httptest.NewRecorder()
	h.ServeHTTP(rec1, withTeam())
	require.Equal(t, http.StatusOK, rec1.Code)

	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, withTeam())
	require.Equal(t, http.StatusTooManyRequests, rec2.Code)
	require.Equal(t, "60", rec2.Header().Get("Retry-After"))
}

func TestRateLimiter_Middleware_AnonymousKeyWhenNoTeam(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 100, BurstSize: 100})
	h := rl.Middleware(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/submit", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
