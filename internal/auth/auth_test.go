package auth

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/adarena/backend/internal/cache"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := cache.New(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	hash, err := HashPassword("correct-horse")
	require.NoError(t, err)

	return New(client, Credentials{Username: "admin", PasswordHash: hash})
}

func TestLogin_WrongPassword(t *testing.T) {
	s := newTestService(t)
	_, err := s.Login(context.Background(), "admin", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_WrongUsername(t *testing.T) {
	s := newTestService(t)
	_, err := s.Login(context.Background(), "nobody", "correct-horse")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginVerifyLogout(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	token, err := s.Login(ctx, "admin", "correct-horse")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	require.True(t, s.Verify(ctx, token))

	require.NoError(t, s.Logout(ctx, token))
	require.False(t, s.Verify(ctx, token))
}

func TestVerify_EmptySession(t *testing.T) {
	s := newTestService(t)
	require.False(t, s.Verify(context.Background(), ""))
}
