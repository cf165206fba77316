// Package auth implements admin session-cookie login. A session token is a
// random 32-byte hex string stored in Redis as session:<token> -> username
// with a 24h TTL, matching lib/utils/auth.py's create_session/verify_session
// exactly. Unlike the original, the configured admin password is compared
// against a bcrypt hash rather than in plaintext.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/adarena/backend/internal/cache"
)

const sessionTTL = 24 * time.Hour

// ErrInvalidCredentials is returned by Login on a username/password mismatch.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Credentials is the configured admin login, loaded once at startup.
type Credentials struct {
	Username     string
	PasswordHash string // bcrypt hash
}

// HashPassword bcrypt-hashes a plaintext password for storage in config.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

// Service issues and verifies admin sessions.
type Service struct {
	cache *cache.Client
	creds Credentials
}

// New builds a Service over the cache client and configured credentials.
func New(c *cache.Client, creds Credentials) *Service {
	return &Service{cache: c, creds: creds}
}

// Login checks username/password against the configured admin credentials
// and, on success, creates a session token good for 24h.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	if username != s.creds.Username {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.creds.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.createSession(ctx, username)
}

func (s *Service) createSession(ctx context.Context, username string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate session token: %w", err)
	}
	token := hex.EncodeToString(buf)

	if err := s.cache.Set(ctx, cache.Keys.Session(token), []byte(username), sessionTTL); err != nil {
		return "", fmt.Errorf("auth: store session: %w", err)
	}
	return token, nil
}

// Verify reports whether session is a live admin session.
func (s *Service) Verify(ctx context.Context, session string) bool {
	if session == "" {
		return false
	}
	username, err := s.cache.Get(ctx, cache.Keys.Session(session))
	if err != nil {
		return false
	}
	return string(username) == s.creds.Username
}

// Logout invalidates a session token.
func (s *Service) Logout(ctx context.Context, session string) error {
	if session == "" {
		return nil
	}
	return s.cache.Del(ctx, cache.Keys.Session(session))
}
