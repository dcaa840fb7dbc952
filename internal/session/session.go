// Package session holds the authentication state shared by all tool calls:
// at most one bearer token, set by login and cleared on a 401.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mark3labs/mcp-go/client/transport"

	"github.com/bobmcallan/dcim-mcp/internal/common"
)

// tokenRemover is implemented by stores that can forget a persisted token.
type tokenRemover interface {
	RemoveToken(ctx context.Context) error
}

// Session owns the optional bearer token. It is safe for concurrent use.
type Session struct {
	mu      sync.RWMutex
	token   string
	expires time.Time

	store  transport.TokenStore
	logger *common.Logger
}

// New creates an empty session. store may be nil, in which case the token
// lives in memory only.
func New(store transport.TokenStore, logger *common.Logger) *Session {
	return &Session{store: store, logger: logger}
}

// Restore loads a previously persisted token. A missing or expired token
// leaves the session unauthenticated and is not an error.
func (s *Session) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	tok, err := s.store.GetToken(ctx)
	if errors.Is(err, transport.ErrNoToken) {
		return nil
	}
	if err != nil {
		return err
	}
	if tok.AccessToken == "" {
		return nil
	}
	if !tok.ExpiresAt.IsZero() && time.Now().After(tok.ExpiresAt) {
		s.logger.Info().
			Str("expired_at", tok.ExpiresAt.Format(time.RFC3339)).
			Msg("Persisted token has expired, login required")
		return nil
	}

	s.mu.Lock()
	s.token = tok.AccessToken
	s.expires = tok.ExpiresAt
	s.mu.Unlock()

	s.logger.Info().Msg("Restored persisted access token")
	return nil
}

// Token returns the held token and whether one is present.
func (s *Session) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// Authenticated reports whether a token is held.
func (s *Session) Authenticated() bool {
	_, ok := s.Token()
	return ok
}

// ExpiresAt returns the exp claim of the held token, or the zero time when
// unknown. It is informational only; expiry is enforced by the upstream API.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expires
}

// SetToken replaces the held token and persists it when a store is configured.
// The in-memory token is set even if persisting fails.
func (s *Session) SetToken(ctx context.Context, token string) error {
	expires := tokenExpiry(token)

	s.mu.Lock()
	s.token = token
	s.expires = expires
	s.mu.Unlock()

	if s.store == nil {
		return nil
	}
	return s.store.SaveToken(ctx, &transport.Token{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expires,
	})
}

// Clear drops the held token regardless of its value and reports whether one was held.
func (s *Session) Clear(ctx context.Context) bool {
	s.mu.Lock()
	held := s.token != ""
	s.token = ""
	s.expires = time.Time{}
	s.mu.Unlock()

	s.forget(ctx)
	return held
}

// Invalidate clears the held token only if it is still the one that was
// rejected. A 401 for a stale token must not erase a newer login.
func (s *Session) Invalidate(ctx context.Context, rejected string) bool {
	if rejected == "" {
		return false
	}

	s.mu.Lock()
	if s.token != rejected {
		s.mu.Unlock()
		return false
	}
	s.token = ""
	s.expires = time.Time{}
	s.mu.Unlock()

	s.forget(ctx)
	return true
}

func (s *Session) forget(ctx context.Context) {
	r, ok := s.store.(tokenRemover)
	if !ok {
		return
	}
	if err := r.RemoveToken(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to remove persisted token")
	}
}

// tokenExpiry reads the exp claim without verifying the signature; the
// upstream API is the only party able to verify it.
func tokenExpiry(raw string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
