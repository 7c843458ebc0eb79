// Package auth holds the session credential and inspects token expiry so
// the transport never dials with a token the server will reject anyway.
package auth

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Store keeps the current access token. It satisfies the credential
// source interfaces of both the transport manager and the API client.
type Store struct {
	mu    sync.RWMutex
	token string
}

// NewStore creates a store, optionally seeded with a token.
func NewStore(token string) *Store {
	return &Store{token: token}
}

// SetToken replaces the stored token.
func (s *Store) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Clear drops the stored token.
func (s *Store) Clear() {
	s.SetToken("")
}

// Token returns the stored token. ok is false when no token is stored or
// the stored JWT has already expired.
func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	tok := s.token
	s.mu.RUnlock()

	if tok == "" || Expired(tok) {
		return "", false
	}
	return tok, true
}

// Expired reports whether a JWT's exp claim is in the past. Tokens that
// are not JWTs or carry no exp claim pass through; the server is the
// authority on those.
func Expired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Now().After(exp.Time)
}
