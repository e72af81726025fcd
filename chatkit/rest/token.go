package rest

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenStore holds the access/refresh token pair for the session. The
// backend issues and refreshes tokens; this only stores them and can
// inspect expiry without verifying signatures.
type TokenStore struct {
	mu      sync.RWMutex
	access  string
	refresh string
}

// NewTokenStore returns an empty store.
func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

// Token returns the current access token, empty when unset.
func (s *TokenStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

// SetToken stores the access token.
func (s *TokenStore) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = token
}

// RefreshToken returns the current refresh token, empty when unset.
func (s *TokenStore) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}

// SetRefreshToken stores the refresh token.
func (s *TokenStore) SetRefreshToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = token
}

// Clear drops both tokens.
func (s *TokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = ""
	s.refresh = ""
}

// Expired reports whether the stored access token is missing or past
// its expiry claim. Tokens that can't be parsed or carry no expiry are
// not reported as expired; the backend is the authority either way.
func (s *TokenStore) Expired() bool {
	token := s.Token()
	if token == "" {
		return true
	}
	exp, err := ExpiresAt(token)
	if err != nil {
		return false
	}
	return time.Now().After(exp)
}

// ExpiresAt returns the expiry claim of a JWT without verifying its
// signature.
func ExpiresAt(token string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("token has no expiry claim")
	}
	return claims.ExpiresAt.Time, nil
}
