package client

import (
	"sync"

	"quill/internal/models"
)

// Session holds the authenticated principal and its bearer token. The principal is
// loaded lazily from /auth/me on first use and dropped on logout or on any 401.
type Session struct {
	mu        sync.RWMutex
	token     string
	principal *models.User
}

// Token returns the bearer token, or "" when signed out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Authenticated reports whether a token is held.
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// Principal returns the cached user, if it has been loaded.
func (s *Session) Principal() (*models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.principal, s.principal != nil
}

// SetToken replaces the token and forgets any cached principal.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.principal = nil
}

// Invalidate signs the session out.
func (s *Session) Invalidate() {
	s.SetToken("")
}

func (s *Session) establish(token string, user *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.principal = user
}

// setPrincipal caches user only if token is still the active token.
func (s *Session) setPrincipal(token string, user *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == token {
		s.principal = user
	}
}

// invalidateToken clears the session only if token is still the active token.
func (s *Session) invalidateToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == token {
		s.token = ""
		s.principal = nil
	}
}
