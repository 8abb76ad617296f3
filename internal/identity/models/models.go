package models

import (
	"time"

	id "sandoog/pkg/domain"
)

// Identity is an authenticated principal. The password hash never leaves the
// identity package.
type Identity struct {
	ID             id.UserID
	Email          string
	PasswordHash   []byte
	EmailConfirmed bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SessionStatus tracks the lifecycle of an authenticated session.
type SessionStatus string

const (
	SessionStatusActive  SessionStatus = "active"
	SessionStatusRevoked SessionStatus = "revoked"
)

// Session is one authenticated login. Tokens reference a session so logout
// can invalidate outstanding tokens.
type Session struct {
	ID        id.SessionID
	UserID    id.UserID
	Status    SessionStatus
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Active reports whether the session is usable at the given instant.
func (s *Session) Active(now time.Time) bool {
	return s.Status == SessionStatusActive && now.Before(s.ExpiresAt)
}

// ApplyRevocation marks the session revoked. Idempotent.
func (s *Session) ApplyRevocation(now time.Time) {
	if s.Status == SessionStatusRevoked {
		return
	}
	s.Status = SessionStatusRevoked
	s.RevokedAt = &now
}

// LoginResult carries the issued token alongside the identity.
type LoginResult struct {
	Identity    *Identity
	SessionID   id.SessionID
	AccessToken string
	ExpiresAt   time.Time
}
