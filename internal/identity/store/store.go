// Package store defines the persistence interfaces for the identity
// provider. Implementations live in subpackages; memory variants back tests
// and dependency-free local runs.
package store

import (
	"context"
	"time"

	"sandoog/internal/identity/models"
	id "sandoog/pkg/domain"
)

type UserStore interface {
	// CreateIfEmailAvailable inserts a new identity, returning
	// sentinel.ErrConflict when the email is taken.
	CreateIfEmailAvailable(ctx context.Context, identity *models.Identity) error
	FindByID(ctx context.Context, userID id.UserID) (*models.Identity, error)
	FindByEmail(ctx context.Context, email string) (*models.Identity, error)
	SetEmailConfirmed(ctx context.Context, userID id.UserID, at time.Time) error
}

type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	// Revoke marks a session revoked. Revoking an already-revoked or missing
	// session returns sentinel.ErrNotFound or sentinel.ErrInvalidState.
	Revoke(ctx context.Context, sessionID id.SessionID, at time.Time) error
}
