// Package store defines the role record persistence interface.
package store

import (
	"context"
	"time"

	"sandoog/internal/roles/models"
	id "sandoog/pkg/domain"
)

// Store is the role record table. Every write is a single-row operation; the
// approve workflow composes writes with the request ledger through a
// transaction carried on the context.
type Store interface {
	// FindByID returns sentinel.ErrNotFound when no record exists.
	FindByID(ctx context.Context, userID id.UserID) (*models.RoleRecord, error)
	// CreateIfAbsent inserts a record, returning sentinel.ErrConflict when a
	// record for the user already exists. The existing row is left untouched.
	CreateIfAbsent(ctx context.Context, record *models.RoleRecord) error
	// SetPrivilege updates the isAdmin/isSiteMaster pair without touching
	// group membership.
	SetPrivilege(ctx context.Context, userID id.UserID, isAdmin, isSiteMaster bool, at time.Time) error
	// GrantAdmin is the elevation approval effect.
	GrantAdmin(ctx context.Context, userID id.UserID, at time.Time) error
	// AssignGroup is the join approval effect.
	AssignGroup(ctx context.Context, userID id.UserID, groupID id.GroupID, at time.Time) error
}
