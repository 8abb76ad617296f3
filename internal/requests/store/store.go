// Package store defines the request ledger persistence interface.
package store

import (
	"context"
	"time"

	"sandoog/internal/requests/models"
	id "sandoog/pkg/domain"
)

// Ledger is the append-only request table. Rows are never deleted; only the
// status fields of a pending row may change, once.
type Ledger interface {
	// InsertElevation appends a pending row. Returns sentinel.ErrConflict
	// when the user already has a pending elevation request.
	InsertElevation(ctx context.Context, request *models.ElevationRequest) error
	FindElevation(ctx context.Context, requestID id.RequestID) (*models.ElevationRequest, error)
	// LatestElevation returns the most recent request by requestedAt, or
	// sentinel.ErrNotFound when the user has never filed one.
	LatestElevation(ctx context.Context, userID id.UserID) (*models.ElevationRequest, error)
	ListElevationsByUser(ctx context.Context, userID id.UserID) ([]models.ElevationRequest, error)
	ListPendingElevations(ctx context.Context) ([]models.ElevationRequest, error)
	// ResolveElevation transitions a pending row to a terminal status.
	// Returns sentinel.ErrNotFound for a missing row and
	// sentinel.ErrInvalidState for one already resolved.
	ResolveElevation(ctx context.Context, requestID id.RequestID, status models.RequestStatus, responderID id.UserID, at time.Time) error

	InsertJoin(ctx context.Context, request *models.JoinRequest) error
	FindJoin(ctx context.Context, requestID id.RequestID) (*models.JoinRequest, error)
	CountPendingJoins(ctx context.Context, userID id.UserID) (int, error)
	ListPendingJoins(ctx context.Context) ([]models.JoinRequest, error)
	ResolveJoin(ctx context.Context, requestID id.RequestID, status models.RequestStatus, responderID id.UserID, at time.Time) error
}
