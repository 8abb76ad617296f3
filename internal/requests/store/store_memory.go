package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"sandoog/internal/requests/models"
	id "sandoog/pkg/domain"
	"sandoog/pkg/platform/sentinel"
)

// InMemoryLedger enforces the at-most-one-pending rule under its lock, the
// same guarantee the partial unique index gives the Postgres ledger.
type InMemoryLedger struct {
	mu         sync.RWMutex
	elevations map[id.RequestID]*models.ElevationRequest
	joins      map[id.RequestID]*models.JoinRequest
}

func NewInMemory() *InMemoryLedger {
	return &InMemoryLedger{
		elevations: make(map[id.RequestID]*models.ElevationRequest),
		joins:      make(map[id.RequestID]*models.JoinRequest),
	}
}

func (l *InMemoryLedger) InsertElevation(_ context.Context, request *models.ElevationRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, existing := range l.elevations {
		if existing.UserID == request.UserID && existing.Status == models.StatusPending {
			return sentinel.ErrConflict
		}
	}
	l.elevations[request.ID] = cloneElevation(request)
	return nil
}

func (l *InMemoryLedger) FindElevation(_ context.Context, requestID id.RequestID) (*models.ElevationRequest, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	request, ok := l.elevations[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneElevation(request), nil
}

func (l *InMemoryLedger) LatestElevation(ctx context.Context, userID id.UserID) (*models.ElevationRequest, error) {
	requests, err := l.ListElevationsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return &requests[0], nil
}

func (l *InMemoryLedger) ListElevationsByUser(_ context.Context, userID id.UserID) ([]models.ElevationRequest, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []models.ElevationRequest
	for _, request := range l.elevations {
		if request.UserID == userID {
			out = append(out, *cloneElevation(request))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestedAt.After(out[j].RequestedAt)
	})
	return out, nil
}

func (l *InMemoryLedger) ListPendingElevations(_ context.Context) ([]models.ElevationRequest, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []models.ElevationRequest
	for _, request := range l.elevations {
		if request.Status == models.StatusPending {
			out = append(out, *cloneElevation(request))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	return out, nil
}

func (l *InMemoryLedger) ResolveElevation(_ context.Context, requestID id.RequestID, status models.RequestStatus, responderID id.UserID, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	request, ok := l.elevations[requestID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if request.Status.Resolved() {
		return sentinel.ErrInvalidState
	}
	request.Status = status
	request.RespondedAt = &at
	request.RespondedBy = &responderID
	return nil
}

func (l *InMemoryLedger) InsertJoin(_ context.Context, request *models.JoinRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, existing := range l.joins {
		if existing.UserID == request.UserID && existing.Status == models.StatusPending {
			return sentinel.ErrConflict
		}
	}
	l.joins[request.ID] = cloneJoin(request)
	return nil
}

func (l *InMemoryLedger) FindJoin(_ context.Context, requestID id.RequestID) (*models.JoinRequest, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	request, ok := l.joins[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneJoin(request), nil
}

func (l *InMemoryLedger) CountPendingJoins(_ context.Context, userID id.UserID) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	count := 0
	for _, request := range l.joins {
		if request.UserID == userID && request.Status == models.StatusPending {
			count++
		}
	}
	return count, nil
}

func (l *InMemoryLedger) ListPendingJoins(_ context.Context) ([]models.JoinRequest, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []models.JoinRequest
	for _, request := range l.joins {
		if request.Status == models.StatusPending {
			out = append(out, *cloneJoin(request))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	return out, nil
}

func (l *InMemoryLedger) ResolveJoin(_ context.Context, requestID id.RequestID, status models.RequestStatus, responderID id.UserID, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	request, ok := l.joins[requestID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if request.Status.Resolved() {
		return sentinel.ErrInvalidState
	}
	request.Status = status
	request.RespondedAt = &at
	request.RespondedBy = &responderID
	return nil
}

func cloneElevation(request *models.ElevationRequest) *models.ElevationRequest {
	out := *request
	if request.RespondedAt != nil {
		at := *request.RespondedAt
		out.RespondedAt = &at
	}
	if request.RespondedBy != nil {
		by := *request.RespondedBy
		out.RespondedBy = &by
	}
	return &out
}

func cloneJoin(request *models.JoinRequest) *models.JoinRequest {
	out := *request
	if request.RespondedAt != nil {
		at := *request.RespondedAt
		out.RespondedAt = &at
	}
	if request.RespondedBy != nil {
		by := *request.RespondedBy
		out.RespondedBy = &by
	}
	return &out
}
