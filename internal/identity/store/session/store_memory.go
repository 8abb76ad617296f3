package session

import (
	"context"
	"sync"
	"time"

	"sandoog/internal/identity/models"
	id "sandoog/pkg/domain"
	"sandoog/pkg/platform/sentinel"
)

// InMemorySessionStore keeps sessions in memory for tests and local runs.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]*models.Session
}

func New() *InMemorySessionStore {
	return &InMemorySessionStore{
		sessions: make(map[id.SessionID]*models.Session),
	}
}

func (s *InMemorySessionStore) Create(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return sentinel.ErrConflict
	}
	clone := *session
	s.sessions[session.ID] = &clone
	return nil
}

func (s *InMemorySessionStore) FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *session
	return &clone, nil
}

func (s *InMemorySessionStore) Revoke(ctx context.Context, sessionID id.SessionID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if session.Status == models.SessionStatusRevoked {
		return sentinel.ErrInvalidState
	}
	session.ApplyRevocation(at)
	return nil
}
