package user

import (
	"context"
	"sync"
	"time"

	"sandoog/internal/identity/models"
	id "sandoog/pkg/domain"
	"sandoog/pkg/platform/sentinel"
)

// InMemoryStore keeps identities in memory for tests and local runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	byID    map[id.UserID]*models.Identity
	byEmail map[string]id.UserID
}

func New() *InMemoryStore {
	return &InMemoryStore{
		byID:    make(map[id.UserID]*models.Identity),
		byEmail: make(map[string]id.UserID),
	}
}

func (s *InMemoryStore) CreateIfEmailAvailable(ctx context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[identity.Email]; taken {
		return sentinel.ErrConflict
	}
	if _, exists := s.byID[identity.ID]; exists {
		return sentinel.ErrConflict
	}

	clone := *identity
	s.byID[identity.ID] = &clone
	s.byEmail[identity.Email] = identity.ID
	return nil
}

func (s *InMemoryStore) FindByID(ctx context.Context, userID id.UserID) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.byID[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *identity
	return &clone, nil
}

func (s *InMemoryStore) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.byEmail[email]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *s.byID[userID]
	return &clone, nil
}

func (s *InMemoryStore) SetEmailConfirmed(ctx context.Context, userID id.UserID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.byID[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	identity.EmailConfirmed = true
	identity.UpdatedAt = at
	return nil
}
