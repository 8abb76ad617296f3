package store

import (
	"context"
	"sync"
	"time"

	"sandoog/internal/roles/models"
	id "sandoog/pkg/domain"
	"sandoog/pkg/platform/sentinel"
)

// InMemoryStore backs tests and dependency-free runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.UserID]*models.RoleRecord
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.UserID]*models.RoleRecord)}
}

func (s *InMemoryStore) FindByID(_ context.Context, userID id.UserID) (*models.RoleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(record), nil
}

func (s *InMemoryStore) CreateIfAbsent(_ context.Context, record *models.RoleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.ID]; ok {
		return sentinel.ErrConflict
	}
	s.records[record.ID] = clone(record)
	return nil
}

func (s *InMemoryStore) SetPrivilege(_ context.Context, userID id.UserID, isAdmin, isSiteMaster bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	record.IsAdmin = isAdmin
	record.IsSiteMaster = isSiteMaster
	record.UpdatedAt = at
	return nil
}

func (s *InMemoryStore) GrantAdmin(_ context.Context, userID id.UserID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	record.IsAdmin = true
	record.UpdatedAt = at
	return nil
}

func (s *InMemoryStore) AssignGroup(_ context.Context, userID id.UserID, groupID id.GroupID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	record.GroupID = &groupID
	record.UpdatedAt = at
	return nil
}

func clone(record *models.RoleRecord) *models.RoleRecord {
	out := *record
	if record.GroupID != nil {
		groupID := *record.GroupID
		out.GroupID = &groupID
	}
	return &out
}
