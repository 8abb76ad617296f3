package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sandoog/internal/identity/models"
	id "sandoog/pkg/domain"
	"sandoog/pkg/platform/sentinel"
)

// RedisSessionStore persists sessions in Redis with a TTL matching their
// expiry, so abandoned sessions clean themselves up.
type RedisSessionStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

// sessionRecord is the JSON wire shape stored in Redis.
type sessionRecord struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

func sessionKey(sessionID id.SessionID) string {
	return "session:" + sessionID.String()
}

func (s *RedisSessionStore) Create(ctx context.Context, session *models.Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return sentinel.ErrInvalidState
	}

	payload, err := json.Marshal(toRecord(session))
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ok, err := s.client.SetNX(ctx, sessionKey(session.ID), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *RedisSessionStore) FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	payload, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("fetch session: %w", err)
	}

	var record sessionRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return fromRecord(record)
}

func (s *RedisSessionStore) Revoke(ctx context.Context, sessionID id.SessionID, at time.Time) error {
	session, err := s.FindByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status == models.SessionStatusRevoked {
		return sentinel.ErrInvalidState
	}

	session.ApplyRevocation(at)

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		// Session already past expiry; nothing left to keep.
		return nil
	}

	payload, err := json.Marshal(toRecord(session))
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(sessionID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func toRecord(session *models.Session) sessionRecord {
	return sessionRecord{
		ID:        session.ID.String(),
		UserID:    session.UserID.String(),
		Status:    string(session.Status),
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
		RevokedAt: session.RevokedAt,
	}
}

func fromRecord(record sessionRecord) (*models.Session, error) {
	sessionID, err := id.ParseSessionID(record.ID)
	if err != nil {
		return nil, fmt.Errorf("parse session id: %w", err)
	}
	userID, err := id.ParseUserID(record.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse session user id: %w", err)
	}
	return &models.Session{
		ID:        sessionID,
		UserID:    userID,
		Status:    models.SessionStatus(record.Status),
		CreatedAt: record.CreatedAt,
		ExpiresAt: record.ExpiresAt,
		RevokedAt: record.RevokedAt,
	}, nil
}
