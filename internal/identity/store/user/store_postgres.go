package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sandoog/internal/identity/models"
	id "sandoog/pkg/domain"
	"sandoog/pkg/platform/sentinel"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// uniqueViolation is the Postgres error code for unique constraint failures.
const uniqueViolation = "23505"

// PostgresStore persists identities in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateIfEmailAvailable(ctx context.Context, identity *models.Identity) error {
	query := `
		INSERT INTO identities (id, email, password_hash, email_confirmed, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(identity.ID),
		identity.Email,
		string(identity.PasswordHash),
		identity.EmailConfirmed,
		identity.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.Identity, error) {
	query := `
		SELECT id, email, password_hash, email_confirmed, created_at, updated_at
		FROM identities
		WHERE id = $1
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, uuid.UUID(userID)))
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	query := `
		SELECT id, email, password_hash, email_confirmed, created_at, updated_at
		FROM identities
		WHERE email = $1
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, email))
}

func (s *PostgresStore) SetEmailConfirmed(ctx context.Context, userID id.UserID, at time.Time) error {
	query := `
		UPDATE identities
		SET email_confirmed = TRUE, updated_at = $2
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, uuid.UUID(userID), at)
	if err != nil {
		return fmt.Errorf("confirm email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("confirm email rows: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) scanOne(row *sql.Row) (*models.Identity, error) {
	var (
		identity  models.Identity
		rawID     uuid.UUID
		hash      string
		updatedAt sql.NullTime
	)
	err := row.Scan(&rawID, &identity.Email, &hash, &identity.EmailConfirmed, &identity.CreatedAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan identity: %w", err)
	}
	identity.ID = id.UserID(rawID)
	identity.PasswordHash = []byte(hash)
	if updatedAt.Valid {
		identity.UpdatedAt = updatedAt.Time
	}
	return &identity, nil
}
