package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sandoog/internal/roles/models"
	id "sandoog/pkg/domain"
	"sandoog/pkg/platform/sentinel"
	txcontext "sandoog/pkg/platform/tx"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// PostgresStore persists role records in PostgreSQL. Writes join an in-flight
// transaction from context so approval role effects commit with the ledger
// status transition.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) runner(ctx context.Context) dbRunner {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.RoleRecord, error) {
	query := `
		SELECT id, email, first_name, last_name, is_admin, is_site_master, group_id, created_at, updated_at
		FROM role_records
		WHERE id = $1
	`
	row := s.runner(ctx).QueryRowContext(ctx, query, uuid.UUID(userID))

	var (
		record    models.RoleRecord
		rawID     uuid.UUID
		groupID   sql.Null[uuid.UUID]
		updatedAt sql.NullTime
	)
	err := row.Scan(
		&rawID,
		&record.Email,
		&record.FirstName,
		&record.LastName,
		&record.IsAdmin,
		&record.IsSiteMaster,
		&groupID,
		&record.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan role record: %w", err)
	}
	record.ID = id.UserID(rawID)
	if groupID.Valid {
		gid := id.GroupID(groupID.V)
		record.GroupID = &gid
	}
	if updatedAt.Valid {
		record.UpdatedAt = updatedAt.Time
	}
	return &record, nil
}

func (s *PostgresStore) CreateIfAbsent(ctx context.Context, record *models.RoleRecord) error {
	query := `
		INSERT INTO role_records (id, email, first_name, last_name, is_admin, is_site_master, group_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	var groupID any
	if record.GroupID != nil {
		groupID = uuid.UUID(*record.GroupID)
	}
	_, err := s.runner(ctx).ExecContext(ctx, query,
		uuid.UUID(record.ID),
		record.Email,
		record.FirstName,
		record.LastName,
		record.IsAdmin,
		record.IsSiteMaster,
		groupID,
		record.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert role record: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetPrivilege(ctx context.Context, userID id.UserID, isAdmin, isSiteMaster bool, at time.Time) error {
	query := `
		UPDATE role_records
		SET is_admin = $2, is_site_master = $3, updated_at = $4
		WHERE id = $1
	`
	return s.updateOne(ctx, "set privilege", query, uuid.UUID(userID), isAdmin, isSiteMaster, at)
}

func (s *PostgresStore) GrantAdmin(ctx context.Context, userID id.UserID, at time.Time) error {
	query := `
		UPDATE role_records
		SET is_admin = TRUE, updated_at = $2
		WHERE id = $1
	`
	return s.updateOne(ctx, "grant admin", query, uuid.UUID(userID), at)
}

func (s *PostgresStore) AssignGroup(ctx context.Context, userID id.UserID, groupID id.GroupID, at time.Time) error {
	query := `
		UPDATE role_records
		SET group_id = $2, updated_at = $3
		WHERE id = $1
	`
	return s.updateOne(ctx, "assign group", query, uuid.UUID(userID), uuid.UUID(groupID), at)
}

func (s *PostgresStore) updateOne(ctx context.Context, verb, query string, args ...any) error {
	result, err := s.runner(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", verb, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", verb, err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
