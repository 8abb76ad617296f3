package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sandoog/internal/requests/models"
	id "sandoog/pkg/domain"
	"sandoog/pkg/platform/sentinel"
	txcontext "sandoog/pkg/platform/tx"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// PostgresLedger persists requests in PostgreSQL. A partial unique index on
// (user_id) WHERE status = 'pending' turns concurrent double-filing into an
// insert conflict. Reads and writes join an in-flight transaction from
// context when one is present.
type PostgresLedger struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

type dbRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (l *PostgresLedger) runner(ctx context.Context) dbRunner {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return l.db
}

func (l *PostgresLedger) InsertElevation(ctx context.Context, request *models.ElevationRequest) error {
	query := `
		INSERT INTO admin_requests (id, user_id, reason, status, requested_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := l.runner(ctx).ExecContext(ctx, query,
		uuid.UUID(request.ID),
		uuid.UUID(request.UserID),
		request.Reason,
		string(request.Status),
		request.RequestedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert elevation request: %w", err)
	}
	return nil
}

const elevationColumns = `id, user_id, reason, status, requested_at, responded_at, responded_by`

func (l *PostgresLedger) FindElevation(ctx context.Context, requestID id.RequestID) (*models.ElevationRequest, error) {
	query := `SELECT ` + elevationColumns + ` FROM admin_requests WHERE id = $1`
	return scanElevation(l.runner(ctx).QueryRowContext(ctx, query, uuid.UUID(requestID)))
}

func (l *PostgresLedger) LatestElevation(ctx context.Context, userID id.UserID) (*models.ElevationRequest, error) {
	query := `
		SELECT ` + elevationColumns + `
		FROM admin_requests
		WHERE user_id = $1
		ORDER BY requested_at DESC
		LIMIT 1
	`
	return scanElevation(l.runner(ctx).QueryRowContext(ctx, query, uuid.UUID(userID)))
}

func (l *PostgresLedger) ListElevationsByUser(ctx context.Context, userID id.UserID) ([]models.ElevationRequest, error) {
	query := `
		SELECT ` + elevationColumns + `
		FROM admin_requests
		WHERE user_id = $1
		ORDER BY requested_at DESC
	`
	rows, err := l.runner(ctx).QueryContext(ctx, query, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("list elevation requests: %w", err)
	}
	return collectElevations(rows)
}

func (l *PostgresLedger) ListPendingElevations(ctx context.Context) ([]models.ElevationRequest, error) {
	query := `
		SELECT ` + elevationColumns + `
		FROM admin_requests
		WHERE status = $1
		ORDER BY requested_at ASC
	`
	rows, err := l.runner(ctx).QueryContext(ctx, query, string(models.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("list pending elevation requests: %w", err)
	}
	return collectElevations(rows)
}

func (l *PostgresLedger) ResolveElevation(ctx context.Context, requestID id.RequestID, status models.RequestStatus, responderID id.UserID, at time.Time) error {
	query := `
		UPDATE admin_requests
		SET status = $2, responded_at = $3, responded_by = $4
		WHERE id = $1 AND status = $5
	`
	return l.resolve(ctx, "admin_requests", query, requestID, status, responderID, at)
}

func (l *PostgresLedger) InsertJoin(ctx context.Context, request *models.JoinRequest) error {
	query := `
		INSERT INTO group_join_requests (id, user_id, group_id, status, requested_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := l.runner(ctx).ExecContext(ctx, query,
		uuid.UUID(request.ID),
		uuid.UUID(request.UserID),
		uuid.UUID(request.GroupID),
		string(request.Status),
		request.RequestedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert join request: %w", err)
	}
	return nil
}

const joinColumns = `id, user_id, group_id, status, requested_at, responded_at, responded_by`

func (l *PostgresLedger) FindJoin(ctx context.Context, requestID id.RequestID) (*models.JoinRequest, error) {
	query := `SELECT ` + joinColumns + ` FROM group_join_requests WHERE id = $1`
	return scanJoin(l.runner(ctx).QueryRowContext(ctx, query, uuid.UUID(requestID)))
}

func (l *PostgresLedger) CountPendingJoins(ctx context.Context, userID id.UserID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM group_join_requests
		WHERE user_id = $1 AND status = $2
	`
	var count int
	err := l.runner(ctx).QueryRowContext(ctx, query, uuid.UUID(userID), string(models.StatusPending)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending join requests: %w", err)
	}
	return count, nil
}

func (l *PostgresLedger) ListPendingJoins(ctx context.Context) ([]models.JoinRequest, error) {
	query := `
		SELECT ` + joinColumns + `
		FROM group_join_requests
		WHERE status = $1
		ORDER BY requested_at ASC
	`
	rows, err := l.runner(ctx).QueryContext(ctx, query, string(models.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("list pending join requests: %w", err)
	}
	defer rows.Close()

	var out []models.JoinRequest
	for rows.Next() {
		request, err := scanJoinRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate join requests: %w", err)
	}
	return out, nil
}

func (l *PostgresLedger) ResolveJoin(ctx context.Context, requestID id.RequestID, status models.RequestStatus, responderID id.UserID, at time.Time) error {
	query := `
		UPDATE group_join_requests
		SET status = $2, responded_at = $3, responded_by = $4
		WHERE id = $1 AND status = $5
	`
	return l.resolve(ctx, "group_join_requests", query, requestID, status, responderID, at)
}

// resolve runs the conditional status transition. Zero rows affected means
// the row is either absent or already terminal; a follow-up read tells the
// two apart.
func (l *PostgresLedger) resolve(ctx context.Context, table, query string, requestID id.RequestID, status models.RequestStatus, responderID id.UserID, at time.Time) error {
	result, err := l.runner(ctx).ExecContext(ctx, query,
		uuid.UUID(requestID),
		string(status),
		at,
		uuid.UUID(responderID),
		string(models.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("resolve request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve request rows: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	check := `SELECT EXISTS (SELECT 1 FROM ` + table + ` WHERE id = $1)`
	if err := l.runner(ctx).QueryRowContext(ctx, check, uuid.UUID(requestID)).Scan(&exists); err != nil {
		return fmt.Errorf("check request: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrInvalidState
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanElevation(row *sql.Row) (*models.ElevationRequest, error) {
	request, err := scanElevationRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return request, nil
}

func scanElevationRow(row rowScanner) (*models.ElevationRequest, error) {
	var (
		request     models.ElevationRequest
		rawID       uuid.UUID
		rawUser     uuid.UUID
		status      string
		respondedAt sql.NullTime
		respondedBy sql.Null[uuid.UUID]
	)
	err := row.Scan(&rawID, &rawUser, &request.Reason, &status, &request.RequestedAt, &respondedAt, &respondedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan elevation request: %w", err)
	}
	request.ID = id.RequestID(rawID)
	request.UserID = id.UserID(rawUser)
	request.Status = models.RequestStatus(status)
	if respondedAt.Valid {
		request.RespondedAt = &respondedAt.Time
	}
	if respondedBy.Valid {
		by := id.UserID(respondedBy.V)
		request.RespondedBy = &by
	}
	return &request, nil
}

func collectElevations(rows *sql.Rows) ([]models.ElevationRequest, error) {
	defer rows.Close()

	var out []models.ElevationRequest
	for rows.Next() {
		request, err := scanElevationRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate elevation requests: %w", err)
	}
	return out, nil
}

func scanJoin(row *sql.Row) (*models.JoinRequest, error) {
	request, err := scanJoinRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return request, nil
}

func scanJoinRow(row rowScanner) (*models.JoinRequest, error) {
	var (
		request     models.JoinRequest
		rawID       uuid.UUID
		rawUser     uuid.UUID
		rawGroup    uuid.UUID
		status      string
		respondedAt sql.NullTime
		respondedBy sql.Null[uuid.UUID]
	)
	err := row.Scan(&rawID, &rawUser, &rawGroup, &status, &request.RequestedAt, &respondedAt, &respondedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan join request: %w", err)
	}
	request.ID = id.RequestID(rawID)
	request.UserID = id.UserID(rawUser)
	request.GroupID = id.GroupID(rawGroup)
	request.Status = models.RequestStatus(status)
	if respondedAt.Valid {
		request.RespondedAt = &respondedAt.Time
	}
	if respondedBy.Valid {
		by := id.UserID(respondedBy.V)
		request.RespondedBy = &by
	}
	return &request, nil
}
