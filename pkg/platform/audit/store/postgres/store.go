package postgres

import (
	"context"
	"database/sql"
	"fmt"

	id "sandoog/pkg/domain"
	audit "sandoog/pkg/platform/audit"
	txcontext "sandoog/pkg/platform/tx"

	"github.com/google/uuid"
)

// Store persists audit events in PostgreSQL. Writes join an in-flight
// transaction from context when one is present, so request-workflow decisions
// and their audit rows commit together.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO audit_events (id, action, user_id, actor_id, reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	var actorID any
	if !event.ActorID.IsNil() {
		actorID = uuid.UUID(event.ActorID)
	}
	_, err := s.execer(ctx).ExecContext(ctx, query,
		event.ID,
		string(event.Action),
		uuid.UUID(event.UserID),
		actorID,
		event.Reason,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByUser(ctx context.Context, userID id.UserID) ([]audit.Event, error) {
	query := `
		SELECT id, action, user_id, actor_id, reason, occurred_at
		FROM audit_events
		WHERE user_id = $1
		ORDER BY occurred_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			event  audit.Event
			user   uuid.UUID
			actor  sql.Null[uuid.UUID]
			action string
		)
		if err := rows.Scan(&event.ID, &action, &user, &actor, &event.Reason, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Action = audit.Action(action)
		event.UserID = id.UserID(user)
		if actor.Valid {
			event.ActorID = id.UserID(actor.V)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
