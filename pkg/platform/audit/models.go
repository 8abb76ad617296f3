package audit

import (
	"context"
	"time"

	id "sandoog/pkg/domain"

	"github.com/google/uuid"
)

// Action names the auditable events the engine emits.
type Action string

const (
	ActionSignup             Action = "identity.signup"
	ActionLogin              Action = "identity.login"
	ActionLogout             Action = "identity.logout"
	ActionRoleCreated        Action = "roles.record_created"
	ActionPrivilegeCorrected Action = "roles.privilege_corrected"
	ActionRequestFiled       Action = "requests.filed"
	ActionRequestApproved    Action = "requests.approved"
	ActionRequestRejected    Action = "requests.rejected"
)

// Event is an append-only audit record. ActorID and Reason are optional and
// depend on the action.
type Event struct {
	ID        uuid.UUID
	Action    Action
	UserID    id.UserID
	ActorID   id.UserID
	Reason    string
	Timestamp time.Time
}

// Store persists audit events. Append-only; nothing deletes or rewrites.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
}
