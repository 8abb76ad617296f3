// Package domain holds typed identifiers shared across services. Wrapping
// uuid.UUID keeps user, group, session, and request IDs from being mixed up
// at compile time.
package domain

import "github.com/google/uuid"

type (
	// UserID identifies an identity across the identity provider, role
	// record store, and request ledger.
	UserID uuid.UUID

	// GroupID identifies a savings group.
	GroupID uuid.UUID

	// RequestID identifies a row in the request ledger.
	RequestID uuid.UUID

	// SessionID identifies an authenticated session.
	SessionID uuid.UUID
)

func NewUserID() UserID       { return UserID(uuid.New()) }
func NewGroupID() GroupID     { return GroupID(uuid.New()) }
func NewRequestID() RequestID { return RequestID(uuid.New()) }
func NewSessionID() SessionID { return SessionID(uuid.New()) }

func (id UserID) String() string    { return uuid.UUID(id).String() }
func (id GroupID) String() string   { return uuid.UUID(id).String() }
func (id RequestID) String() string { return uuid.UUID(id).String() }
func (id SessionID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id GroupID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id RequestID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// ParseUserID parses the string form of a user ID.
func ParseUserID(s string) (UserID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, err
	}
	return UserID(u), nil
}

// ParseGroupID parses the string form of a group ID.
func ParseGroupID(s string) (GroupID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return GroupID{}, err
	}
	return GroupID(u), nil
}

// ParseRequestID parses the string form of a request ID.
func ParseRequestID(s string) (RequestID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return RequestID{}, err
	}
	return RequestID(u), nil
}

// ParseSessionID parses the string form of a session ID.
func ParseSessionID(s string) (SessionID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return SessionID{}, err
	}
	return SessionID(u), nil
}
