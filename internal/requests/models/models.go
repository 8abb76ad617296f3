// Package models holds the request ledger types: elevation and group-join
// petitions and their lifecycle status.
package models

import (
	"time"

	id "sandoog/pkg/domain"
)

// RequestStatus is the request lifecycle. Pending is initial; Approved and
// Rejected are terminal.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

// Resolved reports whether the status is terminal.
func (s RequestStatus) Resolved() bool {
	return s == StatusApproved || s == StatusRejected
}

// ElevationRequest is a petition to become an admin.
type ElevationRequest struct {
	ID          id.RequestID
	UserID      id.UserID
	Reason      string
	Status      RequestStatus
	RequestedAt time.Time
	RespondedAt *time.Time
	RespondedBy *id.UserID
}

// JoinRequest is a petition to join a group. Approval sets the user's group
// on the role record.
type JoinRequest struct {
	ID          id.RequestID
	UserID      id.UserID
	GroupID     id.GroupID
	Status      RequestStatus
	RequestedAt time.Time
	RespondedAt *time.Time
	RespondedBy *id.UserID
}

// Eligibility is the evaluator's answer. Reason is user-facing and set only
// when Eligible is false.
type Eligibility struct {
	Eligible bool
	Reason   string
}
