// Package models holds the role domain types: the persisted role record and
// the per-request derived role view.
package models

import (
	"time"

	id "sandoog/pkg/domain"
)

// RoleRecord is the durable authorization row for one user. IsSiteMaster is
// kept true for privileged-domain emails by the reconciler; IsAdmin with a
// non-nil GroupID denotes a group administrator, not a site master.
type RoleRecord struct {
	ID           id.UserID
	Email        string
	FirstName    string
	LastName     string
	IsAdmin      bool
	IsSiteMaster bool
	GroupID      *id.GroupID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Landing names the surface a freshly reconciled user should be routed to.
type Landing string

const (
	LandingLogin      Landing = "login"
	LandingSiteMaster Landing = "site_master"
	LandingAdmin      Landing = "admin_dashboard"
	LandingGroup      Landing = "group"
	LandingLobby      Landing = "lobby"
)

// RoleView is the derived authorization snapshot for a single request. It is
// computed fresh on every reconciliation and never persisted or cached.
type RoleView struct {
	IsAuthenticated bool
	IsAdmin         bool
	IsSiteMaster    bool
	GroupID         *id.GroupID
	UserID          id.UserID
	Email           string

	// Fault carries a store error the reconciler absorbed while degrading to
	// a partial view. Role flags are defaulted false when set.
	Fault error
}

// Degraded reports whether the view was produced despite a store fault.
func (v RoleView) Degraded() bool { return v.Fault != nil }

// Landing applies the routing precedence: site master first, then group
// admin, then plain group member, then the lobby.
func (v RoleView) Landing() Landing {
	switch {
	case !v.IsAuthenticated:
		return LandingLogin
	case v.IsSiteMaster:
		return LandingSiteMaster
	case v.IsAdmin && v.GroupID != nil:
		return LandingAdmin
	case v.GroupID != nil:
		return LandingGroup
	default:
		return LandingLobby
	}
}
