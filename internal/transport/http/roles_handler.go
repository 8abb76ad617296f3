package http

import (
	"log/slog"
	"net/http"

	rolesmodels "sandoog/internal/roles/models"
	rolesservice "sandoog/internal/roles/service"
	id "sandoog/pkg/domain"
	dErrors "sandoog/pkg/domain-errors"
	"sandoog/pkg/platform/httputil"
	"sandoog/pkg/requestcontext"
)

// RolesHandler exposes reconciliation and the privilege sync endpoint.
type RolesHandler struct {
	roles  *rolesservice.Service
	logger *slog.Logger
}

func NewRolesHandler(roles *rolesservice.Service, logger *slog.Logger) *RolesHandler {
	return &RolesHandler{roles: roles, logger: logger}
}

type roleViewResponse struct {
	IsAuthenticated bool   `json:"is_authenticated"`
	IsAdmin         bool   `json:"is_admin"`
	IsSiteMaster    bool   `json:"is_site_master"`
	GroupID         string `json:"group_id,omitempty"`
	UserID          string `json:"user_id,omitempty"`
	Email           string `json:"email,omitempty"`
	Landing         string `json:"landing"`
	Degraded        bool   `json:"degraded,omitempty"`
}

func toRoleViewResponse(view rolesmodels.RoleView) roleViewResponse {
	out := roleViewResponse{
		IsAuthenticated: view.IsAuthenticated,
		IsAdmin:         view.IsAdmin,
		IsSiteMaster:    view.IsSiteMaster,
		Email:           view.Email,
		Landing:         string(view.Landing()),
		Degraded:        view.Degraded(),
	}
	if !view.UserID.IsNil() {
		out.UserID = view.UserID.String()
	}
	if view.GroupID != nil {
		out.GroupID = view.GroupID.String()
	}
	return out
}

// MyRole reconciles the caller and returns the fresh role view.
func (h *RolesHandler) MyRole(w http.ResponseWriter, r *http.Request) {
	view, err := h.roles.ReconcileCurrent(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRoleViewResponse(view))
}

type syncPrivilegeRequest struct {
	UserID string `json:"user_id"`
}

// SyncPrivilege re-applies the domain rule to a user on demand. Site master
// only; defaults to the caller when no user is named.
func (h *RolesHandler) SyncPrivilege(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[syncPrivilegeRequest](w, r)
	if !ok {
		return
	}

	userID := requestcontext.UserID(r.Context())
	if req.UserID != "" {
		parsed, err := parseUserIDParam(req.UserID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		userID = parsed
	}

	changed, err := h.roles.SyncPrivilege(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"changed": changed})
}

func parseUserIDParam(raw string) (id.UserID, error) {
	userID, err := id.ParseUserID(raw)
	if err != nil {
		return id.UserID{}, dErrors.New(dErrors.CodeValidation, "invalid user id")
	}
	return userID, nil
}
