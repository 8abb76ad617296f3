package http

import (
	"log/slog"
	"net/http"
	"time"

	"sandoog/internal/requests/models"
	requestsservice "sandoog/internal/requests/service"
	id "sandoog/pkg/domain"
	dErrors "sandoog/pkg/domain-errors"
	"sandoog/pkg/platform/httputil"
	"sandoog/pkg/requestcontext"

	"github.com/go-chi/chi/v5"
)

// RequestsHandler exposes the eligibility evaluator and request workflow.
type RequestsHandler struct {
	requests *requestsservice.Service
	logger   *slog.Logger
}

func NewRequestsHandler(requests *requestsservice.Service, logger *slog.Logger) *RequestsHandler {
	return &RequestsHandler{requests: requests, logger: logger}
}

type eligibilityResponse struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

func (h *RequestsHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	eligibility, err := h.requests.CanRequestAdmin(r.Context(), requestcontext.UserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, eligibilityResponse{
		Eligible: eligibility.Eligible,
		Reason:   eligibility.Reason,
	})
}

type fileRequest struct {
	Reason string `json:"reason"`
}

type elevationResponse struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Reason      string     `json:"reason"`
	Status      string     `json:"status"`
	RequestedAt time.Time  `json:"requested_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
	RespondedBy string     `json:"responded_by,omitempty"`
}

func toElevationResponse(request models.ElevationRequest) elevationResponse {
	out := elevationResponse{
		ID:          request.ID.String(),
		UserID:      request.UserID.String(),
		Reason:      request.Reason,
		Status:      string(request.Status),
		RequestedAt: request.RequestedAt,
		RespondedAt: request.RespondedAt,
	}
	if request.RespondedBy != nil {
		out.RespondedBy = request.RespondedBy.String()
	}
	return out
}

func (h *RequestsHandler) File(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[fileRequest](w, r)
	if !ok {
		return
	}

	request, err := h.requests.File(r.Context(), requestcontext.UserID(r.Context()), req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toElevationResponse(*request))
}

func (h *RequestsHandler) Status(w http.ResponseWriter, r *http.Request) {
	request, err := h.requests.Status(r.Context(), requestcontext.UserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if request == nil {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "none"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toElevationResponse(*request))
}

func (h *RequestsHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.requests.ListPending(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out := make([]elevationResponse, 0, len(pending))
	for _, request := range pending {
		out = append(out, toElevationResponse(request))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *RequestsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	requestID, ok := requestIDParam(w, r)
	if !ok {
		return
	}
	if err := h.requests.Approve(r.Context(), requestID, requestcontext.UserID(r.Context())); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": string(models.StatusApproved)})
}

func (h *RequestsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	requestID, ok := requestIDParam(w, r)
	if !ok {
		return
	}
	if err := h.requests.Reject(r.Context(), requestID, requestcontext.UserID(r.Context())); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": string(models.StatusRejected)})
}

type fileJoinRequest struct {
	GroupID string `json:"group_id"`
}

type joinResponse struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	GroupID     string     `json:"group_id"`
	Status      string     `json:"status"`
	RequestedAt time.Time  `json:"requested_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
	RespondedBy string     `json:"responded_by,omitempty"`
}

func toJoinResponse(request models.JoinRequest) joinResponse {
	out := joinResponse{
		ID:          request.ID.String(),
		UserID:      request.UserID.String(),
		GroupID:     request.GroupID.String(),
		Status:      string(request.Status),
		RequestedAt: request.RequestedAt,
		RespondedAt: request.RespondedAt,
	}
	if request.RespondedBy != nil {
		out.RespondedBy = request.RespondedBy.String()
	}
	return out
}

func (h *RequestsHandler) FileJoin(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[fileJoinRequest](w, r)
	if !ok {
		return
	}
	groupID, err := id.ParseGroupID(req.GroupID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid group id"))
		return
	}

	request, err := h.requests.FileJoin(r.Context(), requestcontext.UserID(r.Context()), groupID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toJoinResponse(*request))
}

func (h *RequestsHandler) ListPendingJoins(w http.ResponseWriter, r *http.Request) {
	pending, err := h.requests.ListPendingJoins(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out := make([]joinResponse, 0, len(pending))
	for _, request := range pending {
		out = append(out, toJoinResponse(request))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *RequestsHandler) ApproveJoin(w http.ResponseWriter, r *http.Request) {
	requestID, ok := requestIDParam(w, r)
	if !ok {
		return
	}
	if err := h.requests.ApproveJoin(r.Context(), requestID, requestcontext.UserID(r.Context())); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": string(models.StatusApproved)})
}

func (h *RequestsHandler) RejectJoin(w http.ResponseWriter, r *http.Request) {
	requestID, ok := requestIDParam(w, r)
	if !ok {
		return
	}
	if err := h.requests.RejectJoin(r.Context(), requestID, requestcontext.UserID(r.Context())); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": string(models.StatusRejected)})
}

func requestIDParam(w http.ResponseWriter, r *http.Request) (id.RequestID, bool) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request id"))
		return id.RequestID{}, false
	}
	return requestID, true
}
