package http

import (
	"log/slog"
	"net/http"
	"time"

	identityservice "sandoog/internal/identity/service"
	"sandoog/pkg/platform/httputil"
	"sandoog/pkg/requestcontext"
)

// AuthHandler exposes the identity provider over HTTP.
type AuthHandler struct {
	identities *identityservice.Service
	logger     *slog.Logger
}

func NewAuthHandler(identities *identityservice.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{identities: identities, logger: logger}
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	// ConfirmToken would be delivered by mail in production; surfaced here
	// because no mail transport is wired.
	ConfirmToken string `json:"confirm_token"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[signupRequest](w, r)
	if !ok {
		return
	}

	identity, confirmToken, err := h.identities.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, signupResponse{
		UserID:       identity.ID.String(),
		Email:        identity.Email,
		ConfirmToken: confirmToken,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[loginRequest](w, r)
	if !ok {
		return
	}

	result, err := h.identities.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken: result.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   result.ExpiresAt,
		UserID:      result.Identity.ID.String(),
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.identities.Logout(r.Context(), requestcontext.SessionID(r.Context())); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resendConfirmationRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandler) ResendConfirmation(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[resendConfirmationRequest](w, r)
	if !ok {
		return
	}

	confirmToken, err := h.identities.ResendConfirmation(r.Context(), req.Email)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	// Same response whether or not the address exists.
	body := map[string]string{"status": "sent"}
	if confirmToken != "" {
		body["confirm_token"] = confirmToken
	}
	httputil.WriteJSON(w, http.StatusAccepted, body)
}

type confirmEmailRequest struct {
	Token string `json:"token"`
}

func (h *AuthHandler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[confirmEmailRequest](w, r)
	if !ok {
		return
	}

	if err := h.identities.ConfirmEmail(r.Context(), req.Token); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
}
