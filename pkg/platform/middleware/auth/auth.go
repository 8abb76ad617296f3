// Package auth provides bearer-token middleware. It validates the access
// token, checks that the backing session is still live, and injects the
// authenticated IDs into the request context.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	id "sandoog/pkg/domain"
	dErrors "sandoog/pkg/domain-errors"
	"sandoog/pkg/platform/httputil"
	"sandoog/pkg/requestcontext"
)

// Claims are the validated token claims the middleware consumes.
type Claims struct {
	UserID    string
	SessionID string
}

// TokenValidator validates a raw bearer token.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// SessionChecker reports whether the session behind a token is still active.
type SessionChecker interface {
	IsSessionActive(ctx context.Context, sessionID id.SessionID) (bool, error)
}

// RequireAuth rejects requests without a valid bearer token. On success the
// user and session IDs are available via pkg/requestcontext.
func RequireAuth(validator TokenValidator, sessions SessionChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
				return
			}

			userID, err := id.ParseUserID(claims.UserID)
			if err != nil || userID.IsNil() {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject"))
				return
			}
			sessionID, err := id.ParseSessionID(claims.SessionID)
			if err != nil || sessionID.IsNil() {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid token session"))
				return
			}

			active, err := sessions.IsSessionActive(ctx, sessionID)
			if err != nil {
				logger.ErrorContext(ctx, "session check failed",
					"error", err,
					"session_id", sessionID.String(),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "session check unavailable"))
				return
			}
			if !active {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "session expired or revoked"))
				return
			}

			ctx = requestcontext.WithUserID(ctx, userID)
			ctx = requestcontext.WithSessionID(ctx, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
