package testutil

import (
	"net/http"

	id "sandoog/pkg/domain"
	"sandoog/pkg/requestcontext"
)

// WithUserID adds a user ID to the request context, simulating what the auth
// middleware would do for authenticated requests. Invalid IDs are silently
// ignored.
func WithUserID(req *http.Request, userID string) *http.Request {
	if parsed, err := id.ParseUserID(userID); err == nil {
		return req.WithContext(requestcontext.WithUserID(req.Context(), parsed))
	}
	return req
}

// WithAuth adds both user ID and session ID to the request context, the
// typical state for an authenticated request.
func WithAuth(req *http.Request, userID, sessionID string) *http.Request {
	ctx := req.Context()
	if userID != "" {
		if parsed, err := id.ParseUserID(userID); err == nil {
			ctx = requestcontext.WithUserID(ctx, parsed)
		}
	}
	if sessionID != "" {
		if parsed, err := id.ParseSessionID(sessionID); err == nil {
			ctx = requestcontext.WithSessionID(ctx, parsed)
		}
	}
	return req.WithContext(ctx)
}
