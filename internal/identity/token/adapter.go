package token

import (
	authmw "sandoog/pkg/platform/middleware/auth"
)

// MiddlewareAdapter exposes the token service through the auth middleware's
// validator interface.
type MiddlewareAdapter struct {
	tokens *Service
}

func NewMiddlewareAdapter(tokens *Service) *MiddlewareAdapter {
	return &MiddlewareAdapter{tokens: tokens}
}

func (a *MiddlewareAdapter) ValidateToken(tokenString string) (*authmw.Claims, error) {
	claims, err := a.tokens.Validate(tokenString, PurposeAccess)
	if err != nil {
		return nil, err
	}
	return &authmw.Claims{
		UserID:    claims.UserID,
		SessionID: claims.SessionID,
	}, nil
}
