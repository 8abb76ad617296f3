// Package token issues and validates the JWTs that carry session identity
// between the transport layer and the engine.
package token

import (
	"errors"
	"time"

	id "sandoog/pkg/domain"
	dErrors "sandoog/pkg/domain-errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Purpose separates access tokens from email-confirmation tokens so one can
// never stand in for the other.
type Purpose string

const (
	PurposeAccess  Purpose = "access"
	PurposeConfirm Purpose = "confirm_email"
)

// Claims are the JWT claims for engine tokens.
type Claims struct {
	UserID    string  `json:"user_id"`
	SessionID string  `json:"session_id,omitempty"`
	Purpose   Purpose `json:"purpose"`
	jwt.RegisteredClaims
}

// Service handles JWT creation and validation. HS256 with a shared key; the
// engine is both issuer and sole audience.
type Service struct {
	signingKey []byte
	issuer     string
}

func NewService(signingKey, issuer string) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
	}
}

// GenerateAccessToken issues a session-bound access token.
func (s *Service) GenerateAccessToken(userID id.UserID, sessionID id.SessionID, expiresIn time.Duration) (string, error) {
	return s.generate(Claims{
		UserID:    userID.String(),
		SessionID: sessionID.String(),
		Purpose:   PurposeAccess,
	}, expiresIn)
}

// GenerateConfirmToken issues a short-lived email-confirmation token.
func (s *Service) GenerateConfirmToken(userID id.UserID, expiresIn time.Duration) (string, error) {
	return s.generate(Claims{
		UserID:  userID.String(),
		Purpose: PurposeConfirm,
	}, expiresIn)
}

func (s *Service) generate(claims Claims, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    s.issuer,
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "sign token")
	}
	return signed, nil
}

// Validate parses and verifies a token, checking it carries the expected
// purpose.
func (s *Service) Validate(tokenString string, purpose Purpose) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token expired")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if claims.Purpose != purpose {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "wrong token purpose")
	}
	return claims, nil
}
