// Package service implements the identity provider the authorization engine
// collaborates with: credential signup/login, session issue and revocation,
// and email confirmation. Token cryptography stays thin (HS256 JWTs); the
// engine only depends on the collaborator surface.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"sandoog/internal/identity/models"
	"sandoog/internal/identity/store"
	"sandoog/internal/identity/token"
	id "sandoog/pkg/domain"
	dErrors "sandoog/pkg/domain-errors"
	"sandoog/pkg/email"
	"sandoog/pkg/platform/audit"
	"sandoog/pkg/platform/sentinel"
	"sandoog/pkg/requestcontext"

	"golang.org/x/crypto/bcrypt"
)

// AuditPublisher records identity lifecycle events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the local identity provider.
type Service struct {
	users      store.UserStore
	sessions   store.SessionStore
	tokens     *token.Service
	auditor    AuditPublisher
	logger     *slog.Logger
	tokenTTL   time.Duration
	sessionTTL time.Duration
}

type Option func(*Service)

func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) { s.tokenTTL = ttl }
}

func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) { s.sessionTTL = ttl }
}

func NewService(users store.UserStore, sessions store.SessionStore, tokens *token.Service, auditor AuditPublisher, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		users:      users,
		sessions:   sessions,
		tokens:     tokens,
		auditor:    auditor,
		logger:     logger,
		tokenTTL:   time.Hour,
		sessionTTL: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Signup registers a new identity. The identity starts unconfirmed; a
// confirmation token is returned for delivery (mail transport is not this
// engine's concern).
func (s *Service) Signup(ctx context.Context, rawEmail, password string) (*models.Identity, string, error) {
	address := email.Normalize(rawEmail)
	if address == "" || email.Domain(address) == "" {
		return nil, "", dErrors.New(dErrors.CodeValidation, "a valid email address is required")
	}
	if len(password) < 8 {
		return nil, "", dErrors.New(dErrors.CodeValidation, "password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "hash password")
	}

	identity := &models.Identity{
		ID:           id.NewUserID(),
		Email:        address,
		PasswordHash: hash,
		CreatedAt:    requestcontext.Now(ctx),
	}
	if err := s.users.CreateIfEmailAvailable(ctx, identity); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, "", dErrors.New(dErrors.CodeConflict, "email address is already in use")
		}
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "create identity")
	}

	confirmToken, err := s.tokens.GenerateConfirmToken(identity.ID, 24*time.Hour)
	if err != nil {
		return nil, "", err
	}

	s.emitAudit(ctx, audit.Event{Action: audit.ActionSignup, UserID: identity.ID})
	s.logger.InfoContext(ctx, "identity created", "user_id", identity.ID.String())

	return identity, confirmToken, nil
}

// Login verifies credentials and issues a session-bound access token.
// Unconfirmed identities may log in; confirmation is enforced where an
// operation requires it.
func (s *Service) Login(ctx context.Context, rawEmail, password string) (*models.LoginResult, error) {
	address := email.Normalize(rawEmail)

	identity, err := s.users.FindByEmail(ctx, address)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "identity lookup failed")
	}

	if bcrypt.CompareHashAndPassword(identity.PasswordHash, []byte(password)) != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")
	}

	now := requestcontext.Now(ctx)
	session := &models.Session{
		ID:        id.NewSessionID(),
		UserID:    identity.ID,
		Status:    models.SessionStatusActive,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create session")
	}

	accessToken, err := s.tokens.GenerateAccessToken(identity.ID, session.ID, s.tokenTTL)
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, audit.Event{Action: audit.ActionLogin, UserID: identity.ID})
	s.logger.InfoContext(ctx, "login succeeded",
		"user_id", identity.ID.String(),
		"session_id", session.ID.String(),
	)

	return &models.LoginResult{
		Identity:    identity,
		SessionID:   session.ID,
		AccessToken: accessToken,
		ExpiresAt:   now.Add(s.tokenTTL),
	}, nil
}

// Logout revokes the session behind the current token. Revoking a session
// that is already gone is not an error to the caller.
func (s *Service) Logout(ctx context.Context, sessionID id.SessionID) error {
	if sessionID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "no active session")
	}

	err := s.sessions.Revoke(ctx, sessionID, requestcontext.Now(ctx))
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) && !errors.Is(err, sentinel.ErrInvalidState) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "revoke session")
	}

	s.emitAudit(ctx, audit.Event{Action: audit.ActionLogout, UserID: requestcontext.UserID(ctx)})
	return nil
}

// CurrentIdentity resolves the authenticated identity from the request
// context. Returns nil without error when no user is authenticated, which
// the role reconciler treats as the unauthenticated variant.
func (s *Service) CurrentIdentity(ctx context.Context) (*models.Identity, error) {
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		return nil, nil
	}

	identity, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "identity lookup failed")
	}
	return identity, nil
}

// LookupByID fetches an identity by ID for collaborators that hold only a
// user reference.
func (s *Service) LookupByID(ctx context.Context, userID id.UserID) (*models.Identity, error) {
	identity, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "identity not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "identity lookup failed")
	}
	return identity, nil
}

// ResendConfirmation issues a fresh confirmation token for an unconfirmed
// identity. Always succeeds from the caller's perspective when the address
// is unknown, so the endpoint cannot be used to probe for accounts.
func (s *Service) ResendConfirmation(ctx context.Context, rawEmail string) (string, error) {
	address := email.Normalize(rawEmail)
	if address == "" {
		return "", dErrors.New(dErrors.CodeValidation, "email is required")
	}

	identity, err := s.users.FindByEmail(ctx, address)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", nil
		}
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "identity lookup failed")
	}
	if identity.EmailConfirmed {
		return "", nil
	}

	return s.tokens.GenerateConfirmToken(identity.ID, 24*time.Hour)
}

// ConfirmEmail validates a confirmation token and marks the identity
// confirmed. Idempotent for already-confirmed identities.
func (s *Service) ConfirmEmail(ctx context.Context, confirmToken string) error {
	claims, err := s.tokens.Validate(confirmToken, token.PurposeConfirm)
	if err != nil {
		return err
	}
	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return dErrors.New(dErrors.CodeUnauthorized, "invalid confirmation token")
	}

	if err := s.users.SetEmailConfirmed(ctx, userID, requestcontext.Now(ctx)); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "identity not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "confirm email")
	}
	return nil
}

// IsSessionActive satisfies the auth middleware's session check.
func (s *Service) IsSessionActive(ctx context.Context, sessionID id.SessionID) (bool, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return session.Active(requestcontext.Now(ctx)), nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", string(event.Action), "error", err)
	}
}
