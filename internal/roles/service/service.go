// Package service implements role reconciliation: deriving a canonical role
// view from the identity's email and the persisted role record, and healing
// the record when the two disagree.
package service

import (
	"context"
	"errors"
	"log/slog"

	identitymodels "sandoog/internal/identity/models"
	"sandoog/internal/roles/classifier"
	"sandoog/internal/roles/metrics"
	"sandoog/internal/roles/models"
	"sandoog/internal/roles/store"
	id "sandoog/pkg/domain"
	dErrors "sandoog/pkg/domain-errors"
	"sandoog/pkg/email"
	"sandoog/pkg/platform/audit"
	"sandoog/pkg/platform/sentinel"
	"sandoog/pkg/requestcontext"
)

// IdentityProvider is the slice of the identity service the reconciler needs.
type IdentityProvider interface {
	CurrentIdentity(ctx context.Context) (*identitymodels.Identity, error)
	LookupByID(ctx context.Context, userID id.UserID) (*identitymodels.Identity, error)
}

// AuditPublisher records privilege corrections.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	identities IdentityProvider
	records    store.Store
	rule       classifier.Classifier
	auditor    AuditPublisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewService(identities IdentityProvider, records store.Store, rule classifier.Classifier, auditor AuditPublisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		identities: identities,
		records:    records,
		rule:       rule,
		auditor:    auditor,
		metrics:    m,
		logger:     logger,
	}
}

// ReconcileCurrent resolves the authenticated identity from context and
// reconciles it. An unauthenticated caller gets the zero view, not an error.
func (s *Service) ReconcileCurrent(ctx context.Context) (models.RoleView, error) {
	identity, err := s.identities.CurrentIdentity(ctx)
	if err != nil {
		return models.RoleView{}, err
	}
	return s.Reconcile(ctx, identity)
}

// Reconcile merges the identity's domain privilege with the persisted role
// record, creating or correcting the record as needed, and returns a fresh
// view. Store faults other than not-found degrade to an authenticated
// partial view carrying the fault; they never fail the caller.
func (s *Service) Reconcile(ctx context.Context, identity *identitymodels.Identity) (models.RoleView, error) {
	if identity == nil {
		s.metrics.ObserveReconciliation(metrics.OutcomeUnauthorized)
		return models.RoleView{}, nil
	}

	privileged := s.rule.Classify(identity.Email).PrivilegedDomain

	record, err := s.records.FindByID(ctx, identity.ID)
	switch {
	case err == nil:
		return s.reconcileExisting(ctx, identity, record, privileged), nil
	case errors.Is(err, sentinel.ErrNotFound):
		return s.createRecord(ctx, identity, privileged), nil
	default:
		return s.degrade(ctx, identity, privileged, err), nil
	}
}

func (s *Service) createRecord(ctx context.Context, identity *identitymodels.Identity, privileged bool) models.RoleView {
	now := requestcontext.Now(ctx)
	firstName, lastName := email.DeriveName(identity.Email)
	record := &models.RoleRecord{
		ID:           identity.ID,
		Email:        identity.Email,
		FirstName:    firstName,
		LastName:     lastName,
		IsAdmin:      privileged,
		IsSiteMaster: privileged,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.records.CreateIfAbsent(ctx, record)
	switch {
	case err == nil:
		s.metrics.ObserveReconciliation(metrics.OutcomeCreated)
		s.emitAudit(ctx, audit.Event{Action: audit.ActionRoleCreated, UserID: identity.ID})
		return s.view(identity, record, privileged)
	case errors.Is(err, sentinel.ErrConflict):
		// A concurrent reconciliation won the insert. Re-read rather than
		// overwrite: the winner may carry an elevation we must not clobber.
		existing, readErr := s.records.FindByID(ctx, identity.ID)
		if readErr != nil {
			return s.degrade(ctx, identity, privileged, readErr)
		}
		return s.reconcileExisting(ctx, identity, existing, privileged)
	default:
		return s.degrade(ctx, identity, privileged, err)
	}
}

func (s *Service) reconcileExisting(ctx context.Context, identity *identitymodels.Identity, record *models.RoleRecord, privileged bool) models.RoleView {
	if privileged && (!record.IsSiteMaster || !record.IsAdmin) {
		err := s.records.SetPrivilege(ctx, record.ID, true, true, requestcontext.Now(ctx))
		if err != nil {
			// The view below still forces the flags true; only the durable
			// correction is deferred to the next reconciliation.
			s.logger.WarnContext(ctx, "privilege correction failed",
				"user_id", record.ID.String(), "error", err)
			s.metrics.ObserveReconciliation(metrics.OutcomeCorrectionFailed)
		} else {
			s.metrics.ObserveReconciliation(metrics.OutcomeCorrected)
			s.emitAudit(ctx, audit.Event{Action: audit.ActionPrivilegeCorrected, UserID: record.ID})
		}
	} else {
		s.metrics.ObserveReconciliation(metrics.OutcomeUnchanged)
	}
	return s.view(identity, record, privileged)
}

// view assembles the role view from a record, forcing privilege flags true
// whenever the domain rule says so. The view never understates privilege.
func (s *Service) view(identity *identitymodels.Identity, record *models.RoleRecord, privileged bool) models.RoleView {
	return models.RoleView{
		IsAuthenticated: true,
		IsAdmin:         record.IsAdmin || privileged,
		IsSiteMaster:    record.IsSiteMaster || privileged,
		GroupID:         record.GroupID,
		UserID:          identity.ID,
		Email:           identity.Email,
	}
}

// degrade returns the best-known partial view with the fault attached.
// Authentication confirmed by the identity provider is never downgraded
// because of a role-store fault.
func (s *Service) degrade(ctx context.Context, identity *identitymodels.Identity, privileged bool, fault error) models.RoleView {
	s.metrics.ObserveReconciliation(metrics.OutcomeDegraded)
	s.logger.ErrorContext(ctx, "role store fault, returning degraded view",
		"user_id", identity.ID.String(), "error", fault)
	return models.RoleView{
		IsAuthenticated: true,
		IsAdmin:         privileged,
		IsSiteMaster:    privileged,
		UserID:          identity.ID,
		Email:           identity.Email,
		Fault:           fault,
	}
}

// SyncPrivilege re-applies the domain rule to one user's record on demand.
// Returns true when a corrective write was made.
func (s *Service) SyncPrivilege(ctx context.Context, userID id.UserID) (bool, error) {
	identity, err := s.identities.LookupByID(ctx, userID)
	if err != nil {
		return false, err
	}

	record, err := s.records.FindByID(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, dErrors.New(dErrors.CodeNotFound, "no role record for user")
		}
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "role record lookup failed")
	}

	privileged := s.rule.Classify(identity.Email).PrivilegedDomain
	if !privileged || (record.IsSiteMaster && record.IsAdmin) {
		return false, nil
	}

	if err := s.records.SetPrivilege(ctx, record.ID, true, true, requestcontext.Now(ctx)); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "privilege correction failed")
	}
	s.emitAudit(ctx, audit.Event{Action: audit.ActionPrivilegeCorrected, UserID: record.ID, ActorID: requestcontext.UserID(ctx)})
	return true, nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", string(event.Action), "error", err)
	}
}
