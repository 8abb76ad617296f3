// Package service implements the eligibility evaluator and the request
// workflow: filing elevation and group-join petitions, gating them on
// eligibility, and adjudicating them with transactional role effects.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"sandoog/internal/requests/metrics"
	"sandoog/internal/requests/models"
	"sandoog/internal/requests/store"
	"sandoog/internal/roles/classifier"
	rolestore "sandoog/internal/roles/store"
	id "sandoog/pkg/domain"
	dErrors "sandoog/pkg/domain-errors"
	"sandoog/pkg/platform/audit"
	"sandoog/pkg/platform/sentinel"
	"sandoog/pkg/requestcontext"
)

// TxRunner brackets a function in a transaction. The implementation carries
// the transaction on the context so every store touched inside fn joins it.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// AuditPublisher records ledger transitions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	ledger  store.Ledger
	roles   rolestore.Store
	rule    classifier.Classifier
	tx      TxRunner
	auditor AuditPublisher
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewService(ledger store.Ledger, roles rolestore.Store, rule classifier.Classifier, tx TxRunner, auditor AuditPublisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		ledger:  ledger,
		roles:   roles,
		rule:    rule,
		tx:      tx,
		auditor: auditor,
		metrics: m,
		logger:  logger,
	}
}

// Eligibility reasons. User-facing.
const (
	reasonAlreadyApproved = "a previous elevation request was already approved"
	reasonPrivileged      = "privileged users are elevated automatically; no request is needed"
	reasonAlreadyAdmin    = "already an admin"
	reasonSiteMaster      = "already holds site-wide privilege"
	reasonInGroup         = "group membership is mutually exclusive with the admin role"
	reasonPendingJoin     = "a group join request is still pending"
	reasonUnverifiable    = "eligibility could not be verified, try again later"
)

// CanRequestAdmin runs the ordered eligibility checks; the first failing
// check wins. A ledger fault falls through to the remaining checks, a role
// record fault that is not not-found fails closed.
func (s *Service) CanRequestAdmin(ctx context.Context, userID id.UserID) (models.Eligibility, error) {
	latest, err := s.ledger.LatestElevation(ctx, userID)
	switch {
	case err == nil:
		switch latest.Status {
		case models.StatusPending:
			return ineligible(fmt.Sprintf(
				"an elevation request filed on %s is still pending",
				latest.RequestedAt.Format("2 January 2006"),
			)), nil
		case models.StatusApproved:
			return ineligible(reasonAlreadyApproved), nil
		}
	case errors.Is(err, sentinel.ErrNotFound):
		// No prior requests. Continue.
	default:
		// A missing ledger must not block a new user.
		s.logger.WarnContext(ctx, "ledger check failed, continuing",
			"user_id", userID.String(), "error", err)
	}

	record, err := s.roles.FindByID(ctx, userID)
	switch {
	case err == nil:
		if s.rule.Classify(record.Email).PrivilegedDomain {
			return ineligible(reasonPrivileged), nil
		}
		if record.IsAdmin {
			return ineligible(reasonAlreadyAdmin), nil
		}
		if record.IsSiteMaster {
			return ineligible(reasonSiteMaster), nil
		}
		if record.GroupID != nil {
			return ineligible(reasonInGroup), nil
		}
	case errors.Is(err, sentinel.ErrNotFound):
		// New user without a record yet. Continue.
	default:
		// Cannot tell a new user from an elevated one. Fail closed.
		s.logger.ErrorContext(ctx, "role record check failed, denying",
			"user_id", userID.String(), "error", err)
		return ineligible(reasonUnverifiable), nil
	}

	pending, err := s.ledger.CountPendingJoins(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "join request check failed, continuing",
			"user_id", userID.String(), "error", err)
	} else if pending > 0 {
		return ineligible(reasonPendingJoin), nil
	}

	return models.Eligibility{Eligible: true}, nil
}

func ineligible(reason string) models.Eligibility {
	return models.Eligibility{Reason: reason}
}

// File appends a pending elevation request, gated on CanRequestAdmin. The
// ledger's pending-uniqueness constraint is the backstop for the race where
// two filings pass the gate together.
func (s *Service) File(ctx context.Context, userID id.UserID, reason string) (*models.ElevationRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "a reason is required")
	}

	eligibility, err := s.CanRequestAdmin(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !eligibility.Eligible {
		s.metrics.ObserveDenial()
		return nil, dErrors.New(dErrors.CodeIneligible, eligibility.Reason)
	}

	request := &models.ElevationRequest{
		ID:          id.NewRequestID(),
		UserID:      userID,
		Reason:      reason,
		Status:      models.StatusPending,
		RequestedAt: requestcontext.Now(ctx),
	}
	if err := s.ledger.InsertElevation(ctx, request); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "an elevation request is already pending")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "file elevation request")
	}

	s.metrics.ObserveRequest(metrics.KindElevation, metrics.ActionFiled)
	s.emitAudit(ctx, audit.Event{Action: audit.ActionRequestFiled, UserID: userID, Reason: reason})
	return request, nil
}

// FileJoin appends a pending join request. Gated on the user not already
// belonging to a group and having no pending join request.
func (s *Service) FileJoin(ctx context.Context, userID id.UserID, groupID id.GroupID) (*models.JoinRequest, error) {
	if groupID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "a group is required")
	}

	record, err := s.roles.FindByID(ctx, userID)
	switch {
	case err == nil:
		if record.GroupID != nil {
			return nil, dErrors.New(dErrors.CodeIneligible, "already a member of a group")
		}
	case errors.Is(err, sentinel.ErrNotFound):
		// New user without a record yet; the approval effect requires one,
		// so the record must exist before adjudication.
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "role record lookup failed")
	}

	pending, err := s.ledger.CountPendingJoins(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "join request lookup failed")
	}
	if pending > 0 {
		return nil, dErrors.New(dErrors.CodeIneligible, reasonPendingJoin)
	}

	request := &models.JoinRequest{
		ID:          id.NewRequestID(),
		UserID:      userID,
		GroupID:     groupID,
		Status:      models.StatusPending,
		RequestedAt: requestcontext.Now(ctx),
	}
	if err := s.ledger.InsertJoin(ctx, request); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "a join request is already pending")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "file join request")
	}

	s.metrics.ObserveRequest(metrics.KindJoin, metrics.ActionFiled)
	s.emitAudit(ctx, audit.Event{Action: audit.ActionRequestFiled, UserID: userID})
	return request, nil
}

// Approve transitions a pending elevation request to approved and grants the
// admin flag, both inside one transaction. Neither effect is ever visible
// without the other.
func (s *Service) Approve(ctx context.Context, requestID id.RequestID, approverID id.UserID) error {
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		request, err := s.ledger.FindElevation(txCtx, requestID)
		if err != nil {
			return resolveGuard(err)
		}
		if request.Status.Resolved() {
			return dErrors.New(dErrors.CodeConflict, "request already resolved")
		}

		// Role effect first: the resolve cannot fail after the pending
		// check, so a failed grant leaves the request pending on runners
		// without rollback.
		now := requestcontext.Now(txCtx)
		if err := s.roles.GrantAdmin(txCtx, request.UserID, now); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "apply role effect")
		}
		if err := s.ledger.ResolveElevation(txCtx, requestID, models.StatusApproved, approverID, now); err != nil {
			return resolveGuard(err)
		}
		return s.emitAudit(txCtx, audit.Event{
			Action:  audit.ActionRequestApproved,
			UserID:  request.UserID,
			ActorID: approverID,
		})
	})
	if err != nil {
		return err
	}
	s.metrics.ObserveRequest(metrics.KindElevation, metrics.ActionApproved)
	return nil
}

// Reject transitions a pending elevation request to rejected. No role effect.
func (s *Service) Reject(ctx context.Context, requestID id.RequestID, responderID id.UserID) error {
	request, err := s.ledger.FindElevation(ctx, requestID)
	if err != nil {
		return resolveGuard(err)
	}
	if request.Status.Resolved() {
		return dErrors.New(dErrors.CodeConflict, "request already resolved")
	}

	if err := s.ledger.ResolveElevation(ctx, requestID, models.StatusRejected, responderID, requestcontext.Now(ctx)); err != nil {
		return resolveGuard(err)
	}

	s.metrics.ObserveRequest(metrics.KindElevation, metrics.ActionRejected)
	s.emitAudit(ctx, audit.Event{
		Action:  audit.ActionRequestRejected,
		UserID:  request.UserID,
		ActorID: responderID,
	})
	return nil
}

// ApproveJoin is the join-request variant of Approve: status transition plus
// group assignment in one transaction.
func (s *Service) ApproveJoin(ctx context.Context, requestID id.RequestID, approverID id.UserID) error {
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		request, err := s.ledger.FindJoin(txCtx, requestID)
		if err != nil {
			return resolveGuard(err)
		}
		if request.Status.Resolved() {
			return dErrors.New(dErrors.CodeConflict, "request already resolved")
		}

		now := requestcontext.Now(txCtx)
		if err := s.roles.AssignGroup(txCtx, request.UserID, request.GroupID, now); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "apply role effect")
		}
		if err := s.ledger.ResolveJoin(txCtx, requestID, models.StatusApproved, approverID, now); err != nil {
			return resolveGuard(err)
		}
		return s.emitAudit(txCtx, audit.Event{
			Action:  audit.ActionRequestApproved,
			UserID:  request.UserID,
			ActorID: approverID,
		})
	})
	if err != nil {
		return err
	}
	s.metrics.ObserveRequest(metrics.KindJoin, metrics.ActionApproved)
	return nil
}

// RejectJoin transitions a pending join request to rejected.
func (s *Service) RejectJoin(ctx context.Context, requestID id.RequestID, responderID id.UserID) error {
	request, err := s.ledger.FindJoin(ctx, requestID)
	if err != nil {
		return resolveGuard(err)
	}
	if request.Status.Resolved() {
		return dErrors.New(dErrors.CodeConflict, "request already resolved")
	}

	if err := s.ledger.ResolveJoin(ctx, requestID, models.StatusRejected, responderID, requestcontext.Now(ctx)); err != nil {
		return resolveGuard(err)
	}

	s.metrics.ObserveRequest(metrics.KindJoin, metrics.ActionRejected)
	s.emitAudit(ctx, audit.Event{
		Action:  audit.ActionRequestRejected,
		UserID:  request.UserID,
		ActorID: responderID,
	})
	return nil
}

// Status returns the user's most recent elevation request, or nil when none
// has ever been filed.
func (s *Service) Status(ctx context.Context, userID id.UserID) (*models.ElevationRequest, error) {
	request, err := s.ledger.LatestElevation(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "request lookup failed")
	}
	return request, nil
}

// ListPending is the responder work queue, oldest first.
func (s *Service) ListPending(ctx context.Context) ([]models.ElevationRequest, error) {
	requests, err := s.ledger.ListPendingElevations(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "list pending requests")
	}
	return requests, nil
}

// ListPendingJoins is the join-request work queue, oldest first.
func (s *Service) ListPendingJoins(ctx context.Context) ([]models.JoinRequest, error) {
	requests, err := s.ledger.ListPendingJoins(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "list pending join requests")
	}
	return requests, nil
}

func resolveGuard(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "request not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeConflict, "request already resolved")
	default:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "request ledger fault")
	}
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) error {
	if s.auditor == nil {
		return nil
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		// Outside a transaction this is advisory; inside one the runner
		// rolls the decision back with the audit row.
		s.logger.WarnContext(ctx, "audit emit failed", "action", string(event.Action), "error", err)
		return err
	}
	return nil
}
