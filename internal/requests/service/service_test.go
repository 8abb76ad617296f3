package service_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"sandoog/internal/requests/models"
	"sandoog/internal/requests/service"
	"sandoog/internal/requests/store"
	"sandoog/internal/roles/classifier"
	rolemodels "sandoog/internal/roles/models"
	rolestore "sandoog/internal/roles/store"
	id "sandoog/pkg/domain"
	dErrors "sandoog/pkg/domain-errors"
	"sandoog/pkg/platform/audit"
	auditmem "sandoog/pkg/platform/audit/store/memory"
	"sandoog/pkg/requestcontext"

	"github.com/stretchr/testify/suite"
)

var errStoreDown = errors.New("store down")

// faultyLedger fails the latest-elevation read while delegating the rest.
type faultyLedger struct {
	store.Ledger
}

func (f *faultyLedger) LatestElevation(context.Context, id.UserID) (*models.ElevationRequest, error) {
	return nil, errStoreDown
}

// faultyRoleStore fails every read.
type faultyRoleStore struct {
	rolestore.Store
}

func (f *faultyRoleStore) FindByID(context.Context, id.UserID) (*rolemodels.RoleRecord, error) {
	return nil, errStoreDown
}

type WorkflowSuite struct {
	suite.Suite

	svc    *service.Service
	ledger *store.InMemoryLedger
	roles  *rolestore.InMemoryStore
	audits *auditmem.Store
	ctx    context.Context
	now    time.Time
}

func (s *WorkflowSuite) SetupTest() {
	s.ledger = store.NewInMemory()
	s.roles = rolestore.NewInMemory()
	s.audits = auditmem.New()
	s.now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.svc = s.newService(s.ledger, s.roles)
}

func (s *WorkflowSuite) newService(ledger store.Ledger, roles rolestore.Store) *service.Service {
	return service.NewService(
		ledger,
		roles,
		classifier.New("privileged.co"),
		service.NewMemoryTxRunner(),
		audit.NewPublisher(s.audits),
		nil,
		slog.New(slog.DiscardHandler),
	)
}

// member creates a plain role record and returns the user id.
func (s *WorkflowSuite) member(email string) id.UserID {
	userID := id.NewUserID()
	s.Require().NoError(s.roles.CreateIfAbsent(s.ctx, &rolemodels.RoleRecord{
		ID: userID, Email: email, CreatedAt: s.now,
	}))
	return userID
}

func (s *WorkflowSuite) TestCanRequestAdmin() {
	groupID := id.NewGroupID()

	tests := []struct {
		name     string
		record   *rolemodels.RoleRecord
		eligible bool
		reason   string
	}{
		{"clean member", &rolemodels.RoleRecord{Email: "m@pub.com"}, true, ""},
		{"no record yet", nil, true, ""},
		{"already admin", &rolemodels.RoleRecord{Email: "m@pub.com", IsAdmin: true}, false, "already an admin"},
		{"site master", &rolemodels.RoleRecord{Email: "m@pub.com", IsSiteMaster: true}, false, "already holds site-wide privilege"},
		{"admin who is also site master", &rolemodels.RoleRecord{Email: "m@pub.com", IsAdmin: true, IsSiteMaster: true}, false, "already an admin"},
		{"group member", &rolemodels.RoleRecord{Email: "m@pub.com", GroupID: &groupID}, false, ""},
		{"privileged domain", &rolemodels.RoleRecord{Email: "m@privileged.co"}, false, ""},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			userID := id.NewUserID()
			if tt.record != nil {
				record := *tt.record
				record.ID = userID
				record.CreatedAt = s.now
				s.Require().NoError(s.roles.CreateIfAbsent(s.ctx, &record))
			}

			eligibility, err := s.svc.CanRequestAdmin(s.ctx, userID)
			s.Require().NoError(err)
			s.Equal(tt.eligible, eligibility.Eligible)
			if !tt.eligible {
				s.NotEmpty(eligibility.Reason)
			}
			if tt.reason != "" {
				s.Equal(tt.reason, eligibility.Reason)
			}
		})
	}
}

func (s *WorkflowSuite) TestCanRequestAdminLedgerStates() {
	s.Run("pending request blocks and names the filing date", func() {
		userID := s.member("m@pub.com")
		_, err := s.svc.File(s.ctx, userID, "let me in")
		s.Require().NoError(err)

		eligibility, err := s.svc.CanRequestAdmin(s.ctx, userID)
		s.Require().NoError(err)
		s.False(eligibility.Eligible)
		s.Contains(eligibility.Reason, "1 March 2026")
	})

	s.Run("approved request blocks", func() {
		userID := s.member("n@pub.com")
		request, err := s.svc.File(s.ctx, userID, "let me in")
		s.Require().NoError(err)
		s.Require().NoError(s.svc.Approve(s.ctx, request.ID, id.NewUserID()))

		eligibility, err := s.svc.CanRequestAdmin(s.ctx, userID)
		s.Require().NoError(err)
		s.False(eligibility.Eligible)
	})

	s.Run("rejected request does not block", func() {
		userID := s.member("o@pub.com")
		request, err := s.svc.File(s.ctx, userID, "let me in")
		s.Require().NoError(err)
		s.Require().NoError(s.svc.Reject(s.ctx, request.ID, id.NewUserID()))

		eligibility, err := s.svc.CanRequestAdmin(s.ctx, userID)
		s.Require().NoError(err)
		s.True(eligibility.Eligible)
	})

	s.Run("pending join request blocks", func() {
		userID := s.member("p@pub.com")
		_, err := s.svc.FileJoin(s.ctx, userID, id.NewGroupID())
		s.Require().NoError(err)

		eligibility, err := s.svc.CanRequestAdmin(s.ctx, userID)
		s.Require().NoError(err)
		s.False(eligibility.Eligible)
	})
}

func (s *WorkflowSuite) TestCanRequestAdminFaultPolicy() {
	s.Run("ledger fault falls through", func() {
		svc := s.newService(&faultyLedger{Ledger: s.ledger}, s.roles)
		userID := s.member("m@pub.com")

		eligibility, err := svc.CanRequestAdmin(s.ctx, userID)
		s.Require().NoError(err)
		s.True(eligibility.Eligible)
	})

	s.Run("role record fault fails closed", func() {
		svc := s.newService(s.ledger, &faultyRoleStore{Store: s.roles})
		userID := id.NewUserID()

		eligibility, err := svc.CanRequestAdmin(s.ctx, userID)
		s.Require().NoError(err)
		s.False(eligibility.Eligible)
		s.Contains(eligibility.Reason, "could not be verified")
	})
}

func (s *WorkflowSuite) TestFile() {
	s.Run("creates a pending request then blocks a second filing", func() {
		userID := s.member("m@pub.com")

		request, err := s.svc.File(s.ctx, userID, "I run the books")
		s.Require().NoError(err)
		s.Equal(models.StatusPending, request.Status)
		s.Equal(s.now, request.RequestedAt)

		_, err = s.svc.File(s.ctx, userID, "again")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeIneligible))
		s.Contains(dErrors.MessageOf(err), "pending")
	})

	s.Run("rejects an empty reason", func() {
		userID := s.member("n@pub.com")
		_, err := s.svc.File(s.ctx, userID, "   ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects an ineligible user with the evaluator's reason", func() {
		userID := s.member("x@privileged.co")
		_, err := s.svc.File(s.ctx, userID, "unnecessary")
		s.True(dErrors.HasCode(err, dErrors.CodeIneligible))
		s.Contains(dErrors.MessageOf(err), "automatically")
	})

	s.Run("records an audit event", func() {
		userID := s.member("audited@pub.com")
		_, err := s.svc.File(s.ctx, userID, "reason")
		s.Require().NoError(err)

		events, err := s.audits.ListByUser(s.ctx, userID)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(audit.ActionRequestFiled, events[0].Action)
	})
}

func (s *WorkflowSuite) TestFileConcurrent() {
	userID := s.member("racer@pub.com")

	var wg sync.WaitGroup
	successes := make(chan struct{}, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.svc.File(s.ctx, userID, "race"); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	s.Len(successes, 1, "the ledger uniqueness rule must admit exactly one filing")
}

func (s *WorkflowSuite) TestApprove() {
	approverID := id.NewUserID()

	s.Run("grants admin and resolves the request atomically", func() {
		userID := s.member("m@pub.com")
		request, err := s.svc.File(s.ctx, userID, "reason")
		s.Require().NoError(err)

		s.Require().NoError(s.svc.Approve(s.ctx, request.ID, approverID))

		resolved, err := s.ledger.FindElevation(s.ctx, request.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, resolved.Status)
		s.Require().NotNil(resolved.RespondedBy)
		s.Equal(approverID, *resolved.RespondedBy)
		s.Require().NotNil(resolved.RespondedAt)

		record, err := s.roles.FindByID(s.ctx, userID)
		s.Require().NoError(err)
		s.True(record.IsAdmin)

		eligibility, err := s.svc.CanRequestAdmin(s.ctx, userID)
		s.Require().NoError(err)
		s.False(eligibility.Eligible)
	})

	s.Run("unknown request is not found", func() {
		err := s.svc.Approve(s.ctx, id.NewRequestID(), approverID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("resolved request is immutable", func() {
		userID := s.member("n@pub.com")
		request, err := s.svc.File(s.ctx, userID, "reason")
		s.Require().NoError(err)
		s.Require().NoError(s.svc.Reject(s.ctx, request.ID, approverID))

		err = s.svc.Approve(s.ctx, request.ID, approverID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		resolved, err := s.ledger.FindElevation(s.ctx, request.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, resolved.Status)
	})

	s.Run("missing role record surfaces the fault and keeps the request pending", func() {
		orphan := id.NewUserID()
		s.Require().NoError(s.ledger.InsertElevation(s.ctx, &models.ElevationRequest{
			ID: id.NewRequestID(), UserID: orphan, Reason: "r",
			Status: models.StatusPending, RequestedAt: s.now,
		}))
		pending, err := s.ledger.LatestElevation(s.ctx, orphan)
		s.Require().NoError(err)

		err = s.svc.Approve(s.ctx, pending.ID, approverID)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

		// A failed role effect must not leave the request terminal.
		unresolved, err := s.ledger.FindElevation(s.ctx, pending.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, unresolved.Status)
		s.Nil(unresolved.RespondedBy)
	})
}

func (s *WorkflowSuite) TestReject() {
	userID := s.member("m@pub.com")
	responderID := id.NewUserID()
	request, err := s.svc.File(s.ctx, userID, "reason")
	s.Require().NoError(err)

	s.Run("resolves without a role effect", func() {
		s.Require().NoError(s.svc.Reject(s.ctx, request.ID, responderID))

		record, err := s.roles.FindByID(s.ctx, userID)
		s.Require().NoError(err)
		s.False(record.IsAdmin)
	})

	s.Run("is terminal", func() {
		err := s.svc.Reject(s.ctx, request.ID, responderID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *WorkflowSuite) TestFileJoin() {
	groupID := id.NewGroupID()

	s.Run("creates a pending join request", func() {
		userID := s.member("m@pub.com")
		request, err := s.svc.FileJoin(s.ctx, userID, groupID)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, request.Status)
		s.Equal(groupID, request.GroupID)

		_, err = s.svc.FileJoin(s.ctx, userID, groupID)
		s.True(dErrors.HasCode(err, dErrors.CodeIneligible))
	})

	s.Run("rejects a member of a group", func() {
		userID := id.NewUserID()
		existing := id.NewGroupID()
		s.Require().NoError(s.roles.CreateIfAbsent(s.ctx, &rolemodels.RoleRecord{
			ID: userID, Email: "g@pub.com", GroupID: &existing, CreatedAt: s.now,
		}))

		_, err := s.svc.FileJoin(s.ctx, userID, groupID)
		s.True(dErrors.HasCode(err, dErrors.CodeIneligible))
	})

	s.Run("rejects a nil group", func() {
		userID := s.member("n@pub.com")
		_, err := s.svc.FileJoin(s.ctx, userID, id.GroupID{})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *WorkflowSuite) TestApproveJoin() {
	groupID := id.NewGroupID()
	approverID := id.NewUserID()

	s.Run("assigns the group and resolves the request", func() {
		userID := s.member("m@pub.com")
		request, err := s.svc.FileJoin(s.ctx, userID, groupID)
		s.Require().NoError(err)

		s.Require().NoError(s.svc.ApproveJoin(s.ctx, request.ID, approverID))

		record, err := s.roles.FindByID(s.ctx, userID)
		s.Require().NoError(err)
		s.Require().NotNil(record.GroupID)
		s.Equal(groupID, *record.GroupID)

		eligibility, err := s.svc.CanRequestAdmin(s.ctx, userID)
		s.Require().NoError(err)
		s.False(eligibility.Eligible, "group membership excludes the admin role")
	})

	s.Run("reject leaves the record untouched", func() {
		userID := s.member("n@pub.com")
		request, err := s.svc.FileJoin(s.ctx, userID, groupID)
		s.Require().NoError(err)

		s.Require().NoError(s.svc.RejectJoin(s.ctx, request.ID, approverID))

		record, err := s.roles.FindByID(s.ctx, userID)
		s.Require().NoError(err)
		s.Nil(record.GroupID)
	})

	s.Run("failed assignment keeps the request pending", func() {
		orphan := id.NewUserID()
		requestID := id.NewRequestID()
		s.Require().NoError(s.ledger.InsertJoin(s.ctx, &models.JoinRequest{
			ID: requestID, UserID: orphan, GroupID: groupID,
			Status: models.StatusPending, RequestedAt: s.now,
		}))

		err := s.svc.ApproveJoin(s.ctx, requestID, approverID)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

		unresolved, err := s.ledger.FindJoin(s.ctx, requestID)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, unresolved.Status)
	})
}

func (s *WorkflowSuite) TestStatus() {
	userID := s.member("m@pub.com")

	s.Run("nil when never filed", func() {
		request, err := s.svc.Status(s.ctx, userID)
		s.Require().NoError(err)
		s.Nil(request)
	})

	s.Run("reports the most recent request", func() {
		filed, err := s.svc.File(s.ctx, userID, "reason")
		s.Require().NoError(err)

		request, err := s.svc.Status(s.ctx, userID)
		s.Require().NoError(err)
		s.Require().NotNil(request)
		s.Equal(filed.ID, request.ID)
		s.Equal(models.StatusPending, request.Status)
	})
}

func (s *WorkflowSuite) TestListPending() {
	first := s.member("first@pub.com")
	second := s.member("second@pub.com")

	earlier := requestcontext.WithTime(context.Background(), s.now.Add(-time.Hour))
	_, err := s.svc.File(earlier, first, "earlier")
	s.Require().NoError(err)
	_, err = s.svc.File(s.ctx, second, "later")
	s.Require().NoError(err)

	pending, err := s.svc.ListPending(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(first, pending[0].UserID, "oldest first")
	s.Equal(second, pending[1].UserID)
}

func TestWorkflowSuite(t *testing.T) {
	suite.Run(t, new(WorkflowSuite))
}
