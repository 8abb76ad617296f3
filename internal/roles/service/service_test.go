package service_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	identitymodels "sandoog/internal/identity/models"
	"sandoog/internal/roles/classifier"
	"sandoog/internal/roles/metrics"
	"sandoog/internal/roles/models"
	"sandoog/internal/roles/service"
	"sandoog/internal/roles/service/mocks"
	"sandoog/internal/roles/store"
	id "sandoog/pkg/domain"
	dErrors "sandoog/pkg/domain-errors"
	"sandoog/pkg/platform/audit"
	auditmem "sandoog/pkg/platform/audit/store/memory"
	"sandoog/pkg/platform/sentinel"
	"sandoog/pkg/requestcontext"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

var errStoreDown = errors.New("store down")

// faultyStore fails selected operations while delegating the rest.
type faultyStore struct {
	store.Store
	failFind         bool
	failSetPrivilege bool
}

func (f *faultyStore) FindByID(ctx context.Context, userID id.UserID) (*models.RoleRecord, error) {
	if f.failFind {
		return nil, errStoreDown
	}
	return f.Store.FindByID(ctx, userID)
}

func (f *faultyStore) SetPrivilege(ctx context.Context, userID id.UserID, isAdmin, isSiteMaster bool, at time.Time) error {
	if f.failSetPrivilege {
		return errStoreDown
	}
	return f.Store.SetPrivilege(ctx, userID, isAdmin, isSiteMaster, at)
}

// racingStore makes the first FindByID miss while the insert conflicts, the
// shape two concurrent reconciliations produce.
type racingStore struct {
	store.Store
	missedOnce bool
}

func (r *racingStore) FindByID(ctx context.Context, userID id.UserID) (*models.RoleRecord, error) {
	if !r.missedOnce {
		r.missedOnce = true
		return nil, sentinel.ErrNotFound
	}
	return r.Store.FindByID(ctx, userID)
}

func (r *racingStore) CreateIfAbsent(context.Context, *models.RoleRecord) error {
	return sentinel.ErrConflict
}

type ReconcilerSuite struct {
	suite.Suite

	ctrl       *gomock.Controller
	identities *mocks.MockIdentityProvider
	records    *store.InMemoryStore
	audits     *auditmem.Store
	ctx        context.Context
	now        time.Time
}

func (s *ReconcilerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.identities = mocks.NewMockIdentityProvider(s.ctrl)
	s.records = store.NewInMemory()
	s.audits = auditmem.New()
	s.now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *ReconcilerSuite) newService(records store.Store) *service.Service {
	return service.NewService(
		s.identities,
		records,
		classifier.New("privileged.co"),
		audit.NewPublisher(s.audits),
		nil,
		slog.New(slog.DiscardHandler),
	)
}

func identity(email string) *identitymodels.Identity {
	return &identitymodels.Identity{ID: id.NewUserID(), Email: email}
}

func (s *ReconcilerSuite) TestReconcileFreshPublicIdentity() {
	svc := s.newService(s.records)
	user := identity("a@pub.com")

	view, err := svc.Reconcile(s.ctx, user)
	s.Require().NoError(err)

	s.True(view.IsAuthenticated)
	s.False(view.IsAdmin)
	s.False(view.IsSiteMaster)
	s.Nil(view.GroupID)
	s.NoError(view.Fault)

	record, err := s.records.FindByID(s.ctx, user.ID)
	s.Require().NoError(err)
	s.False(record.IsAdmin)
	s.False(record.IsSiteMaster)
	s.Equal("a@pub.com", record.Email)
}

func (s *ReconcilerSuite) TestReconcileFreshPrivilegedIdentity() {
	svc := s.newService(s.records)
	user := identity("x@privileged.co")

	view, err := svc.Reconcile(s.ctx, user)
	s.Require().NoError(err)
	s.True(view.IsAdmin)
	s.True(view.IsSiteMaster)

	record, err := s.records.FindByID(s.ctx, user.ID)
	s.Require().NoError(err)
	s.True(record.IsAdmin)
	s.True(record.IsSiteMaster)
}

func (s *ReconcilerSuite) TestReconcileCorrectsUnderstatedRecord() {
	svc := s.newService(s.records)
	user := identity("x@privileged.co")
	s.Require().NoError(s.records.CreateIfAbsent(s.ctx, &models.RoleRecord{
		ID: user.ID, Email: user.Email, CreatedAt: s.now,
	}))

	view, err := svc.Reconcile(s.ctx, user)
	s.Require().NoError(err)
	s.True(view.IsAdmin)
	s.True(view.IsSiteMaster)

	record, err := s.records.FindByID(s.ctx, user.ID)
	s.Require().NoError(err)
	s.True(record.IsAdmin)
	s.True(record.IsSiteMaster)

	events, err := s.audits.ListByUser(s.ctx, user.ID)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(audit.ActionPrivilegeCorrected, events[0].Action)
}

func (s *ReconcilerSuite) TestReconcileIsIdempotent() {
	svc := s.newService(s.records)
	user := identity("x@privileged.co")

	for range 5 {
		view, err := svc.Reconcile(s.ctx, user)
		s.Require().NoError(err)
		s.True(view.IsAdmin)
		s.True(view.IsSiteMaster)
	}
}

func (s *ReconcilerSuite) TestReconcileNonPrivilegedPassthrough() {
	svc := s.newService(s.records)
	user := identity("member@pub.com")
	groupID := id.NewGroupID()
	s.Require().NoError(s.records.CreateIfAbsent(s.ctx, &models.RoleRecord{
		ID: user.ID, Email: user.Email, IsAdmin: true, GroupID: &groupID, CreatedAt: s.now,
	}))

	view, err := svc.Reconcile(s.ctx, user)
	s.Require().NoError(err)
	s.True(view.IsAdmin)
	s.False(view.IsSiteMaster)
	s.Require().NotNil(view.GroupID)
	s.Equal(groupID, *view.GroupID)

	record, err := s.records.FindByID(s.ctx, user.ID)
	s.Require().NoError(err)
	s.True(record.IsAdmin)
	s.False(record.IsSiteMaster)
	s.Require().NotNil(record.GroupID)
}

func (s *ReconcilerSuite) TestReconcileUnauthenticated() {
	svc := s.newService(s.records)

	view, err := svc.Reconcile(s.ctx, nil)
	s.Require().NoError(err)
	s.False(view.IsAuthenticated)
	s.False(view.IsAdmin)
	s.False(view.IsSiteMaster)
}

func (s *ReconcilerSuite) TestReconcileInsertConflictDoesNotClobber() {
	user := identity("member@pub.com")
	s.Require().NoError(s.records.CreateIfAbsent(s.ctx, &models.RoleRecord{
		ID: user.ID, Email: user.Email, IsAdmin: true, CreatedAt: s.now,
	}))
	svc := s.newService(&racingStore{Store: s.records})

	view, err := svc.Reconcile(s.ctx, user)
	s.Require().NoError(err)
	s.True(view.IsAdmin, "the concurrent winner's elevation must survive")

	record, err := s.records.FindByID(s.ctx, user.ID)
	s.Require().NoError(err)
	s.True(record.IsAdmin)
}

func (s *ReconcilerSuite) TestReconcileDegradesOnStoreFault() {
	svc := s.newService(&faultyStore{Store: s.records, failFind: true})
	user := identity("member@pub.com")

	view, err := svc.Reconcile(s.ctx, user)
	s.Require().NoError(err)
	s.True(view.IsAuthenticated, "store fault must not downgrade authentication")
	s.False(view.IsAdmin)
	s.True(view.Degraded())
	s.ErrorIs(view.Fault, errStoreDown)
}

func (s *ReconcilerSuite) TestReconcileDegradedViewKeepsDomainPrivilege() {
	svc := s.newService(&faultyStore{Store: s.records, failFind: true})

	view, err := svc.Reconcile(s.ctx, identity("x@privileged.co"))
	s.Require().NoError(err)
	s.True(view.IsSiteMaster)
	s.True(view.Degraded())
}

func (s *ReconcilerSuite) TestReconcileViewNeverUnderstatesPrivilege() {
	user := identity("x@privileged.co")
	s.Require().NoError(s.records.CreateIfAbsent(s.ctx, &models.RoleRecord{
		ID: user.ID, Email: user.Email, CreatedAt: s.now,
	}))
	svc := s.newService(&faultyStore{Store: s.records, failSetPrivilege: true})

	view, err := svc.Reconcile(s.ctx, user)
	s.Require().NoError(err)
	s.True(view.IsAdmin)
	s.True(view.IsSiteMaster)
}

func (s *ReconcilerSuite) TestCorrectionMetricCountsDurableWritesOnly() {
	m := metrics.NewWith(prometheus.NewRegistry())
	user := identity("x@privileged.co")
	s.Require().NoError(s.records.CreateIfAbsent(s.ctx, &models.RoleRecord{
		ID: user.ID, Email: user.Email, CreatedAt: s.now,
	}))

	broken := service.NewService(
		s.identities,
		&faultyStore{Store: s.records, failSetPrivilege: true},
		classifier.New("privileged.co"),
		audit.NewPublisher(s.audits),
		m,
		slog.New(slog.DiscardHandler),
	)
	_, err := broken.Reconcile(s.ctx, user)
	s.Require().NoError(err)
	s.Zero(testutil.ToFloat64(m.Reconciliations.WithLabelValues(metrics.OutcomeCorrected)))
	s.Equal(1.0, testutil.ToFloat64(m.Reconciliations.WithLabelValues(metrics.OutcomeCorrectionFailed)))

	healthy := service.NewService(
		s.identities,
		s.records,
		classifier.New("privileged.co"),
		audit.NewPublisher(s.audits),
		m,
		slog.New(slog.DiscardHandler),
	)
	_, err = healthy.Reconcile(s.ctx, user)
	s.Require().NoError(err)
	s.Equal(1.0, testutil.ToFloat64(m.Reconciliations.WithLabelValues(metrics.OutcomeCorrected)))
}

func (s *ReconcilerSuite) TestReconcileCurrent() {
	svc := s.newService(s.records)

	s.Run("authenticated", func() {
		user := identity("a@pub.com")
		s.identities.EXPECT().CurrentIdentity(gomock.Any()).Return(user, nil)

		view, err := svc.ReconcileCurrent(s.ctx)
		s.Require().NoError(err)
		s.True(view.IsAuthenticated)
		s.Equal(user.ID, view.UserID)
	})

	s.Run("unauthenticated", func() {
		s.identities.EXPECT().CurrentIdentity(gomock.Any()).Return(nil, nil)

		view, err := svc.ReconcileCurrent(s.ctx)
		s.Require().NoError(err)
		s.False(view.IsAuthenticated)
	})

	s.Run("provider fault propagates", func() {
		s.identities.EXPECT().CurrentIdentity(gomock.Any()).Return(nil, errStoreDown)

		_, err := svc.ReconcileCurrent(s.ctx)
		s.ErrorIs(err, errStoreDown)
	})
}

func (s *ReconcilerSuite) TestSyncPrivilege() {
	svc := s.newService(s.records)

	s.Run("corrects an understated privileged record", func() {
		user := identity("x@privileged.co")
		s.Require().NoError(s.records.CreateIfAbsent(s.ctx, &models.RoleRecord{
			ID: user.ID, Email: user.Email, CreatedAt: s.now,
		}))
		s.identities.EXPECT().LookupByID(gomock.Any(), user.ID).Return(user, nil)

		changed, err := svc.SyncPrivilege(s.ctx, user.ID)
		s.Require().NoError(err)
		s.True(changed)

		record, err := s.records.FindByID(s.ctx, user.ID)
		s.Require().NoError(err)
		s.True(record.IsSiteMaster)
	})

	s.Run("no-op for a non-privileged user", func() {
		user := identity("a@pub.com")
		s.Require().NoError(s.records.CreateIfAbsent(s.ctx, &models.RoleRecord{
			ID: user.ID, Email: user.Email, CreatedAt: s.now,
		}))
		s.identities.EXPECT().LookupByID(gomock.Any(), user.ID).Return(user, nil)

		changed, err := svc.SyncPrivilege(s.ctx, user.ID)
		s.Require().NoError(err)
		s.False(changed)
	})

	s.Run("no-op when already fully elevated", func() {
		user := identity("y@privileged.co")
		s.Require().NoError(s.records.CreateIfAbsent(s.ctx, &models.RoleRecord{
			ID: user.ID, Email: user.Email, IsAdmin: true, IsSiteMaster: true, CreatedAt: s.now,
		}))
		s.identities.EXPECT().LookupByID(gomock.Any(), user.ID).Return(user, nil)

		changed, err := svc.SyncPrivilege(s.ctx, user.ID)
		s.Require().NoError(err)
		s.False(changed)
	})

	s.Run("missing record is not found", func() {
		user := identity("z@privileged.co")
		s.identities.EXPECT().LookupByID(gomock.Any(), user.ID).Return(user, nil)

		_, err := svc.SyncPrivilege(s.ctx, user.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestReconcilerSuite(t *testing.T) {
	suite.Run(t, new(ReconcilerSuite))
}
