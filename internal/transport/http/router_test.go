package http_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	identityservice "sandoog/internal/identity/service"
	sessionstore "sandoog/internal/identity/store/session"
	userstore "sandoog/internal/identity/store/user"
	"sandoog/internal/identity/token"
	requestsservice "sandoog/internal/requests/service"
	requeststore "sandoog/internal/requests/store"
	"sandoog/internal/roles/classifier"
	rolesservice "sandoog/internal/roles/service"
	rolestore "sandoog/internal/roles/store"
	transporthttp "sandoog/internal/transport/http"
	"sandoog/pkg/platform/audit"
	auditmem "sandoog/pkg/platform/audit/store/memory"
	"sandoog/pkg/testutil"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
)

const privilegedDomain = "privileged.co"

type RouterSuite struct {
	suite.Suite

	router chi.Router
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.DiscardHandler)
	rule := classifier.New(privilegedDomain)
	tokens := token.NewService("router-test-key", "sandoog-test")
	auditor := audit.NewPublisher(auditmem.New())

	identities := identityservice.NewService(userstore.New(), sessionstore.New(), tokens, auditor, logger)
	roleRecords := rolestore.NewInMemory()
	roles := rolesservice.NewService(identities, roleRecords, rule, auditor, nil, logger)
	requests := requestsservice.NewService(
		requeststore.NewInMemory(),
		roleRecords,
		rule,
		requestsservice.NewMemoryTxRunner(),
		auditor,
		nil,
		logger,
	)

	s.router = transporthttp.NewRouter(transporthttp.Dependencies{
		Logger:         logger,
		Identities:     identities,
		Roles:          roles,
		Requests:       requests,
		TokenValidator: token.NewMiddlewareAdapter(tokens),
	})
}

func (s *RouterSuite) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RouterSuite) doAuthed(req *http.Request, accessToken string) *httptest.ResponseRecorder {
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return s.do(req)
}

type signupBody struct {
	UserID       string `json:"user_id"`
	ConfirmToken string `json:"confirm_token"`
}

type loginBody struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
}

type roleBody struct {
	IsAuthenticated bool   `json:"is_authenticated"`
	IsAdmin         bool   `json:"is_admin"`
	IsSiteMaster    bool   `json:"is_site_master"`
	GroupID         string `json:"group_id"`
	Landing         string `json:"landing"`
}

// signup registers and confirms an identity, returning its id.
func (s *RouterSuite) signup(email string) string {
	rec := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/signup", map[string]string{
		"email": email, "password": "correct horse battery",
	}))
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	body := testutil.DecodeJSON[signupBody](s.T(), rec)

	rec = s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/confirm", map[string]string{
		"token": body.ConfirmToken,
	}))
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	return body.UserID
}

func (s *RouterSuite) login(email string) loginBody {
	rec := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login", map[string]string{
		"email": email, "password": "correct horse battery",
	}))
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	return testutil.DecodeJSON[loginBody](s.T(), rec)
}

// member signs up, confirms, logs in, and reconciles once so a role record
// exists. Returns the access token.
func (s *RouterSuite) member(email string) string {
	s.signup(email)
	accessToken := s.login(email).AccessToken
	rec := s.doAuthed(httptest.NewRequest(http.MethodGet, "/me/role", nil), accessToken)
	s.Require().Equal(http.StatusOK, rec.Code)
	return accessToken
}

func (s *RouterSuite) TestSignup() {
	s.Run("rejects a duplicate email", func() {
		s.signup("dup@example.com")
		rec := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/signup", map[string]string{
			"email": "dup@example.com", "password": "correct horse battery",
		}))
		s.Equal(http.StatusConflict, rec.Code)
	})

	s.Run("rejects malformed JSON", func() {
		req := httptest.NewRequest(http.MethodPost, "/auth/signup", nil)
		rec := s.do(req)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *RouterSuite) TestLogin() {
	s.signup("member@example.com")

	rec := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login", map[string]string{
		"email": "member@example.com", "password": "wrong password!",
	}))
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *RouterSuite) TestMyRole() {
	s.Run("requires a bearer token", func() {
		rec := s.do(httptest.NewRequest(http.MethodGet, "/me/role", nil))
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("plain member lands in the lobby", func() {
		accessToken := s.member("member@example.com")
		rec := s.doAuthed(httptest.NewRequest(http.MethodGet, "/me/role", nil), accessToken)
		s.Require().Equal(http.StatusOK, rec.Code)

		body := testutil.DecodeJSON[roleBody](s.T(), rec)
		s.True(body.IsAuthenticated)
		s.False(body.IsAdmin)
		s.Equal("lobby", body.Landing)
	})

	s.Run("privileged domain yields site master", func() {
		accessToken := s.member("ops@" + privilegedDomain)
		rec := s.doAuthed(httptest.NewRequest(http.MethodGet, "/me/role", nil), accessToken)
		s.Require().Equal(http.StatusOK, rec.Code)

		body := testutil.DecodeJSON[roleBody](s.T(), rec)
		s.True(body.IsSiteMaster)
		s.True(body.IsAdmin)
		s.Equal("site_master", body.Landing)
	})
}

func (s *RouterSuite) TestEmailConfirmationGate() {
	rec := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/signup", map[string]string{
		"email": "unconfirmed@example.com", "password": "correct horse battery",
	}))
	s.Require().Equal(http.StatusCreated, rec.Code)
	accessToken := s.login("unconfirmed@example.com").AccessToken

	rec = s.doAuthed(httptest.NewRequest(http.MethodGet, "/admin-requests/eligibility", nil), accessToken)
	s.Require().Equal(http.StatusForbidden, rec.Code)

	body := testutil.DecodeJSON[map[string]string](s.T(), rec)
	s.Equal("email_not_confirmed", body["error"])
}

func (s *RouterSuite) TestAdminRequestFlow() {
	memberToken := s.member("applicant@example.com")
	masterToken := s.member("ops@" + privilegedDomain)

	rec := s.doAuthed(httptest.NewRequest(http.MethodGet, "/admin-requests/eligibility", nil), memberToken)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.True(testutil.DecodeJSON[map[string]bool](s.T(), rec)["eligible"])

	rec = s.doAuthed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin-requests", map[string]string{
		"reason": "I keep the group ledger",
	}), memberToken)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	filed := testutil.DecodeJSON[map[string]any](s.T(), rec)
	requestID := filed["id"].(string)

	rec = s.doAuthed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin-requests", map[string]string{
		"reason": "again",
	}), memberToken)
	s.Equal(http.StatusConflict, rec.Code, "second filing must be blocked")

	rec = s.doAuthed(httptest.NewRequest(http.MethodGet, "/admin-requests/status", nil), memberToken)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("pending", testutil.DecodeJSON[map[string]any](s.T(), rec)["status"])

	rec = s.doAuthed(httptest.NewRequest(http.MethodGet, "/admin-requests/pending", nil), masterToken)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Len(testutil.DecodeJSON[[]map[string]any](s.T(), rec), 1)

	rec = s.doAuthed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin-requests/"+requestID+"/approve", nil), masterToken)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.doAuthed(httptest.NewRequest(http.MethodGet, "/me/role", nil), memberToken)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.True(testutil.DecodeJSON[roleBody](s.T(), rec).IsAdmin)

	rec = s.doAuthed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin-requests/"+requestID+"/approve", nil), masterToken)
	s.Equal(http.StatusConflict, rec.Code, "terminal requests are immutable")
}

func (s *RouterSuite) TestSiteMasterGuard() {
	memberToken := s.member("member@example.com")

	rec := s.doAuthed(httptest.NewRequest(http.MethodGet, "/admin-requests/pending", nil), memberToken)
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *RouterSuite) TestJoinRequestFlow() {
	memberToken := s.member("joiner@example.com")
	masterToken := s.member("ops@" + privilegedDomain)
	groupID := "0f0e7f62-58a1-4f4b-9f7e-3dd2b6fda001"

	rec := s.doAuthed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/join-requests", map[string]string{
		"group_id": groupID,
	}), memberToken)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	requestID := testutil.DecodeJSON[map[string]any](s.T(), rec)["id"].(string)

	rec = s.doAuthed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/join-requests/"+requestID+"/approve", nil), masterToken)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.doAuthed(httptest.NewRequest(http.MethodGet, "/me/role", nil), memberToken)
	s.Require().Equal(http.StatusOK, rec.Code)
	body := testutil.DecodeJSON[roleBody](s.T(), rec)
	s.Equal(groupID, body.GroupID)
	s.Equal("group", body.Landing)
}

func (s *RouterSuite) TestSyncPrivilege() {
	masterToken := s.member("ops@" + privilegedDomain)

	s.Run("already-elevated record needs no change", func() {
		memberID := s.signup("latecomer@" + privilegedDomain)
		latecomerToken := s.login("latecomer@" + privilegedDomain).AccessToken
		rec := s.doAuthed(httptest.NewRequest(http.MethodGet, "/me/role", nil), latecomerToken)
		s.Require().Equal(http.StatusOK, rec.Code)

		rec = s.doAuthed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/sitemaster/sync", map[string]string{
			"user_id": memberID,
		}), masterToken)
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
		s.False(testutil.DecodeJSON[map[string]bool](s.T(), rec)["changed"],
			"reconciliation already elevated the record")
	})

	s.Run("user without a role record is not found", func() {
		memberID := s.signup("norecord@" + privilegedDomain)

		rec := s.doAuthed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/sitemaster/sync", map[string]string{
			"user_id": memberID,
		}), masterToken)
		s.Equal(http.StatusNotFound, rec.Code)
	})

	s.Run("requires site master", func() {
		memberToken := s.member("plain@example.com")
		rec := s.doAuthed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/sitemaster/sync", map[string]string{}), memberToken)
		s.Equal(http.StatusForbidden, rec.Code)
	})
}

func (s *RouterSuite) TestLogout() {
	accessToken := s.member("leaver@example.com")

	rec := s.doAuthed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/logout", nil), accessToken)
	s.Require().Equal(http.StatusNoContent, rec.Code)

	rec = s.doAuthed(httptest.NewRequest(http.MethodGet, "/me/role", nil), accessToken)
	s.Equal(http.StatusUnauthorized, rec.Code, "revoked session must reject the token")
}

func (s *RouterSuite) TestHealthz() {
	rec := s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	s.Equal(http.StatusOK, rec.Code)
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}
