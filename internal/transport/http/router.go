// Package http wires the engine's services into a chi router. Handlers are a
// thin shell: decode, delegate, encode.
package http

import (
	"context"
	"log/slog"
	"net/http"

	identityservice "sandoog/internal/identity/service"
	platformmetrics "sandoog/internal/platform/metrics"
	requestsservice "sandoog/internal/requests/service"
	rolesservice "sandoog/internal/roles/service"
	"sandoog/pkg/platform/httputil"
	authmw "sandoog/pkg/platform/middleware/auth"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Dependencies collects everything the router needs.
type Dependencies struct {
	Logger         *slog.Logger
	Metrics        *platformmetrics.Metrics
	Identities     *identityservice.Service
	Roles          *rolesservice.Service
	Requests       *requestsservice.Service
	TokenValidator authmw.TokenValidator

	// Health checks by dependency name, reported on /healthz.
	Health map[string]HealthCheck
}

// NewRouter builds the full route tree.
func NewRouter(deps Dependencies) chi.Router {
	authHandler := NewAuthHandler(deps.Identities, deps.Logger)
	rolesHandler := NewRolesHandler(deps.Roles, deps.Logger)
	requestsHandler := NewRequestsHandler(deps.Requests, deps.Logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestScope)
	if deps.Metrics != nil {
		r.Use(CountRequests(deps.Metrics))
	}

	r.Get("/healthz", healthHandler(deps.Health))
	r.Method(http.MethodGet, "/metrics", platformmetrics.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.Signup)
		r.Post("/login", authHandler.Login)
		r.Post("/resend-confirmation", authHandler.ResendConfirmation)
		r.Post("/confirm", authHandler.ConfirmEmail)
	})

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(deps.TokenValidator, deps.Identities, deps.Logger))

		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/me/role", rolesHandler.MyRole)

		r.Group(func(r chi.Router) {
			r.Use(RequireConfirmed(deps.Identities))

			r.Get("/admin-requests/eligibility", requestsHandler.Eligibility)
			r.Post("/admin-requests", requestsHandler.File)
			r.Get("/admin-requests/status", requestsHandler.Status)
			r.Post("/join-requests", requestsHandler.FileJoin)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireSiteMaster(deps.Roles))

			r.Get("/admin-requests/pending", requestsHandler.ListPending)
			r.Post("/admin-requests/{id}/approve", requestsHandler.Approve)
			r.Post("/admin-requests/{id}/reject", requestsHandler.Reject)
			r.Get("/join-requests/pending", requestsHandler.ListPendingJoins)
			r.Post("/join-requests/{id}/approve", requestsHandler.ApproveJoin)
			r.Post("/join-requests/{id}/reject", requestsHandler.RejectJoin)
			r.Post("/sitemaster/sync", rolesHandler.SyncPrivilege)
		})
	})

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := make(map[string]string, len(checks)+1)
		body["status"] = "ok"
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body[name] = err.Error()
				continue
			}
			body[name] = "ok"
		}
		httputil.WriteJSON(w, status, body)
	}
}
