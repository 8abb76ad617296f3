package http

import (
	"fmt"
	"net/http"
	"time"

	identityservice "sandoog/internal/identity/service"
	platformmetrics "sandoog/internal/platform/metrics"
	rolesservice "sandoog/internal/roles/service"
	dErrors "sandoog/pkg/domain-errors"
	"sandoog/pkg/platform/httputil"
	"sandoog/pkg/requestcontext"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// RequestScope stamps each request with its ID and arrival time so services
// read one consistent clock per request.
func RequestScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = requestcontext.WithRequestID(ctx, chimiddleware.GetReqID(ctx))
		ctx = requestcontext.WithTime(ctx, time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CountRequests records one counter increment per request, labelled by chi
// route pattern and status class.
func CountRequests(m *platformmetrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			m.HTTPRequests.WithLabelValues(route, fmt.Sprintf("%dxx", ww.Status()/100)).Inc()
		})
	}
}

// RequireConfirmed gates an operation on the identity having confirmed its
// email address. Runs after RequireAuth.
func RequireConfirmed(identities *identityservice.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := identities.CurrentIdentity(r.Context())
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			if identity == nil {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "not authenticated"))
				return
			}
			if !identity.EmailConfirmed {
				httputil.WriteJSON(w, http.StatusForbidden, map[string]string{
					"error":             "email_not_confirmed",
					"error_description": "confirm your email address before continuing",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSiteMaster reconciles the caller and admits only site masters. Runs
// after RequireAuth.
func RequireSiteMaster(roles *rolesservice.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			view, err := roles.ReconcileCurrent(r.Context())
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			if !view.IsAuthenticated {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "not authenticated"))
				return
			}
			if !view.IsSiteMaster {
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "site master privilege required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
