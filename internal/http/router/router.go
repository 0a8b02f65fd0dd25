// Package router assembles the HTTP surface: route table, middleware
// stack and the operational endpoints.
package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	authctrl "github.com/verbatimhq/authcore/internal/http/controllers/auth"
	httperrors "github.com/verbatimhq/authcore/internal/http/errors"
	"github.com/verbatimhq/authcore/internal/http/helpers"
	mw "github.com/verbatimhq/authcore/internal/http/middlewares"
	"github.com/verbatimhq/authcore/internal/rate"
	"github.com/verbatimhq/authcore/internal/token"
)

// Limiters carries one limiter per route group so credential
// endpoints can run tighter windows than token plumbing.
type Limiters struct {
	Credentials rate.Limiter // register, login
	MFA         rate.Limiter // the MFA login step
	Recovery    rate.Limiter // email verification and password flows
	Token       rate.Limiter // refresh, logout
	OAuth       rate.Limiter // federation start/callback
}

// Deps wires the router.
type Deps struct {
	Auth      *authctrl.Controllers
	Tokens    *token.Service
	Limiters  Limiters
	Allowlist *rate.Allowlist

	// Ready reports whether downstream dependencies answer; used by
	// the readiness endpoint.
	Ready func(ctx context.Context) error

	// Metrics serves the Prometheus scrape endpoint; nil disables it.
	Metrics http.Handler
}

// New builds the handler tree.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.WithRequestID())
	r.Use(mw.WithRequestLogging())
	r.Use(mw.WithRecover())
	r.Use(mw.WithSecurityHeaders())

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httperrors.WriteError(w, req, httperrors.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httperrors.WriteError(w, req, httperrors.ErrMethodNotAllowed)
	})

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		helpers.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if deps.Ready != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			if err := deps.Ready(ctx); err != nil {
				httperrors.WriteError(w, req, httperrors.ErrInternal.WithCause(err))
				return
			}
		}
		helpers.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	limit := func(group string, l rate.Limiter) func(http.Handler) http.Handler {
		return mw.WithRateLimit(mw.RateLimitConfig{
			Limiter:   l,
			Allowlist: deps.Allowlist,
			Group:     group,
		})
	}
	requireAuth := mw.RequireAuth(deps.Tokens)

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(limit("credentials", deps.Limiters.Credentials))
			r.Post("/register", deps.Auth.Register)
			r.Post("/login", deps.Auth.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(limit("mfa", deps.Limiters.MFA))
			r.Post("/login/mfa", deps.Auth.MFALogin)
		})

		r.Group(func(r chi.Router) {
			r.Use(limit("recovery", deps.Limiters.Recovery))
			r.Post("/verify-email", deps.Auth.VerifyEmail)
			r.Post("/resend-verification", deps.Auth.ResendVerification)
			r.Post("/forgot-password", deps.Auth.ForgotPassword)
			r.Post("/reset-password", deps.Auth.ResetPassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(limit("token", deps.Limiters.Token))
			r.Post("/refresh", deps.Auth.Refresh)
			r.Post("/logout", deps.Auth.Logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(limit("oauth", deps.Limiters.OAuth))
			r.Get("/oauth/providers", deps.Auth.OAuthProviders)
			r.Post("/oauth/{provider}/start", deps.Auth.OAuthStart)
			r.Post("/oauth/{provider}/callback", deps.Auth.OAuthCallback)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/logout-all", deps.Auth.LogoutAll)
			r.Post("/change-password", deps.Auth.ChangePassword)
			r.Get("/mfa", deps.Auth.MFAStatus)
			r.Post("/mfa/setup", deps.Auth.MFASetup)
			r.Post("/mfa/confirm", deps.Auth.MFAConfirm)
			r.Post("/mfa/disable", deps.Auth.MFADisable)
		})
	})

	return r
}
