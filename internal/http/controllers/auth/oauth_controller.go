package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	dto "github.com/verbatimhq/authcore/internal/http/dto/auth"
	httperrors "github.com/verbatimhq/authcore/internal/http/errors"
	"github.com/verbatimhq/authcore/internal/http/helpers"
)

// OAuthProviders handles GET /auth/oauth/providers.
func (c *Controllers) OAuthProviders(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, dto.ProvidersResponse{
		Providers: c.Service.ProviderNames(),
	})
}

// OAuthStart handles POST /auth/oauth/{provider}/start. Returns the
// provider redirect plus the single-use state the callback must echo.
func (c *Controllers) OAuthStart(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	url, state, appErr := c.Service.StartOAuth(r.Context(), provider)
	if appErr != nil {
		httperrors.WriteError(w, r, appErr)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.OAuthStartResponse{
		AuthorizationURL: url,
		State:            state,
	})
}

// OAuthCallback handles POST /auth/oauth/{provider}/callback.
func (c *Controllers) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	var req dto.OAuthCallbackRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if !req.Valid() {
		httperrors.WriteError(w, r, httperrors.ErrMissingFields.WithDetail("code and state are required"))
		return
	}

	pair, appErr := c.Service.CompleteOAuth(r.Context(), provider, req.Code, req.State, requestMeta(r))
	if appErr != nil {
		httperrors.WriteError(w, r, appErr)
		return
	}
	c.writePair(w, pair)
}
