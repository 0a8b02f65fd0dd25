package auth

import (
	"net/http"
	"strings"

	dto "github.com/verbatimhq/authcore/internal/http/dto/auth"
	httperrors "github.com/verbatimhq/authcore/internal/http/errors"
	"github.com/verbatimhq/authcore/internal/http/helpers"
	"github.com/verbatimhq/authcore/internal/http/middlewares"
)

// Login handles POST /auth/login. Accounts with MFA get a challenge
// instead of tokens.
func (c *Controllers) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	req.Normalize()
	if !req.Valid() {
		httperrors.WriteError(w, r, httperrors.ErrMissingFields.WithDetail("email and password are required"))
		return
	}

	res, appErr := c.Service.Login(r.Context(), req.Email, req.Password, requestMeta(r))
	if appErr != nil {
		httperrors.WriteError(w, r, appErr)
		return
	}

	if res.MFARequired {
		helpers.WriteJSON(w, http.StatusOK, dto.MFARequiredResponse{
			MFARequired: true,
			MFAToken:    res.MFAToken,
			ExpiresIn:   int64(res.MFATokenTTL.Seconds()),
		})
		return
	}
	c.writePair(w, res.Pair)
}

// MFALogin handles POST /auth/login/mfa, the second step of a
// challenged login.
func (c *Controllers) MFALogin(w http.ResponseWriter, r *http.Request) {
	var req dto.MFALoginRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if !req.Valid() {
		httperrors.WriteError(w, r, httperrors.ErrMissingFields.WithDetail("mfa_token and code are required"))
		return
	}

	res, appErr := c.Service.VerifyMFALogin(r.Context(), req.MFAToken, req.Code, requestMeta(r))
	if appErr != nil {
		httperrors.WriteError(w, r, appErr)
		return
	}
	c.writePair(w, res.Pair)
}

// Refresh handles POST /auth/refresh. The refresh token comes from the
// body or the cookie; a replayed or invalid token clears the cookie.
func (c *Controllers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	refresh := c.refreshFrom(r, req.RefreshToken)
	if refresh == "" {
		httperrors.WriteError(w, r, httperrors.ErrTokenMissing)
		return
	}

	pair, appErr := c.Service.Refresh(r.Context(), refresh, requestMeta(r))
	if appErr != nil {
		helpers.ClearRefreshCookie(w, c.Cookies)
		helpers.ClearAccessCookie(w, c.Cookies)
		httperrors.WriteError(w, r, appErr)
		return
	}
	c.writePair(w, pair)
}

// Logout handles POST /auth/logout. Idempotent; the access token, when
// sent, is deny-listed for its remaining lifetime.
func (c *Controllers) Logout(w http.ResponseWriter, r *http.Request) {
	var req dto.LogoutRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	refresh := c.refreshFrom(r, req.RefreshToken)
	if refresh == "" {
		httperrors.WriteError(w, r, httperrors.ErrTokenMissing)
		return
	}

	access := ""
	if h := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(h), "bearer ") {
		access = strings.TrimSpace(h[len("bearer "):])
	}
	if access == "" {
		access = helpers.AccessFromCookie(r)
	}

	if appErr := c.Service.Logout(r.Context(), refresh, access, requestMeta(r)); appErr != nil {
		httperrors.WriteError(w, r, appErr)
		return
	}
	helpers.ClearRefreshCookie(w, c.Cookies)
	helpers.ClearAccessCookie(w, c.Cookies)
	helpers.WriteJSON(w, http.StatusOK, dto.OKResponse{OK: true})
}

// LogoutAll handles POST /auth/logout-all (authenticated). Every
// session of the caller ends, this one included.
func (c *Controllers) LogoutAll(w http.ResponseWriter, r *http.Request) {
	userID := middlewares.GetUserID(r.Context())
	if userID == "" {
		httperrors.WriteError(w, r, httperrors.ErrUnauthorized)
		return
	}

	if _, appErr := c.Service.LogoutAll(r.Context(), userID, requestMeta(r)); appErr != nil {
		httperrors.WriteError(w, r, appErr)
		return
	}
	helpers.ClearRefreshCookie(w, c.Cookies)
	helpers.ClearAccessCookie(w, c.Cookies)
	helpers.WriteJSON(w, http.StatusOK, dto.OKResponse{OK: true})
}
