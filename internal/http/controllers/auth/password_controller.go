package auth

import (
	"net/http"

	dto "github.com/verbatimhq/authcore/internal/http/dto/auth"
	httperrors "github.com/verbatimhq/authcore/internal/http/errors"
	"github.com/verbatimhq/authcore/internal/http/helpers"
	"github.com/verbatimhq/authcore/internal/http/middlewares"
)

// VerifyEmail handles POST /auth/verify-email.
func (c *Controllers) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyEmailRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if req.Token == "" {
		httperrors.WriteError(w, r, httperrors.ErrMissingFields.WithDetail("token is required"))
		return
	}

	if appErr := c.Service.VerifyEmail(r.Context(), req.Token, requestMeta(r)); appErr != nil {
		httperrors.WriteError(w, r, appErr)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.OKResponse{OK: true})
}

// ForgotPassword handles POST /auth/forgot-password. The response is
// the same whether or not the account exists.
func (c *Controllers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ForgotPasswordRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	req.Normalize()
	if req.Email == "" {
		httperrors.WriteError(w, r, httperrors.ErrMissingFields.WithDetail("email is required"))
		return
	}

	c.Service.ForgotPassword(r.Context(), req.Email, requestMeta(r))
	helpers.WriteJSON(w, http.StatusOK, dto.ForgotPasswordResponse{
		OK:      true,
		Message: "If the account exists, a reset email is on its way.",
	})
}

// ResetPassword handles POST /auth/reset-password.
func (c *Controllers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ResetPasswordRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if !req.Valid() {
		httperrors.WriteError(w, r, httperrors.ErrMissingFields.WithDetail("token and new_password are required"))
		return
	}

	if appErr := c.Service.ResetPassword(r.Context(), req.Token, req.NewPassword, requestMeta(r)); appErr != nil {
		httperrors.WriteError(w, r, appErr)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.OKResponse{OK: true})
}

// ChangePassword handles POST /auth/change-password (authenticated).
func (c *Controllers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := middlewares.GetUserID(r.Context())
	if userID == "" {
		httperrors.WriteError(w, r, httperrors.ErrUnauthorized)
		return
	}

	var req dto.ChangePasswordRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if !req.Valid() {
		httperrors.WriteError(w, r, httperrors.ErrMissingFields.WithDetail("current_password and new_password are required"))
		return
	}

	if appErr := c.Service.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword, requestMeta(r)); appErr != nil {
		httperrors.WriteError(w, r, appErr)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.OKResponse{OK: true})
}
