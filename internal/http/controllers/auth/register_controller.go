package auth

import (
	"net/http"

	dto "github.com/verbatimhq/authcore/internal/http/dto/auth"
	httperrors "github.com/verbatimhq/authcore/internal/http/errors"
	"github.com/verbatimhq/authcore/internal/http/helpers"
)

// Register handles POST /auth/register.
func (c *Controllers) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	req.Normalize()
	if !req.Valid() {
		httperrors.WriteError(w, r, httperrors.ErrMissingFields.WithDetail("email and password are required"))
		return
	}

	user, appErr := c.Service.Register(r.Context(), req.Email, req.Password, req.FirstName, req.LastName, req.OrganizationName, requestMeta(r))
	if appErr != nil {
		httperrors.WriteError(w, r, appErr)
		return
	}

	helpers.WriteJSON(w, http.StatusCreated, dto.RegisterResponse{
		ID:            user.ID,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
	})
}

// ResendVerification handles POST /auth/resend-verification. The
// answer never says whether the account exists.
func (c *Controllers) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req dto.ForgotPasswordRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	req.Normalize()
	if req.Email == "" {
		httperrors.WriteError(w, r, httperrors.ErrMissingFields.WithDetail("email is required"))
		return
	}

	c.Service.ResendVerification(r.Context(), req.Email, requestMeta(r))
	helpers.WriteJSON(w, http.StatusOK, dto.ForgotPasswordResponse{
		OK:      true,
		Message: "If the account exists, a new verification email is on its way.",
	})
}
