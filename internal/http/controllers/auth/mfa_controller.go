package auth

import (
	"net/http"

	dto "github.com/verbatimhq/authcore/internal/http/dto/auth"
	httperrors "github.com/verbatimhq/authcore/internal/http/errors"
	"github.com/verbatimhq/authcore/internal/http/helpers"
	"github.com/verbatimhq/authcore/internal/http/middlewares"
)

// MFAStatus handles GET /auth/mfa (authenticated).
func (c *Controllers) MFAStatus(w http.ResponseWriter, r *http.Request) {
	userID := middlewares.GetUserID(r.Context())
	if userID == "" {
		httperrors.WriteError(w, r, httperrors.ErrUnauthorized)
		return
	}

	enabled, remaining, appErr := c.Service.MFAStatus(r.Context(), userID)
	if appErr != nil {
		httperrors.WriteError(w, r, appErr)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.MFAStatusResponse{
		Enabled:              enabled,
		RemainingBackupCodes: remaining,
	})
}

// MFASetup handles POST /auth/mfa/setup (authenticated). Hands back
// the secret and otpauth URL for the QR screen; nothing is enabled
// until the code is confirmed.
func (c *Controllers) MFASetup(w http.ResponseWriter, r *http.Request) {
	userID := middlewares.GetUserID(r.Context())
	if userID == "" {
		httperrors.WriteError(w, r, httperrors.ErrUnauthorized)
		return
	}

	secret, url, appErr := c.Service.BeginMFASetup(r.Context(), userID)
	if appErr != nil {
		httperrors.WriteError(w, r, appErr)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.MFASetupResponse{Secret: secret, URL: url})
}

// MFAConfirm handles POST /auth/mfa/confirm (authenticated). On
// success the backup codes are returned, this once only.
func (c *Controllers) MFAConfirm(w http.ResponseWriter, r *http.Request) {
	userID := middlewares.GetUserID(r.Context())
	if userID == "" {
		httperrors.WriteError(w, r, httperrors.ErrUnauthorized)
		return
	}

	var req dto.MFAConfirmRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if req.Code == "" {
		httperrors.WriteError(w, r, httperrors.ErrMissingFields.WithDetail("code is required"))
		return
	}

	codes, appErr := c.Service.ConfirmMFASetup(r.Context(), userID, req.Code, requestMeta(r))
	if appErr != nil {
		httperrors.WriteError(w, r, appErr)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.MFAConfirmResponse{Enabled: true, BackupCodes: codes})
}

// MFADisable handles POST /auth/mfa/disable (authenticated, password
// re-verified).
func (c *Controllers) MFADisable(w http.ResponseWriter, r *http.Request) {
	userID := middlewares.GetUserID(r.Context())
	if userID == "" {
		httperrors.WriteError(w, r, httperrors.ErrUnauthorized)
		return
	}

	var req dto.MFADisableRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if req.Password == "" {
		httperrors.WriteError(w, r, httperrors.ErrMissingFields.WithDetail("password is required"))
		return
	}

	if appErr := c.Service.DisableMFA(r.Context(), userID, req.Password, requestMeta(r)); appErr != nil {
		httperrors.WriteError(w, r, appErr)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.OKResponse{OK: true})
}
