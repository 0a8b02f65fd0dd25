package auth

import (
	"context"
	"errors"

	"github.com/verbatimhq/authcore/internal/audit"
	httperrors "github.com/verbatimhq/authcore/internal/http/errors"
	"github.com/verbatimhq/authcore/internal/mfa"
)

// MFAStatus reports whether MFA is on and how many backup codes
// remain.
func (s *Service) MFAStatus(ctx context.Context, userID string) (enabled bool, remaining int, appErr *httperrors.AppError) {
	user, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return false, 0, httperrors.ErrInternal.WithCause(err)
	}
	if !user.MFAEnabled {
		return false, 0, nil
	}
	remaining, err = s.MFA.RemainingBackupCodes(ctx, userID)
	if err != nil {
		return true, 0, httperrors.ErrInternal.WithCause(err)
	}
	return true, remaining, nil
}

// BeginMFASetup stages a fresh TOTP secret for the QR screen.
func (s *Service) BeginMFASetup(ctx context.Context, userID string) (secret, url string, appErr *httperrors.AppError) {
	user, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return "", "", httperrors.ErrInternal.WithCause(err)
	}
	if user.MFAEnabled {
		return "", "", httperrors.ErrMFAAlreadyEnabled
	}

	enr, err := s.MFA.BeginSetup(ctx, userID, user.Email)
	if err != nil {
		return "", "", httperrors.ErrInternal.WithCause(err)
	}
	return enr.SecretB32, enr.URL, nil
}

// ConfirmMFASetup proves possession and turns MFA on. Returns the
// backup codes, shown exactly once.
func (s *Service) ConfirmMFASetup(ctx context.Context, userID, code string, meta Meta) ([]string, *httperrors.AppError) {
	codes, err := s.MFA.CompleteSetup(ctx, userID, code)
	if err != nil {
		switch {
		case errors.Is(err, mfa.ErrNoPendingSetup):
			return nil, httperrors.ErrBadRequest.WithDetail("no setup in progress")
		case errors.Is(err, mfa.ErrCodeInvalid):
			return nil, httperrors.ErrMFACodeInvalid
		default:
			return nil, httperrors.ErrInternal.WithCause(err)
		}
	}

	s.record(ctx, audit.ActionMFAEnabled, userID, meta, nil)
	if user, uerr := s.Users.GetByID(ctx, userID); uerr == nil {
		s.notifyQuietly(ctx, user.Email, "Two-factor authentication was enabled on your account.")
	}
	return codes, nil
}

// DisableMFA turns MFA off after re-verifying the password.
func (s *Service) DisableMFA(ctx context.Context, userID, plain string, meta Meta) *httperrors.AppError {
	user, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return httperrors.ErrInternal.WithCause(err)
	}
	if !user.MFAEnabled {
		return httperrors.ErrBadRequest.WithDetail("mfa is not enabled")
	}
	if user.PasswordHash == nil {
		return httperrors.ErrForbidden.WithDetail("federated accounts manage mfa at the provider")
	}

	ok, err := s.verify(ctx, plain, *user.PasswordHash)
	if err != nil {
		return httperrors.ErrInternal.WithCause(err)
	}
	if !ok {
		return httperrors.ErrInvalidCredentials
	}

	if err := s.MFA.Disable(ctx, userID); err != nil {
		return httperrors.ErrInternal.WithCause(err)
	}
	s.record(ctx, audit.ActionMFADisabled, userID, meta, nil)
	s.notifyQuietly(ctx, user.Email, "Two-factor authentication was disabled on your account.")
	return nil
}
