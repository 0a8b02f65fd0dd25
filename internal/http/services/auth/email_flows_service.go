package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/verbatimhq/authcore/internal/audit"
	"github.com/verbatimhq/authcore/internal/domain/repository"
	httperrors "github.com/verbatimhq/authcore/internal/http/errors"
	"github.com/verbatimhq/authcore/internal/metrics"
	"github.com/verbatimhq/authcore/internal/observability/logger"
	"github.com/verbatimhq/authcore/internal/onetime"
)

// VerifyEmail redeems a confirmation token and marks the address
// verified.
func (s *Service) VerifyEmail(ctx context.Context, tokenPlain string, meta Meta) *httperrors.AppError {
	userID, err := s.OneTime.Consume(ctx, onetime.PurposeEmailVerify, tokenPlain)
	if err != nil {
		if errors.Is(err, onetime.ErrInvalid) {
			return httperrors.ErrTokenInvalid
		}
		return httperrors.ErrInternal.WithCause(err)
	}
	if err := s.Users.SetEmailVerified(ctx, userID, true); err != nil {
		return httperrors.ErrInternal.WithCause(err)
	}
	s.record(ctx, audit.ActionEmailVerified, userID, meta, nil)
	return nil
}

// ForgotPassword starts recovery. The caller always gets the same
// answer; the mail goes out only for known active accounts, and its
// delivery runs off the request path so the answer takes the same
// time either way.
func (s *Service) ForgotPassword(ctx context.Context, email string, meta Meta) {
	s.record(ctx, audit.ActionPasswordForgot, "", meta, map[string]any{"email": email})

	user, err := s.Users.GetByEmail(ctx, email)
	if err != nil || !user.IsActive {
		return
	}
	go s.sendReset(context.WithoutCancel(ctx), user)
}

// sendReset issues the reset token and mails the link. Failures are
// logged only; the flow can be re-requested.
func (s *Service) sendReset(ctx context.Context, user *repository.User) {
	tok, err := s.OneTime.Issue(ctx, onetime.PurposePasswordReset, user.ID)
	if err != nil {
		logger.From(ctx).Error("issue reset token failed",
			logger.Component("auth"), logger.UserID(user.ID), logger.Err(err))
		return
	}
	if err := s.Mailer.SendPasswordReset(ctx, user.Email, tok, s.ResetTTL); err != nil {
		logger.From(ctx).Error("send reset email failed",
			logger.Component("auth"), logger.UserID(user.ID), logger.Err(err))
		return
	}
	metrics.EmailsSent.WithLabelValues("reset").Inc()
}

// ResetPassword redeems the single-use token, installs the new
// password and revokes every open session.
func (s *Service) ResetPassword(ctx context.Context, tokenPlain, newPassword string, meta Meta) *httperrors.AppError {
	if ok, reasons := s.Policy.Validate(newPassword); !ok {
		return httperrors.ErrPasswordTooWeak.WithDetail(strings.Join(reasons, ", "))
	}

	userID, err := s.OneTime.Consume(ctx, onetime.PurposePasswordReset, tokenPlain)
	if err != nil {
		if errors.Is(err, onetime.ErrInvalid) {
			return httperrors.ErrTokenInvalid
		}
		return httperrors.ErrInternal.WithCause(err)
	}

	hash, err := s.hash(ctx, newPassword)
	if err != nil {
		return httperrors.ErrInternal.WithCause(err)
	}
	if err := s.Users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return httperrors.ErrInternal.WithCause(err)
	}

	n, _ := s.Tokens.RevokeAllForUser(ctx, userID)
	s.record(ctx, audit.ActionPasswordReset, userID, meta, map[string]any{"sessions_revoked": n})

	if user, err := s.Users.GetByID(ctx, userID); err == nil {
		s.notifyQuietly(ctx, user.Email, "Your password was changed via the recovery flow.")
	}
	return nil
}

// ChangePassword swaps the password for an authenticated user after
// re-verifying the current one. Other sessions are revoked.
func (s *Service) ChangePassword(ctx context.Context, userID, current, newPassword string, meta Meta) *httperrors.AppError {
	if ok, reasons := s.Policy.Validate(newPassword); !ok {
		return httperrors.ErrPasswordTooWeak.WithDetail(strings.Join(reasons, ", "))
	}

	user, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return httperrors.ErrUnauthorized
		}
		return httperrors.ErrInternal.WithCause(err)
	}
	if user.PasswordHash == nil {
		return httperrors.ErrInvalidCredentials
	}
	ok, err := s.verify(ctx, current, *user.PasswordHash)
	if err != nil {
		return httperrors.ErrInternal.WithCause(err)
	}
	if !ok {
		return httperrors.ErrInvalidCredentials
	}

	hash, err := s.hash(ctx, newPassword)
	if err != nil {
		return httperrors.ErrInternal.WithCause(err)
	}
	if err := s.Users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return httperrors.ErrInternal.WithCause(err)
	}

	n, _ := s.Tokens.RevokeAllForUser(ctx, userID)
	s.record(ctx, audit.ActionPasswordReset, userID, meta, map[string]any{
		"sessions_revoked": n,
		"self_service":     true,
	})
	s.notifyQuietly(ctx, user.Email, "Your password was changed.")
	return nil
}
