package auth

import (
	"context"
	"errors"
	"time"

	"github.com/verbatimhq/authcore/internal/audit"
	"github.com/verbatimhq/authcore/internal/domain/repository"
	httperrors "github.com/verbatimhq/authcore/internal/http/errors"
	"github.com/verbatimhq/authcore/internal/metrics"
	"github.com/verbatimhq/authcore/internal/mfa"
	"github.com/verbatimhq/authcore/internal/onetime"
	"github.com/verbatimhq/authcore/internal/token"
)

// LoginResult is either a token pair or an MFA challenge.
type LoginResult struct {
	MFARequired bool
	MFAToken    string
	MFATokenTTL time.Duration
	Pair        token.Pair
	User        *repository.User
}

// Login authenticates with email and password. Unknown accounts burn
// the same hashing cost as real ones and fail with the same error.
func (s *Service) Login(ctx context.Context, email, plain string, meta Meta) (*LoginResult, *httperrors.AppError) {
	user, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		if repository.IsNotFound(err) {
			s.burnVerify(ctx, plain)
			s.failLogin(ctx, email, meta, "unknown_account")
			return nil, httperrors.ErrInvalidCredentials
		}
		return nil, httperrors.ErrInternal.WithCause(err)
	}
	if user.PasswordHash == nil {
		// Federated-only account; keep timing level with the hash path.
		s.burnVerify(ctx, plain)
		s.failLogin(ctx, user.ID, meta, "no_password")
		return nil, httperrors.ErrInvalidCredentials
	}

	ok, err := s.verify(ctx, plain, *user.PasswordHash)
	if err != nil {
		return nil, httperrors.ErrInternal.WithCause(err)
	}
	if !ok {
		s.failLogin(ctx, user.ID, meta, "bad_password")
		return nil, httperrors.ErrInvalidCredentials
	}

	if !user.IsActive {
		s.failLogin(ctx, user.ID, meta, "suspended")
		return nil, httperrors.ErrAccountSuspended
	}
	if !user.EmailVerified {
		s.failLogin(ctx, user.ID, meta, "email_unverified")
		return nil, httperrors.ErrAccountNotVerified
	}

	if user.MFAEnabled {
		mfaToken, err := s.OneTime.Issue(ctx, onetime.PurposeMFAPending, user.ID)
		if err != nil {
			return nil, httperrors.ErrInternal.WithCause(err)
		}
		metrics.LoginAttempts.WithLabelValues("mfa_required").Inc()
		s.record(ctx, audit.ActionLoginMFARequired, user.ID, meta, nil)
		return &LoginResult{
			MFARequired: true,
			MFAToken:    mfaToken,
			MFATokenTTL: onetime.TTLFor(onetime.PurposeMFAPending),
			User:        user,
		}, nil
	}

	return s.completeLogin(ctx, user, meta, nil)
}

// VerifyMFALogin finishes a challenged login with a TOTP or backup
// code. The pending token stays valid across wrong codes until its
// TTL runs out; it is consumed only by success.
func (s *Service) VerifyMFALogin(ctx context.Context, mfaToken, code string, meta Meta) (*LoginResult, *httperrors.AppError) {
	userID, err := s.OneTime.Peek(ctx, onetime.PurposeMFAPending, mfaToken)
	if err != nil {
		if errors.Is(err, onetime.ErrInvalid) {
			return nil, httperrors.ErrTokenInvalid
		}
		return nil, httperrors.ErrInternal.WithCause(err)
	}

	user, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, httperrors.ErrInternal.WithCause(err)
	}

	// The account state may have changed while the challenge was
	// pending; re-gate before any code is accepted.
	if !user.IsActive {
		s.failLogin(ctx, user.ID, meta, "suspended")
		return nil, httperrors.ErrAccountSuspended
	}
	if !user.EmailVerified {
		s.failLogin(ctx, user.ID, meta, "email_unverified")
		return nil, httperrors.ErrAccountNotVerified
	}

	usedBackup, err := s.MFA.VerifyLogin(ctx, user, code)
	if err != nil {
		if errors.Is(err, mfa.ErrCodeInvalid) || errors.Is(err, mfa.ErrNotEnabled) {
			metrics.MFAChallenges.WithLabelValues("totp", "failure").Inc()
			s.failLogin(ctx, user.ID, meta, "bad_mfa_code")
			return nil, httperrors.ErrMFACodeInvalid
		}
		return nil, httperrors.ErrInternal.WithCause(err)
	}

	if _, err := s.OneTime.Consume(ctx, onetime.PurposeMFAPending, mfaToken); err != nil {
		// A concurrent attempt won the race for the same pending token.
		return nil, httperrors.ErrTokenInvalid
	}

	method := "totp"
	var detail map[string]any
	if usedBackup {
		method = "backup_code"
		detail = map[string]any{"backup_code": true}
		s.record(ctx, audit.ActionMFABackupUsed, user.ID, meta, nil)
		s.notifyQuietly(ctx, user.Email, "A backup code was used to sign in to your account.")
		if left, err := s.MFA.RemainingBackupCodes(ctx, user.ID); err == nil {
			detail["remaining_backup_codes"] = left
		}
	}
	metrics.MFAChallenges.WithLabelValues(method, "success").Inc()

	return s.completeLogin(ctx, user, meta, detail)
}

func (s *Service) completeLogin(ctx context.Context, user *repository.User, meta Meta, detail map[string]any) (*LoginResult, *httperrors.AppError) {
	pair, err := s.Tokens.IssuePair(ctx, user, meta.IP, meta.UserAgent)
	if err != nil {
		return nil, httperrors.ErrInternal.WithCause(err)
	}
	_ = s.Users.SetLastLogin(ctx, user.ID, time.Now().UTC())

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	s.record(ctx, audit.ActionLoginSuccess, user.ID, meta, detail)
	return &LoginResult{Pair: pair, User: user}, nil
}

func (s *Service) failLogin(ctx context.Context, actor string, meta Meta, reason string) {
	metrics.LoginAttempts.WithLabelValues("failure").Inc()
	s.record(ctx, audit.ActionLoginFailure, actor, meta, map[string]any{"reason": reason})
}

// Refresh rotates the presented refresh token. A replayed token
// revokes the whole session family before failing.
func (s *Service) Refresh(ctx context.Context, refreshToken string, meta Meta) (token.Pair, *httperrors.AppError) {
	pair, err := s.Tokens.Rotate(ctx, refreshToken)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrRefreshReplayed):
			metrics.ReplaysDetected.Inc()
			s.record(ctx, audit.ActionTokenReplay, "", meta, nil)
			return token.Pair{}, httperrors.ErrTokenInvalid
		case errors.Is(err, token.ErrTokenInvalid):
			return token.Pair{}, httperrors.ErrTokenInvalid
		default:
			return token.Pair{}, httperrors.ErrInternal.WithCause(err)
		}
	}
	metrics.TokenRotations.Inc()
	s.record(ctx, audit.ActionTokenRotated, "", meta, map[string]any{"session_id": pair.SessionID})
	return pair, nil
}

// Logout ends the session behind the refresh token and deny-lists the
// access token when provided.
func (s *Service) Logout(ctx context.Context, refreshToken, accessToken string, meta Meta) *httperrors.AppError {
	if err := s.Tokens.Revoke(ctx, refreshToken, accessToken); err != nil {
		if errors.Is(err, token.ErrTokenInvalid) {
			// Already gone; logout is idempotent.
			return nil
		}
		return httperrors.ErrInternal.WithCause(err)
	}
	s.record(ctx, audit.ActionLogout, "", meta, nil)
	return nil
}

// LogoutAll revokes every session of the user.
func (s *Service) LogoutAll(ctx context.Context, userID string, meta Meta) (int, *httperrors.AppError) {
	n, err := s.Tokens.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, httperrors.ErrInternal.WithCause(err)
	}
	s.record(ctx, audit.ActionSessionsRevoked, userID, meta, map[string]any{"sessions": n})
	return n, nil
}
