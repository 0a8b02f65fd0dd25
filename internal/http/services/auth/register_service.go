package auth

import (
	"context"
	"strings"

	"github.com/verbatimhq/authcore/internal/audit"
	"github.com/verbatimhq/authcore/internal/domain/repository"
	httperrors "github.com/verbatimhq/authcore/internal/http/errors"
	"github.com/verbatimhq/authcore/internal/metrics"
	"github.com/verbatimhq/authcore/internal/observability/logger"
	"github.com/verbatimhq/authcore/internal/onetime"
)

// Register provisions a credential account. A non-empty orgName
// creates a fresh organization with the account as its admin; the
// default tenant and role apply otherwise. The account starts
// unverified; a confirmation link goes out by email.
func (s *Service) Register(ctx context.Context, email, plain, firstName, lastName, orgName string, meta Meta) (*repository.User, *httperrors.AppError) {
	if ok, reasons := s.Policy.Validate(plain); !ok {
		return nil, httperrors.ErrPasswordTooWeak.WithDetail(strings.Join(reasons, ", "))
	}

	hash, err := s.hash(ctx, plain)
	if err != nil {
		return nil, httperrors.ErrInternal.WithCause(err)
	}

	orgID, role := s.DefaultOrgID, s.DefaultRole
	detail := map[string]any{"email": email}
	if orgName != "" {
		org, err := s.Orgs.Create(ctx, orgName)
		if err != nil {
			if repository.IsConflict(err) {
				return nil, httperrors.ErrConflict.WithDetail("organization name is already taken")
			}
			return nil, httperrors.ErrInternal.WithCause(err)
		}
		orgID, role = org.ID, "admin"
		detail["organization"] = org.Name
	}

	user, err := s.Users.Create(ctx, repository.CreateUserInput{
		Email:          email,
		PasswordHash:   hash,
		EmailVerified:  false,
		OrganizationID: orgID,
		Role:           role,
		FirstName:      firstName,
		LastName:       lastName,
	})
	if err != nil {
		if repository.IsConflict(err) {
			return nil, httperrors.ErrEmailAlreadyInUse
		}
		return nil, httperrors.ErrInternal.WithCause(err)
	}

	s.sendVerification(ctx, user)
	s.record(ctx, audit.ActionRegister, user.ID, meta, detail)
	return user, nil
}

// sendVerification issues the token and mails the link. Failures are
// logged only; the account exists either way and the link can be
// re-requested.
func (s *Service) sendVerification(ctx context.Context, user *repository.User) {
	tok, err := s.OneTime.Issue(ctx, onetime.PurposeEmailVerify, user.ID)
	if err != nil {
		logger.From(ctx).Error("issue verification token failed",
			logger.Component("auth"), logger.UserID(user.ID), logger.Err(err))
		return
	}
	if err := s.Mailer.SendVerification(ctx, user.Email, tok, s.VerifyTTL); err != nil {
		logger.From(ctx).Error("send verification email failed",
			logger.Component("auth"), logger.UserID(user.ID), logger.Err(err))
		return
	}
	metrics.EmailsSent.WithLabelValues("verify").Inc()
}

// ResendVerification re-issues the confirmation link. The response is
// the same whether or not the account exists; delivery runs off the
// request path so its timing does not leak the difference either.
func (s *Service) ResendVerification(ctx context.Context, email string, meta Meta) {
	s.record(ctx, audit.ActionVerificationResent, "", meta, map[string]any{"email": email})

	user, err := s.Users.GetByEmail(ctx, email)
	if err != nil || user.EmailVerified || !user.IsActive {
		return
	}
	go s.sendVerification(context.WithoutCancel(ctx), user)
}
