package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/verbatimhq/authcore/internal/audit"
	httperrors "github.com/verbatimhq/authcore/internal/http/errors"
	"github.com/verbatimhq/authcore/internal/metrics"
	"github.com/verbatimhq/authcore/internal/oauth"
	"github.com/verbatimhq/authcore/internal/onetime"
	sectoken "github.com/verbatimhq/authcore/internal/security/token"
	"github.com/verbatimhq/authcore/internal/token"
)

// ProviderNames lists the configured federation providers.
func (s *Service) ProviderNames() []string { return s.Providers.Names() }

// StartOAuth builds the provider redirect. The state is a single-use
// token binding the callback to this start; the nonce rides with it
// for OIDC providers.
func (s *Service) StartOAuth(ctx context.Context, providerName string) (authURL, state string, appErr *httperrors.AppError) {
	provider, err := s.Providers.Get(providerName)
	if err != nil {
		return "", "", httperrors.ErrUnknownProvider
	}

	nonce, err := sectoken.Generate(16)
	if err != nil {
		return "", "", httperrors.ErrInternal.WithCause(err)
	}
	state, err = s.OneTime.Issue(ctx, onetime.PurposeOAuthState, nonce)
	if err != nil {
		return "", "", httperrors.ErrInternal.WithCause(err)
	}

	authURL, err = provider.AuthURL(ctx, state, nonce)
	if err != nil {
		return "", "", httperrors.ErrUpstreamProvider.WithCause(err)
	}
	return authURL, state, nil
}

// CompleteOAuth finishes the callback: state check, code exchange,
// account resolution, token issuance.
func (s *Service) CompleteOAuth(ctx context.Context, providerName, code, state string, meta Meta) (token.Pair, *httperrors.AppError) {
	provider, err := s.Providers.Get(providerName)
	if err != nil {
		return token.Pair{}, httperrors.ErrUnknownProvider
	}

	nonce, err := s.OneTime.Consume(ctx, onetime.PurposeOAuthState, state)
	if err != nil {
		if errors.Is(err, onetime.ErrInvalid) {
			return token.Pair{}, httperrors.ErrTokenInvalid.WithDetail("state is invalid or already used")
		}
		return token.Pair{}, httperrors.ErrInternal.WithCause(err)
	}

	identity, err := provider.Exchange(ctx, code, nonce)
	if err != nil {
		return token.Pair{}, httperrors.ErrUpstreamProvider.WithCause(err)
	}

	user, outcome, err := s.Linker.Resolve(ctx, identity)
	if err != nil {
		if errors.Is(err, oauth.ErrEmailUnverified) {
			return token.Pair{}, httperrors.ErrForbidden.WithDetail("the provider email is not verified")
		}
		return token.Pair{}, httperrors.ErrInternal.WithCause(err)
	}
	if !user.IsActive {
		return token.Pair{}, httperrors.ErrAccountSuspended
	}

	switch outcome {
	case oauth.OutcomeCreated:
		s.record(ctx, audit.ActionOAuthSignup, user.ID, meta, map[string]any{"provider": identity.Provider})
	case oauth.OutcomeLinked:
		s.record(ctx, audit.ActionOAuthLink, user.ID, meta, map[string]any{"provider": identity.Provider})
		s.notifyQuietly(ctx, user.Email,
			fmt.Sprintf("A %s account was linked to your profile. If this was not you, reset your password now.", identity.Provider))
	}

	pair, perr := s.Tokens.IssuePair(ctx, user, meta.IP, meta.UserAgent)
	if perr != nil {
		return token.Pair{}, httperrors.ErrInternal.WithCause(perr)
	}
	metrics.LoginAttempts.WithLabelValues("success").Inc()
	s.record(ctx, audit.ActionOAuthLogin, user.ID, meta, map[string]any{"provider": identity.Provider})
	return pair, nil
}
