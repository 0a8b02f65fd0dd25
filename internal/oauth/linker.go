package oauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/verbatimhq/authcore/internal/domain/repository"
)

// ErrEmailUnverified rejects identities whose provider could not vouch
// for the email. Linking such an identity to an existing account would
// let anyone who controls the provider account take over ours.
var ErrEmailUnverified = errors.New("oauth: provider email not verified")

// Outcome says how an identity was resolved.
type Outcome int

const (
	// OutcomeMatched: the provider identity was already linked.
	OutcomeMatched Outcome = iota
	// OutcomeLinked: an existing local account with the same verified
	// email was linked to the provider identity.
	OutcomeLinked
	// OutcomeCreated: a new account was provisioned.
	OutcomeCreated
)

// Linker resolves a provider identity to a local user, in order:
// provider-id match, verified-email link, fresh account.
type Linker struct {
	Users repository.UserRepository

	// DefaultOrgID and DefaultRole apply to accounts provisioned
	// through federation.
	DefaultOrgID string
	DefaultRole  string
}

// Resolve returns the local user for the identity, creating or linking
// as needed. Email-based linking requires the provider to have
// verified the address.
func (l *Linker) Resolve(ctx context.Context, id Identity) (*repository.User, Outcome, error) {
	if id.Provider == "" || id.ProviderID == "" {
		return nil, 0, fmt.Errorf("oauth: incomplete identity")
	}

	user, err := l.Users.GetByOAuth(ctx, id.Provider, id.ProviderID)
	switch {
	case err == nil:
		return user, OutcomeMatched, nil
	case !repository.IsNotFound(err):
		return nil, 0, fmt.Errorf("oauth: lookup by provider: %w", err)
	}

	if !id.EmailVerified {
		return nil, 0, ErrEmailUnverified
	}
	email := strings.ToLower(strings.TrimSpace(id.Email))
	if email == "" {
		return nil, 0, ErrEmailUnverified
	}

	user, err = l.Users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if err := l.Users.LinkOAuth(ctx, user.ID, id.Provider, id.ProviderID); err != nil {
			if repository.IsConflict(err) {
				// Already linked to a different provider identity.
				return nil, 0, fmt.Errorf("oauth: account already federated: %w", err)
			}
			return nil, 0, fmt.Errorf("oauth: link: %w", err)
		}
		user, err = l.Users.GetByID(ctx, user.ID)
		if err != nil {
			return nil, 0, fmt.Errorf("oauth: reload linked user: %w", err)
		}
		return user, OutcomeLinked, nil
	case !repository.IsNotFound(err):
		return nil, 0, fmt.Errorf("oauth: lookup by email: %w", err)
	}

	user, err = l.Users.Create(ctx, repository.CreateUserInput{
		Email:           email,
		EmailVerified:   true,
		OrganizationID:  l.DefaultOrgID,
		Role:            l.DefaultRole,
		FirstName:       id.FirstName,
		LastName:        id.LastName,
		OAuthProvider:   id.Provider,
		OAuthProviderID: id.ProviderID,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("oauth: provision user: %w", err)
	}
	return user, OutcomeCreated, nil
}
