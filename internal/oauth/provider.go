// Package oauth federates login through external identity providers
// and resolves the returned identity to a local account.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Identity is the provider-neutral result of a completed OAuth
// exchange.
type Identity struct {
	Provider      string
	ProviderID    string
	Email         string
	EmailVerified bool
	FirstName     string
	LastName      string
}

// Provider is one configured upstream (google, github).
type Provider interface {
	// Name is the stable lower-case identifier used in URLs and in the
	// oauth_provider column.
	Name() string

	// AuthURL builds the redirect target for the authorization step.
	AuthURL(ctx context.Context, state, nonce string) (string, error)

	// Exchange trades the callback code for a verified Identity. The
	// nonce must match the one sent in AuthURL for OIDC providers;
	// plain OAuth 2.0 providers ignore it.
	Exchange(ctx context.Context, code, nonce string) (Identity, error)
}

// ErrUnknownProvider is returned for a provider name nobody registered.
var ErrUnknownProvider = errors.New("oauth: unknown provider")

// Registry holds the configured providers.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get resolves a provider by name, case-insensitively.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists the registered providers, sorted for stable output.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
