// Package onetime manages single-use tokens for email verification,
// password reset and the pending-MFA login step. Tokens live only in
// the cache, keyed by digest, and are consumed atomically so each one
// redeems at most once.
package onetime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/verbatimhq/authcore/internal/cache"
	"github.com/verbatimhq/authcore/internal/security/token"
)

// Purpose scopes a token to one flow. A token issued for one purpose
// never redeems under another.
type Purpose string

const (
	PurposeEmailVerify   Purpose = "email-verify"
	PurposePasswordReset Purpose = "password-reset"
	PurposeMFAPending    Purpose = "mfa-pending"
	PurposeOAuthState    Purpose = "oauth-state"
)

// TTLFor returns the lifetime of tokens for a purpose.
func TTLFor(p Purpose) time.Duration {
	switch p {
	case PurposeEmailVerify:
		return 24 * time.Hour
	case PurposePasswordReset:
		return time.Hour
	case PurposeMFAPending:
		return 5 * time.Minute
	case PurposeOAuthState:
		return 10 * time.Minute
	default:
		return time.Hour
	}
}

// ErrInvalid covers unknown, expired and already-consumed tokens. The
// three cases are deliberately indistinguishable to callers.
var ErrInvalid = errors.New("onetime: invalid token")

const tokenBytes = 32

// Manager issues and redeems one-time tokens against the cache.
type Manager struct {
	Cache cache.Client
}

func key(p Purpose, value string) string {
	return fmt.Sprintf("ott:%s:%s", p, token.Digest(value))
}

// Issue creates a token bound to subject (usually a user ID) and
// returns the plaintext. Only the digest is stored.
func (m *Manager) Issue(ctx context.Context, p Purpose, subject string) (string, error) {
	plain, err := token.Generate(tokenBytes)
	if err != nil {
		return "", fmt.Errorf("onetime: generate: %w", err)
	}
	if err := m.Cache.Set(ctx, key(p, plain), subject, TTLFor(p)); err != nil {
		return "", fmt.Errorf("onetime: store: %w", err)
	}
	return plain, nil
}

// Consume redeems the token and returns the bound subject. The
// underlying GetDel makes redemption atomic: of concurrent attempts
// with the same token exactly one succeeds.
func (m *Manager) Consume(ctx context.Context, p Purpose, plain string) (string, error) {
	subject, err := m.Cache.GetDel(ctx, key(p, plain))
	if err != nil {
		if cache.IsNotFound(err) {
			return "", ErrInvalid
		}
		return "", fmt.Errorf("onetime: consume: %w", err)
	}
	return subject, nil
}

// Peek checks the token without consuming it. Used by the MFA step to
// validate the pending-login handle before the TOTP code is checked.
func (m *Manager) Peek(ctx context.Context, p Purpose, plain string) (string, error) {
	subject, err := m.Cache.Get(ctx, key(p, plain))
	if err != nil {
		if cache.IsNotFound(err) {
			return "", ErrInvalid
		}
		return "", fmt.Errorf("onetime: peek: %w", err)
	}
	return subject, nil
}

// Revoke drops a token before use, e.g. when a newer reset email
// supersedes an older one.
func (m *Manager) Revoke(ctx context.Context, p Purpose, plain string) error {
	return m.Cache.Delete(ctx, key(p, plain))
}
