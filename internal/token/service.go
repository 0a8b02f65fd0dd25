package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/verbatimhq/authcore/internal/cache"
	"github.com/verbatimhq/authcore/internal/domain/repository"
	"github.com/verbatimhq/authcore/internal/observability/logger"
	"github.com/verbatimhq/authcore/internal/security/token"
)

const (
	denylistPrefix = "denylist:"
	rotatedPrefix  = "rotated:"

	refreshBytes = 32
)

// Pair is what a successful login or rotation hands back.
type Pair struct {
	AccessToken     string
	AccessExpiresAt time.Time
	RefreshToken    string
	SessionID       string
}

// Service ties the issuer to the session store and the deny-list
// cache. Refresh tokens never touch the database in plaintext; only
// their SHA-256 digest is stored.
type Service struct {
	Issuer     *Issuer
	Sessions   repository.SessionRepository
	Users      repository.UserRepository
	Cache      cache.Client
	RefreshTTL time.Duration
}

// IssuePair creates a fresh session and signs an access token for it.
func (s *Service) IssuePair(ctx context.Context, user *repository.User, ip, userAgent string) (Pair, error) {
	refresh, err := token.Generate(refreshBytes)
	if err != nil {
		return Pair{}, fmt.Errorf("token: generate refresh: %w", err)
	}

	sess, err := s.Sessions.Create(ctx, repository.CreateSessionInput{
		UserID:      user.ID,
		RefreshHash: token.Digest(refresh),
		IPAddress:   ip,
		UserAgent:   userAgent,
		TTL:         s.RefreshTTL,
	})
	if err != nil {
		return Pair{}, fmt.Errorf("token: create session: %w", err)
	}

	access, exp, err := s.Issuer.IssueAccess(user.ID, user.OrganizationID, user.Role, sess.ID)
	if err != nil {
		return Pair{}, fmt.Errorf("token: sign access: %w", err)
	}

	return Pair{
		AccessToken:     access,
		AccessExpiresAt: exp,
		RefreshToken:    refresh,
		SessionID:       sess.ID,
	}, nil
}

// Rotate swaps the presented refresh token for a new pair. The session
// row is updated with a single conditional write, so of concurrent
// presentations of the same token exactly one wins.
//
// A token whose digest misses the live table but appears in the
// recently-rotated cache is a replay: every session of that user is
// revoked and ErrRefreshReplayed is returned.
func (s *Service) Rotate(ctx context.Context, refreshToken string) (Pair, error) {
	oldHash := token.Digest(refreshToken)

	newRefresh, err := token.Generate(refreshBytes)
	if err != nil {
		return Pair{}, fmt.Errorf("token: generate refresh: %w", err)
	}
	newHash := token.Digest(newRefresh)

	sess, err := s.Sessions.Rotate(ctx, oldHash, newHash, s.RefreshTTL)
	if err != nil {
		if repository.IsNotFound(err) {
			return Pair{}, s.handleRotateMiss(ctx, oldHash)
		}
		return Pair{}, fmt.Errorf("token: rotate session: %w", err)
	}

	// Remember the retired digest so a later replay can be attributed
	// to its owner.
	if cerr := s.Cache.Set(ctx, rotatedPrefix+oldHash, sess.UserID, s.RefreshTTL); cerr != nil {
		logger.L().Warn("failed to record rotated refresh digest",
			logger.Component("token"), logger.Err(cerr))
	}

	user, err := s.Users.GetByID(ctx, sess.UserID)
	if err != nil {
		return Pair{}, fmt.Errorf("token: load user: %w", err)
	}
	if !user.IsActive {
		_ = s.Sessions.DeleteByID(ctx, sess.ID)
		return Pair{}, ErrTokenInvalid
	}

	access, exp, err := s.Issuer.IssueAccess(user.ID, user.OrganizationID, user.Role, sess.ID)
	if err != nil {
		return Pair{}, fmt.Errorf("token: sign access: %w", err)
	}
	return Pair{
		AccessToken:     access,
		AccessExpiresAt: exp,
		RefreshToken:    newRefresh,
		SessionID:       sess.ID,
	}, nil
}

func (s *Service) handleRotateMiss(ctx context.Context, oldHash string) error {
	userID, err := s.Cache.Get(ctx, rotatedPrefix+oldHash)
	if err != nil {
		if cache.IsNotFound(err) {
			// Unknown or expired token, not evidence of theft.
			return ErrTokenInvalid
		}
		return fmt.Errorf("token: replay lookup: %w", err)
	}

	n, derr := s.Sessions.DeleteAllForUser(ctx, userID)
	if derr != nil {
		logger.L().Error("failed to revoke sessions after refresh replay",
			logger.Component("token"), logger.UserID(userID), logger.Err(derr))
	} else {
		logger.L().Warn("refresh token replay detected, revoked all sessions",
			logger.Component("token"), logger.UserID(userID), logger.Count(n))
	}
	return ErrRefreshReplayed
}

// Revoke ends one session by its refresh token and deny-lists the
// paired access token for its remaining lifetime.
func (s *Service) Revoke(ctx context.Context, refreshToken, accessToken string) error {
	sess, err := s.Sessions.GetByRefreshHash(ctx, token.Digest(refreshToken))
	if err != nil {
		if repository.IsNotFound(err) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("token: lookup session: %w", err)
	}
	if err := s.Sessions.DeleteByID(ctx, sess.ID); err != nil && !repository.IsNotFound(err) {
		return fmt.Errorf("token: delete session: %w", err)
	}

	if accessToken != "" {
		if err := s.DenyAccess(ctx, accessToken); err != nil && !errors.Is(err, ErrTokenInvalid) {
			return err
		}
	}
	return nil
}

// RevokeAllForUser drops every session of the user. Returns how many
// sessions were ended.
func (s *Service) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	return s.Sessions.DeleteAllForUser(ctx, userID)
}

// DenyAccess puts an access token on the deny-list until it expires.
func (s *Service) DenyAccess(ctx context.Context, accessToken string) error {
	claims, err := s.Issuer.ParseAccess(accessToken)
	if err != nil {
		return ErrTokenInvalid
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	return s.Cache.Set(ctx, denylistPrefix+token.Digest(accessToken), "1", ttl)
}

// VerifyAccess parses the token and rejects deny-listed ones.
func (s *Service) VerifyAccess(ctx context.Context, accessToken string) (*AccessClaims, error) {
	claims, err := s.Issuer.ParseAccess(accessToken)
	if err != nil {
		return nil, err
	}
	found, err := s.Cache.Exists(ctx, denylistPrefix+token.Digest(accessToken))
	if err != nil {
		return nil, fmt.Errorf("token: denylist lookup: %w", err)
	}
	if found {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}
