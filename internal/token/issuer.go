// Package token issues and verifies the two token kinds of the
// service: short-lived Ed25519-signed JWT access tokens and opaque
// refresh tokens bound to server-side sessions.
package token

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func newJTI() string { return uuid.NewString() }

var (
	// ErrTokenInvalid covers bad signatures, expiry and malformed input.
	ErrTokenInvalid = errors.New("token: invalid")
	// ErrTokenRevoked marks an access token found on the deny-list.
	ErrTokenRevoked = errors.New("token: revoked")
	// ErrRefreshReplayed marks a refresh token presented again after it
	// was already rotated. The whole session family gets revoked.
	ErrRefreshReplayed = errors.New("token: refresh replayed")
)

// AccessClaims is the payload of an access token.
type AccessClaims struct {
	OrgID     string `json:"org,omitempty"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"sid"`
	jwtv5.RegisteredClaims
}

// Issuer signs access tokens with a single Ed25519 key. The kid header
// is derived from the public key so verifiers can detect key changes.
type Issuer struct {
	Iss       string
	AccessTTL time.Duration

	kid  string
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewIssuer derives the keypair from a base64url-encoded 32-byte seed.
func NewIssuer(iss, seedB64 string, accessTTL time.Duration) (*Issuer, error) {
	seed, err := base64.RawURLEncoding.DecodeString(seedB64)
	if err != nil {
		return nil, fmt.Errorf("token: decode signing seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("token: signing seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)

	sum := sha256.Sum256(pub)
	return &Issuer{
		Iss:       iss,
		AccessTTL: accessTTL,
		kid:       hex.EncodeToString(sum[:8]),
		priv:      priv,
		pub:       pub,
	}, nil
}

// ActiveKID returns the kid of the signing key.
func (i *Issuer) ActiveKID() string { return i.kid }

// PublicKey exposes the verification key (for JWKS-style endpoints).
func (i *Issuer) PublicKey() ed25519.PublicKey { return i.pub }

// IssueAccess signs an access token for the subject.
func (i *Issuer) IssueAccess(sub, orgID, role, sessionID string) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(i.AccessTTL)

	claims := AccessClaims{
		OrgID:     orgID,
		Role:      role,
		SessionID: sessionID,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    i.Iss,
			Subject:   sub,
			IssuedAt:  jwtv5.NewNumericDate(now),
			NotBefore: jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(exp),
			ID:        newJTI(),
		},
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = i.kid
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(i.priv)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseAccess verifies signature, algorithm and time claims.
func (i *Issuer) ParseAccess(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	tk, err := jwtv5.ParseWithClaims(raw, claims, func(t *jwtv5.Token) (any, error) {
		if _, ok := t.Method.(*jwtv5.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.pub, nil
	}, jwtv5.WithIssuer(i.Iss), jwtv5.WithExpirationRequired())
	if err != nil || !tk.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
