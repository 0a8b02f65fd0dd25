// Package mfa drives TOTP enrollment and verification plus the
// single-use backup codes that cover a lost authenticator.
package mfa

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/verbatimhq/authcore/internal/cache"
	"github.com/verbatimhq/authcore/internal/domain/repository"
	"github.com/verbatimhq/authcore/internal/security/token"
	"github.com/verbatimhq/authcore/internal/security/totp"
)

var (
	// ErrCodeInvalid covers wrong, expired and replayed codes alike.
	ErrCodeInvalid = errors.New("mfa: invalid code")
	// ErrNoPendingSetup means CompleteSetup arrived without BeginSetup
	// or after the setup window closed.
	ErrNoPendingSetup = errors.New("mfa: no pending setup")
	// ErrNotEnabled means the user has no confirmed TOTP secret.
	ErrNotEnabled = errors.New("mfa: not enabled")
)

const (
	setupTTL        = 10 * time.Minute
	setupKeyPrefix  = "mfa:setup:"
	backupCodeCount = 10
)

// Enrollment is handed back from BeginSetup for the QR screen.
type Enrollment struct {
	SecretB32 string
	URL       string
}

// Engine holds the moving parts of the MFA flows. The pending secret
// lives only in the cache until the user proves possession.
type Engine struct {
	Repo   repository.MFARepository
	Cache  cache.Client
	Issuer string
}

// BeginSetup generates a fresh secret and parks it for up to ten
// minutes. Re-invoking replaces the pending secret.
func (e *Engine) BeginSetup(ctx context.Context, userID, accountName string) (Enrollment, error) {
	_, b32, err := totp.GenerateSecret()
	if err != nil {
		return Enrollment{}, fmt.Errorf("mfa: generate secret: %w", err)
	}
	if err := e.Cache.Set(ctx, setupKeyPrefix+userID, b32, setupTTL); err != nil {
		return Enrollment{}, fmt.Errorf("mfa: stage secret: %w", err)
	}
	return Enrollment{
		SecretB32: b32,
		URL:       totp.OTPAuthURL(e.Issuer, accountName, b32),
	}, nil
}

// CompleteSetup confirms the pending secret with a live code, persists
// it and returns the backup codes. The plaintext codes exist only in
// this return value.
func (e *Engine) CompleteSetup(ctx context.Context, userID, code string) ([]string, error) {
	b32, err := e.Cache.Get(ctx, setupKeyPrefix+userID)
	if err != nil {
		if cache.IsNotFound(err) {
			return nil, ErrNoPendingSetup
		}
		return nil, fmt.Errorf("mfa: load pending secret: %w", err)
	}
	secret, err := totp.DecodeSecret(b32)
	if err != nil {
		return nil, fmt.Errorf("mfa: decode pending secret: %w", err)
	}

	ok, _ := totp.Verify(secret, code, time.Now(), totp.DefaultWindow, nil)
	if !ok {
		return nil, ErrCodeInvalid
	}

	codes, hashes, err := generateBackupCodes()
	if err != nil {
		return nil, fmt.Errorf("mfa: generate backup codes: %w", err)
	}
	if err := e.Repo.EnableTOTP(ctx, userID, b32, hashes); err != nil {
		return nil, fmt.Errorf("mfa: enable: %w", err)
	}
	_ = e.Cache.Delete(ctx, setupKeyPrefix+userID)
	return codes, nil
}

// VerifyLogin checks a code during login: six digits go through TOTP
// with counter-based replay protection, anything else is tried as a
// backup code. Returns whether a backup code was burned.
func (e *Engine) VerifyLogin(ctx context.Context, user *repository.User, code string) (usedBackup bool, err error) {
	if !user.MFAEnabled || user.MFASecret == nil {
		return false, ErrNotEnabled
	}
	code = strings.TrimSpace(code)

	if looksLikeTOTP(code) {
		secret, derr := totp.DecodeSecret(*user.MFASecret)
		if derr != nil {
			return false, fmt.Errorf("mfa: decode secret: %w", derr)
		}
		last, gerr := e.Repo.GetLastCounter(ctx, user.ID)
		if gerr != nil {
			return false, fmt.Errorf("mfa: last counter: %w", gerr)
		}
		ok, counter := totp.Verify(secret, code, time.Now(), totp.DefaultWindow, &last)
		if !ok {
			return false, ErrCodeInvalid
		}
		if serr := e.Repo.SetLastCounter(ctx, user.ID, counter); serr != nil {
			return false, fmt.Errorf("mfa: store counter: %w", serr)
		}
		return false, nil
	}

	consumed, cerr := e.Repo.ConsumeBackupCode(ctx, user.ID, token.Digest(normalizeBackupCode(code)))
	if cerr != nil {
		return false, fmt.Errorf("mfa: consume backup code: %w", cerr)
	}
	if !consumed {
		return false, ErrCodeInvalid
	}
	return true, nil
}

// Disable clears everything. Password re-verification happens in the
// calling service.
func (e *Engine) Disable(ctx context.Context, userID string) error {
	if err := e.Repo.DisableTOTP(ctx, userID); err != nil {
		return fmt.Errorf("mfa: disable: %w", err)
	}
	_ = e.Cache.Delete(ctx, setupKeyPrefix+userID)
	return nil
}

// RemainingBackupCodes reports how many unused codes the user has left.
func (e *Engine) RemainingBackupCodes(ctx context.Context, userID string) (int, error) {
	return e.Repo.UnusedBackupCodes(ctx, userID)
}

func looksLikeTOTP(code string) bool {
	if len(code) != totp.Digits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// backupCodeAlphabet avoids look-alike characters.
const backupCodeAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"

// generateBackupCodes builds codes shaped "xxxxx-xxxxx" and their
// digests for storage.
func generateBackupCodes() (codes, hashes []string, err error) {
	codes = make([]string, 0, backupCodeCount)
	hashes = make([]string, 0, backupCodeCount)
	buf := make([]byte, 10)
	for i := 0; i < backupCodeCount; i++ {
		if _, err = rand.Read(buf); err != nil {
			return nil, nil, err
		}
		chars := make([]byte, len(buf))
		for j, b := range buf {
			chars[j] = backupCodeAlphabet[int(b)%len(backupCodeAlphabet)]
		}
		code := string(chars[:5]) + "-" + string(chars[5:])
		codes = append(codes, code)
		hashes = append(hashes, token.Digest(normalizeBackupCode(code)))
	}
	return codes, hashes, nil
}

// normalizeBackupCode makes redemption forgiving about case and the
// separator dash.
func normalizeBackupCode(code string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
}
