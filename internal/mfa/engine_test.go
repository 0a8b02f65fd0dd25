package mfa

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verbatimhq/authcore/internal/cache"
	"github.com/verbatimhq/authcore/internal/domain/repository"
	"github.com/verbatimhq/authcore/internal/security/token"
	"github.com/verbatimhq/authcore/internal/security/totp"
)

type fakeMFARepo struct {
	mu          sync.Mutex
	secret      map[string]string
	lastCounter map[string]int64
	codes       map[string]map[string]bool // userID -> codeHash -> used
}

func newFakeMFARepo() *fakeMFARepo {
	return &fakeMFARepo{
		secret:      make(map[string]string),
		lastCounter: make(map[string]int64),
		codes:       make(map[string]map[string]bool),
	}
}

func (f *fakeMFARepo) EnableTOTP(_ context.Context, userID, secretB32 string, codeHashes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.secret[userID] = secretB32
	f.lastCounter[userID] = 0
	set := make(map[string]bool, len(codeHashes))
	for _, h := range codeHashes {
		set[h] = false
	}
	f.codes[userID] = set
	return nil
}

func (f *fakeMFARepo) DisableTOTP(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.secret, userID)
	delete(f.lastCounter, userID)
	delete(f.codes, userID)
	return nil
}

func (f *fakeMFARepo) GetLastCounter(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCounter[userID], nil
}

func (f *fakeMFARepo) SetLastCounter(_ context.Context, userID string, counter int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if counter > f.lastCounter[userID] {
		f.lastCounter[userID] = counter
	}
	return nil
}

func (f *fakeMFARepo) ConsumeBackupCode(_ context.Context, userID, codeHash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	used, ok := f.codes[userID][codeHash]
	if !ok || used {
		return false, nil
	}
	f.codes[userID][codeHash] = true
	return true, nil
}

func (f *fakeMFARepo) UnusedBackupCodes(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, used := range f.codes[userID] {
		if !used {
			n++
		}
	}
	return n, nil
}

func newTestEngine() (*Engine, *fakeMFARepo) {
	repo := newFakeMFARepo()
	return &Engine{Repo: repo, Cache: cache.NewMemory(), Issuer: "authcore-test"}, repo
}

func enrolledUser(t *testing.T, e *Engine) (*repository.User, []byte, []string) {
	t.Helper()
	ctx := context.Background()
	const userID = "user-1"

	enr, err := e.BeginSetup(ctx, userID, "ana@example.com")
	require.NoError(t, err)

	secret, err := totp.DecodeSecret(enr.SecretB32)
	require.NoError(t, err)

	backupCodes, err := e.CompleteSetup(ctx, userID, totp.Code(secret, time.Now()))
	require.NoError(t, err)

	b32 := enr.SecretB32
	return &repository.User{
		ID:         userID,
		MFAEnabled: true,
		MFASecret:  &b32,
	}, secret, backupCodes
}

func TestSetupFlow(t *testing.T) {
	e, repo := newTestEngine()

	user, _, backupCodes := enrolledUser(t, e)

	assert.Len(t, backupCodes, 10)
	for _, c := range backupCodes {
		assert.Regexp(t, `^[a-z2-9]{5}-[a-z2-9]{5}$`, c)
	}
	assert.Contains(t, repo.secret, user.ID)

	remaining, err := e.RemainingBackupCodes(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, remaining)
}

func TestSetupURLContainsIssuerAndSecret(t *testing.T) {
	e, _ := newTestEngine()

	enr, err := e.BeginSetup(context.Background(), "user-1", "ana@example.com")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(enr.URL, "otpauth://totp/"))
	assert.Contains(t, enr.URL, enr.SecretB32)
	assert.Contains(t, enr.URL, "authcore-test")
}

func TestCompleteSetupWrongCode(t *testing.T) {
	e, repo := newTestEngine()
	ctx := context.Background()

	_, err := e.BeginSetup(ctx, "user-1", "ana@example.com")
	require.NoError(t, err)

	_, err = e.CompleteSetup(ctx, "user-1", "000000")
	assert.ErrorIs(t, err, ErrCodeInvalid)
	assert.Empty(t, repo.secret, "nothing persisted on a failed confirmation")
}

func TestCompleteSetupWithoutBegin(t *testing.T) {
	e, _ := newTestEngine()

	_, err := e.CompleteSetup(context.Background(), "user-1", "123456")
	assert.ErrorIs(t, err, ErrNoPendingSetup)
}

func TestVerifyLoginTOTP(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	user, secret, _ := enrolledUser(t, e)

	code := totp.Code(secret, time.Now().Add(totp.Period*time.Second))

	usedBackup, err := e.VerifyLogin(ctx, user, code)
	require.NoError(t, err)
	assert.False(t, usedBackup)

	// Same code again inside its window is a replay.
	_, err = e.VerifyLogin(ctx, user, code)
	assert.ErrorIs(t, err, ErrCodeInvalid)
}

func TestVerifyLoginBackupCode(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	user, _, backupCodes := enrolledUser(t, e)

	usedBackup, err := e.VerifyLogin(ctx, user, backupCodes[0])
	require.NoError(t, err)
	assert.True(t, usedBackup)

	// Single use.
	_, err = e.VerifyLogin(ctx, user, backupCodes[0])
	assert.ErrorIs(t, err, ErrCodeInvalid)

	remaining, err := e.RemainingBackupCodes(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, remaining)
}

func TestVerifyLoginBackupCodeNormalization(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	user, _, backupCodes := enrolledUser(t, e)

	shouty := strings.ToUpper(strings.ReplaceAll(backupCodes[1], "-", ""))
	usedBackup, err := e.VerifyLogin(ctx, user, shouty)
	require.NoError(t, err)
	assert.True(t, usedBackup)
}

func TestVerifyLoginRejectsWrongInputs(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	user, _, _ := enrolledUser(t, e)

	_, err := e.VerifyLogin(ctx, user, "000000")
	assert.ErrorIs(t, err, ErrCodeInvalid)

	_, err = e.VerifyLogin(ctx, user, "not-a-code")
	assert.ErrorIs(t, err, ErrCodeInvalid)
}

func TestVerifyLoginNotEnabled(t *testing.T) {
	e, _ := newTestEngine()

	_, err := e.VerifyLogin(context.Background(), &repository.User{ID: "u"}, "123456")
	assert.ErrorIs(t, err, ErrNotEnabled)
}

func TestDisableClearsState(t *testing.T) {
	e, repo := newTestEngine()
	ctx := context.Background()
	user, _, _ := enrolledUser(t, e)

	require.NoError(t, e.Disable(ctx, user.ID))
	assert.Empty(t, repo.secret)
	assert.Empty(t, repo.codes)
}

func TestBackupCodeHashesMatchDigest(t *testing.T) {
	codes, hashes, err := generateBackupCodes()
	require.NoError(t, err)
	require.Len(t, codes, 10)
	require.Len(t, hashes, 10)
	for i := range codes {
		assert.Equal(t, token.Digest(normalizeBackupCode(codes[i])), hashes[i])
	}
}
