package auth

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verbatimhq/authcore/internal/audit"
	"github.com/verbatimhq/authcore/internal/cache"
	"github.com/verbatimhq/authcore/internal/domain/repository"
	"github.com/verbatimhq/authcore/internal/email"
	httperrors "github.com/verbatimhq/authcore/internal/http/errors"
	"github.com/verbatimhq/authcore/internal/mfa"
	"github.com/verbatimhq/authcore/internal/oauth"
	"github.com/verbatimhq/authcore/internal/onetime"
	"github.com/verbatimhq/authcore/internal/security/password"
	"github.com/verbatimhq/authcore/internal/security/token"
	"github.com/verbatimhq/authcore/internal/security/totp"
	tokensvc "github.com/verbatimhq/authcore/internal/token"
)

// cheapParams keeps argon2 fast in tests; work factors are covered by
// the password package's own tests.
var cheapParams = password.Params{Memory: 64, Time: 1, Parallelism: 1, KeyLen: 32}

type fakeUsers struct {
	mu   sync.Mutex
	byID map[string]*repository.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: make(map[string]*repository.User)}
}

func (f *fakeUsers) Create(_ context.Context, in repository.CreateUserInput) (*repository.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == in.Email {
			return nil, repository.ErrConflict
		}
	}
	u := &repository.User{
		ID:             uuid.NewString(),
		Email:          in.Email,
		EmailVerified:  in.EmailVerified,
		IsActive:       true,
		OrganizationID: in.OrganizationID,
		Role:           in.Role,
		CreatedAt:      time.Now().UTC(),
	}
	if in.PasswordHash != "" {
		h := in.PasswordHash
		u.PasswordHash = &h
	}
	if in.OAuthProvider != "" {
		p, pid := in.OAuthProvider, in.OAuthProviderID
		u.OAuthProvider = &p
		u.OAuthProviderID = &pid
	}
	f.byID[u.ID] = u
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*repository.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*repository.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetByOAuth(_ context.Context, provider, providerID string) (*repository.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.OAuthProvider != nil && *u.OAuthProvider == provider &&
			u.OAuthProviderID != nil && *u.OAuthProviderID == providerID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) LinkOAuth(_ context.Context, userID, provider, providerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return repository.ErrNotFound
	}
	if u.OAuthProvider != nil {
		return repository.ErrConflict
	}
	u.OAuthProvider = &provider
	u.OAuthProviderID = &providerID
	u.EmailVerified = true
	return nil
}

func (f *fakeUsers) SetEmailVerified(_ context.Context, userID string, verified bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.EmailVerified = verified
	return nil
}

func (f *fakeUsers) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = &newHash
	return nil
}

func (f *fakeUsers) SetLastLogin(_ context.Context, userID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byID[userID]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

func (f *fakeUsers) SetActive(_ context.Context, userID string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.IsActive = active
	return nil
}

type fakeOrgs struct {
	mu   sync.Mutex
	byID map[string]*repository.Organization
}

func newFakeOrgs() *fakeOrgs {
	return &fakeOrgs{byID: make(map[string]*repository.Organization)}
}

func (f *fakeOrgs) Create(_ context.Context, name string) (*repository.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.byID {
		if o.Name == name {
			return nil, repository.ErrConflict
		}
	}
	o := &repository.Organization{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC()}
	f.byID[o.ID] = o
	cp := *o
	return &cp, nil
}

func (f *fakeOrgs) GetByID(_ context.Context, id string) (*repository.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrgs) GetByName(_ context.Context, name string) (*repository.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.byID {
		if o.Name == name {
			cp := *o
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

type fakeSessions struct {
	mu     sync.Mutex
	byHash map[string]*repository.Session
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byHash: make(map[string]*repository.Session)}
}

func (f *fakeSessions) Create(_ context.Context, in repository.CreateSessionInput) (*repository.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &repository.Session{
		ID:          uuid.NewString(),
		UserID:      in.UserID,
		RefreshHash: in.RefreshHash,
		IPAddress:   in.IPAddress,
		UserAgent:   in.UserAgent,
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   time.Now().UTC().Add(in.TTL),
	}
	f.byHash[in.RefreshHash] = s
	cp := *s
	return &cp, nil
}

func (f *fakeSessions) GetByRefreshHash(_ context.Context, hash string) (*repository.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byHash[hash]
	if !ok || s.ExpiresAt.Before(time.Now()) {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessions) Rotate(_ context.Context, oldHash, newHash string, ttl time.Duration) (*repository.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byHash[oldHash]
	if !ok || s.ExpiresAt.Before(time.Now()) {
		return nil, repository.ErrNotFound
	}
	delete(f.byHash, oldHash)
	s.RefreshHash = newHash
	s.RotationCount++
	s.ExpiresAt = time.Now().UTC().Add(ttl)
	f.byHash[newHash] = s
	cp := *s
	return &cp, nil
}

func (f *fakeSessions) DeleteByID(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for h, s := range f.byHash {
		if s.ID == id {
			delete(f.byHash, h)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeSessions) DeleteAllForUser(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for h, s := range f.byHash {
		if s.UserID == userID {
			delete(f.byHash, h)
			n++
		}
	}
	return n, nil
}

func (f *fakeSessions) DeleteExpired(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for h, s := range f.byHash {
		if s.ExpiresAt.Before(time.Now()) {
			delete(f.byHash, h)
			n++
		}
	}
	return n, nil
}

func (f *fakeSessions) count(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.byHash {
		if s.UserID == userID {
			n++
		}
	}
	return n
}

// fakeMFARepo keeps MFA state and mirrors the enabled flag into the
// user record, the way the real store does in one transaction.
type fakeMFARepo struct {
	mu    sync.Mutex
	users *fakeUsers

	lastCounter map[string]int64
	codes       map[string]map[string]bool // userID -> codeHash -> used
}

func newFakeMFARepo(users *fakeUsers) *fakeMFARepo {
	return &fakeMFARepo{
		users:       users,
		lastCounter: make(map[string]int64),
		codes:       make(map[string]map[string]bool),
	}
}

func (f *fakeMFARepo) EnableTOTP(_ context.Context, userID, secretB32 string, codeHashes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users.mu.Lock()
	u, ok := f.users.byID[userID]
	if ok {
		u.MFAEnabled = true
		s := secretB32
		u.MFASecret = &s
	}
	f.users.mu.Unlock()
	if !ok {
		return repository.ErrNotFound
	}
	f.lastCounter[userID] = 0
	f.codes[userID] = make(map[string]bool, len(codeHashes))
	for _, h := range codeHashes {
		f.codes[userID][h] = false
	}
	return nil
}

func (f *fakeMFARepo) DisableTOTP(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users.mu.Lock()
	if u, ok := f.users.byID[userID]; ok {
		u.MFAEnabled = false
		u.MFASecret = nil
	}
	f.users.mu.Unlock()
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

type capturedMail struct {
	To      string
	Subject string
}

type captureSender struct {
	mu   sync.Mutex
	sent []capturedMail
}

func (c *captureSender) Send(_ context.Context, to, subject, _, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, capturedMail{To: to, Subject: subject})
	return nil
}

func (c *captureSender) subjects() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	for i, m := range c.sent {
		out[i] = m.Subject
	}
	return out
}

// fakeProvider exchanges the fixed code "good-code" for its configured
// identity.
type fakeProvider struct {
	identity  oauth.Identity
	lastNonce string
}

func (p *fakeProvider) Name() string { return "testidp" }

func (p *fakeProvider) AuthURL(_ context.Context, state, nonce string) (string, error) {
	return "https://idp.test/authorize?state=" + state, nil
}

func (p *fakeProvider) Exchange(_ context.Context, code, nonce string) (oauth.Identity, error) {
	p.lastNonce = nonce
	if code != "good-code" {
		return oauth.Identity{}, fmt.Errorf("idp rejected the code")
	}
	return p.identity, nil
}

type testEnv struct {
	svc      *Service
	users    *fakeUsers
	orgs     *fakeOrgs
	sessions *fakeSessions
	mail     *captureSender
	spy      *audit.Spy
	provider *fakeProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := newFakeUsers()
	orgs := newFakeOrgs()
	sessions := newFakeSessions()
	c := cache.NewMemory()
	spy := &audit.Spy{}
	sender := &captureSender{}

	mailer, err := email.NewMailer(sender, "https://app.test")
	require.NoError(t, err)

	seed, err := token.Generate(32)
	require.NoError(t, err)
	issuer, err := tokensvc.NewIssuer("https://auth.test", seed, 15*time.Minute)
	require.NoError(t, err)

	provider := &fakeProvider{identity: oauth.Identity{
		Provider:      "testidp",
		ProviderID:    "idp-123",
		Email:         "fede@example.com",
		EmailVerified: true,
		FirstName:     "Fede",
	}}

	svc := New(Service{
		Users: users,
		Orgs:  orgs,
		Tokens: &tokensvc.Service{
			Issuer:     issuer,
			Sessions:   sessions,
			Users:      users,
			Cache:      c,
			RefreshTTL: 30 * 24 * time.Hour,
		},
		MFA:          &mfa.Engine{Repo: newFakeMFARepo(users), Cache: c, Issuer: "AuthCore"},
		OneTime:      &onetime.Manager{Cache: c},
		Mailer:       mailer,
		Audit:        spy,
		Providers:    oauth.NewRegistry(provider),
		Linker:       &oauth.Linker{Users: users, DefaultOrgID: "org-1", DefaultRole: "member"},
		Policy:       password.DefaultPolicy,
		HashParams:   cheapParams,
		VerifyTTL:    24 * time.Hour,
		ResetTTL:     time.Hour,
		DefaultOrgID: "org-1",
		DefaultRole:  "member",
	}, 4)

	return &testEnv{svc: svc, users: users, orgs: orgs, sessions: sessions, mail: sender, spy: spy, provider: provider}
}

const goodPassword = "Sunny-day-42"

var meta = Meta{IP: "203.0.113.7", UserAgent: "go-test"}

// registerVerified shortcuts registration plus email confirmation.
func registerVerified(t *testing.T, env *testEnv, email string) *repository.User {
	t.Helper()
	ctx := context.Background()
	user, appErr := env.svc.Register(ctx, email, goodPassword, "Ana", "Souza", "", meta)
	require.Nil(t, appErr)
	require.NoError(t, env.users.SetEmailVerified(ctx, user.ID, true))
	user.EmailVerified = true
	return user
}

func assertCode(t *testing.T, appErr *httperrors.AppError, want *httperrors.AppError) {
	t.Helper()
	require.NotNil(t, appErr)
	assert.Equal(t, want.Code, appErr.Code)
}

func TestRegisterSendsVerificationAndRejectsDuplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, appErr := env.svc.Register(ctx, "ana@example.com", goodPassword, "Ana", "Souza", "", meta)
	require.Nil(t, appErr)
	assert.False(t, user.EmailVerified)
	assert.Equal(t, "org-1", user.OrganizationID)
	assert.Equal(t, "member", user.Role)
	assert.Contains(t, env.mail.subjects(), "Confirm your email")
	assert.Contains(t, env.spy.Actions(), audit.ActionRegister)

	_, appErr = env.svc.Register(ctx, "ana@example.com", goodPassword, "Ana", "Souza", "", meta)
	assertCode(t, appErr, httperrors.ErrEmailAlreadyInUse)
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	env := newTestEnv(t)

	_, appErr := env.svc.Register(context.Background(), "ana@example.com", "short", "", "", "", meta)
	assertCode(t, appErr, httperrors.ErrPasswordTooWeak)
	assert.NotEmpty(t, appErr.Detail)
}

func TestLoginUnknownAndWrongPasswordLookAlike(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registerVerified(t, env, "ana@example.com")

	_, unknownErr := env.svc.Login(ctx, "nobody@example.com", goodPassword, meta)
	_, wrongErr := env.svc.Login(ctx, "ana@example.com", "not-the-password", meta)

	assertCode(t, unknownErr, httperrors.ErrInvalidCredentials)
	assertCode(t, wrongErr, httperrors.ErrInvalidCredentials)
	assert.Equal(t, unknownErr.Message, wrongErr.Message)
}

func TestLoginRequiresVerifiedEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, appErr := env.svc.Register(ctx, "ana@example.com", goodPassword, "", "", "", meta)
	require.Nil(t, appErr)

	_, appErr = env.svc.Login(ctx, "ana@example.com", goodPassword, meta)
	assertCode(t, appErr, httperrors.ErrAccountNotVerified)
}

func TestLoginRejectsSuspendedAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := registerVerified(t, env, "ana@example.com")
	require.NoError(t, env.users.SetActive(ctx, user.ID, false))

	_, appErr := env.svc.Login(ctx, "ana@example.com", goodPassword, meta)
	assertCode(t, appErr, httperrors.ErrAccountSuspended)
}

func TestLoginIssuesPairWithoutMFA(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := registerVerified(t, env, "ana@example.com")

	res, appErr := env.svc.Login(ctx, "ana@example.com", goodPassword, meta)
	require.Nil(t, appErr)
	assert.False(t, res.MFARequired)
	assert.NotEmpty(t, res.Pair.AccessToken)
	assert.NotEmpty(t, res.Pair.RefreshToken)
	assert.Equal(t, 1, env.sessions.count(user.ID))
	assert.Contains(t, env.spy.Actions(), audit.ActionLoginSuccess)

	fresh, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.NotNil(t, fresh.LastLoginAt)
}

// enableMFA runs the full setup flow and returns the secret plus the
// backup codes.
func enableMFA(t *testing.T, env *testEnv, userID string) (secretRaw []byte, backupCodes []string) {
	t.Helper()
	ctx := context.Background()

	secretB32, url, appErr := env.svc.BeginMFASetup(ctx, userID)
	require.Nil(t, appErr)
	assert.Contains(t, url, "otpauth://totp/")

	raw, err := totp.DecodeSecret(secretB32)
	require.NoError(t, err)

	codes, appErr := env.svc.ConfirmMFASetup(ctx, userID, totp.Code(raw, time.Now()), meta)
	require.Nil(t, appErr)
	require.Len(t, codes, 10)
	return raw, codes
}

func TestMFASetupLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := registerVerified(t, env, "ana@example.com")

	enabled, _, appErr := env.svc.MFAStatus(ctx, user.ID)
	require.Nil(t, appErr)
	assert.False(t, enabled)

	_, appErr = env.svc.ConfirmMFASetup(ctx, user.ID, "000000", meta)
	assertCode(t, appErr, httperrors.ErrBadRequest)

	enableMFA(t, env, user.ID)

	enabled, remaining, appErr := env.svc.MFAStatus(ctx, user.ID)
	require.Nil(t, appErr)
	assert.True(t, enabled)
	assert.Equal(t, 10, remaining)
	assert.Contains(t, env.spy.Actions(), audit.ActionMFAEnabled)

	_, _, appErr = env.svc.BeginMFASetup(ctx, user.ID)
	assertCode(t, appErr, httperrors.ErrMFAAlreadyEnabled)
}

func TestMFALoginWithTOTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := registerVerified(t, env, "ana@example.com")
	secret, _ := enableMFA(t, env, user.ID)

	res, appErr := env.svc.Login(ctx, "ana@example.com", goodPassword, meta)
	require.Nil(t, appErr)
	require.True(t, res.MFARequired)
	require.NotEmpty(t, res.MFAToken)
	assert.Empty(t, res.Pair.AccessToken, "no tokens before the second factor")

	// A wrong code leaves the pending token valid for another try.
	_, appErr = env.svc.VerifyMFALogin(ctx, res.MFAToken, "000000", meta)
	assertCode(t, appErr, httperrors.ErrMFACodeInvalid)

	done, appErr := env.svc.VerifyMFALogin(ctx, res.MFAToken, totp.Code(secret, time.Now()), meta)
	require.Nil(t, appErr)
	assert.NotEmpty(t, done.Pair.AccessToken)

	// Success consumed the pending token.
	_, appErr = env.svc.VerifyMFALogin(ctx, res.MFAToken, totp.Code(secret, time.Now()), meta)
	assertCode(t, appErr, httperrors.ErrTokenInvalid)
}

func TestMFATOTPCodeDoesNotReplayAcrossLogins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := registerVerified(t, env, "ana@example.com")
	secret, _ := enableMFA(t, env, user.ID)
	code := totp.Code(secret, time.Now())

	res, appErr := env.svc.Login(ctx, "ana@example.com", goodPassword, meta)
	require.Nil(t, appErr)
	_, appErr = env.svc.VerifyMFALogin(ctx, res.MFAToken, code, meta)
	require.Nil(t, appErr)

	res, appErr = env.svc.Login(ctx, "ana@example.com", goodPassword, meta)
	require.Nil(t, appErr)
	_, appErr = env.svc.VerifyMFALogin(ctx, res.MFAToken, code, meta)
	assertCode(t, appErr, httperrors.ErrMFACodeInvalid)
}

func TestMFALoginWithBackupCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := registerVerified(t, env, "ana@example.com")
	_, codes := enableMFA(t, env, user.ID)

	res, appErr := env.svc.Login(ctx, "ana@example.com", goodPassword, meta)
	require.Nil(t, appErr)

	done, appErr := env.svc.VerifyMFALogin(ctx, res.MFAToken, codes[0], meta)
	require.Nil(t, appErr)
	assert.NotEmpty(t, done.Pair.AccessToken)
	assert.Contains(t, env.spy.Actions(), audit.ActionMFABackupUsed)
	assert.Contains(t, env.mail.subjects(), "Security notice")

	_, remaining, appErr := env.svc.MFAStatus(ctx, user.ID)
	require.Nil(t, appErr)
	assert.Equal(t, 9, remaining)

	// The burned code never redeems again.
	res, appErr = env.svc.Login(ctx, "ana@example.com", goodPassword, meta)
	require.Nil(t, appErr)
	_, appErr = env.svc.VerifyMFALogin(ctx, res.MFAToken, codes[0], meta)
	assertCode(t, appErr, httperrors.ErrMFACodeInvalid)
}

func TestDisableMFARequiresPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := registerVerified(t, env, "ana@example.com")
	enableMFA(t, env, user.ID)

	appErr := env.svc.DisableMFA(ctx, user.ID, "not-the-password", meta)
	assertCode(t, appErr, httperrors.ErrInvalidCredentials)

	appErr = env.svc.DisableMFA(ctx, user.ID, goodPassword, meta)
	require.Nil(t, appErr)
	assert.Contains(t, env.spy.Actions(), audit.ActionMFADisabled)

	res, loginErr := env.svc.Login(ctx, "ana@example.com", goodPassword, meta)
	require.Nil(t, loginErr)
	assert.False(t, res.MFARequired)
}

func TestRefreshReplayRevokesAndAudits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := registerVerified(t, env, "ana@example.com")

	res, appErr := env.svc.Login(ctx, "ana@example.com", goodPassword, meta)
	require.Nil(t, appErr)

	rotated, appErr := env.svc.Refresh(ctx, res.Pair.RefreshToken, meta)
	require.Nil(t, appErr)
	assert.NotEqual(t, res.Pair.RefreshToken, rotated.RefreshToken)

	_, appErr = env.svc.Refresh(ctx, res.Pair.RefreshToken, meta)
	assertCode(t, appErr, httperrors.ErrTokenInvalid)
	assert.Contains(t, env.spy.Actions(), audit.ActionTokenReplay)
	assert.Equal(t, 0, env.sessions.count(user.ID))
}

func TestLogoutIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registerVerified(t, env, "ana@example.com")

	res, appErr := env.svc.Login(ctx, "ana@example.com", goodPassword, meta)
	require.Nil(t, appErr)

	require.Nil(t, env.svc.Logout(ctx, res.Pair.RefreshToken, res.Pair.AccessToken, meta))
	require.Nil(t, env.svc.Logout(ctx, res.Pair.RefreshToken, "", meta))
}

func TestLogoutAllEndsEverySession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := registerVerified(t, env, "ana@example.com")

	for i := 0; i < 3; i++ {
		_, appErr := env.svc.Login(ctx, "ana@example.com", goodPassword, meta)
		require.Nil(t, appErr)
	}

	n, appErr := env.svc.LogoutAll(ctx, user.ID, meta)
	require.Nil(t, appErr)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, env.sessions.count(user.ID))
}

func TestVerifyEmailTokenIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, appErr := env.svc.Register(ctx, "ana@example.com", goodPassword, "", "", "", meta)
	require.Nil(t, appErr)

	tok, err := env.svc.OneTime.Issue(ctx, onetime.PurposeEmailVerify, user.ID)
	require.NoError(t, err)

	require.Nil(t, env.svc.VerifyEmail(ctx, tok, meta))
	fresh, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, fresh.EmailVerified)

	appErr = env.svc.VerifyEmail(ctx, tok, meta)
	assertCode(t, appErr, httperrors.ErrTokenInvalid)
}

func TestForgotPasswordAnswersUniformly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registerVerified(t, env, "ana@example.com")
	before := len(env.mail.subjects())

	env.svc.ForgotPassword(ctx, "ana@example.com", meta)
	env.svc.ForgotPassword(ctx, "nobody@example.com", meta)

	// Delivery is asynchronous; mail goes out only for the known account.
	require.Eventually(t, func() bool {
		return len(env.mail.subjects()) == before+1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "Reset your password", env.mail.subjects()[before])
}

func TestResetPasswordRevokesAllSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := registerVerified(t, env, "ana@example.com")

	_, appErr := env.svc.Login(ctx, "ana@example.com", goodPassword, meta)
	require.Nil(t, appErr)

	tok, err := env.svc.OneTime.Issue(ctx, onetime.PurposePasswordReset, user.ID)
	require.NoError(t, err)

	const newPassword = "Rainy-day-43"
	require.Nil(t, env.svc.ResetPassword(ctx, tok, newPassword, meta))
	assert.Equal(t, 0, env.sessions.count(user.ID))
	assert.Contains(t, env.spy.Actions(), audit.ActionPasswordReset)

	_, appErr = env.svc.Login(ctx, "ana@example.com", goodPassword, meta)
	assertCode(t, appErr, httperrors.ErrInvalidCredentials)
	_, appErr = env.svc.Login(ctx, "ana@example.com", newPassword, meta)
	require.Nil(t, appErr)

	// The token burned on first use.
	appErr = env.svc.ResetPassword(ctx, tok, newPassword, meta)
	assertCode(t, appErr, httperrors.ErrTokenInvalid)
}

func TestChangePasswordChecksCurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := registerVerified(t, env, "ana@example.com")

	appErr := env.svc.ChangePassword(ctx, user.ID, "not-the-password", "Rainy-day-43", meta)
	assertCode(t, appErr, httperrors.ErrInvalidCredentials)

	require.Nil(t, env.svc.ChangePassword(ctx, user.ID, goodPassword, "Rainy-day-43", meta))
	_, loginErr := env.svc.Login(ctx, "ana@example.com", "Rainy-day-43", meta)
	require.Nil(t, loginErr)
}

func TestRegisterCreatesOrganizationWhenNamed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, appErr := env.svc.Register(ctx, "ana@example.com", goodPassword, "Ana", "", "Acme Corp", meta)
	require.Nil(t, appErr)

	org, err := env.orgs.GetByName(ctx, "Acme Corp")
	require.NoError(t, err)
	assert.Equal(t, org.ID, user.OrganizationID)
	assert.Equal(t, "admin", user.Role, "org creator administers the new tenant")

	_, appErr = env.svc.Register(ctx, "bob@example.com", goodPassword, "", "", "Acme Corp", meta)
	assertCode(t, appErr, httperrors.ErrConflict)
}

func TestMFALoginRejectsSuspensionDuringChallenge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := registerVerified(t, env, "ana@example.com")
	secret, _ := enableMFA(t, env, user.ID)

	res, appErr := env.svc.Login(ctx, "ana@example.com", goodPassword, meta)
	require.Nil(t, appErr)
	require.True(t, res.MFARequired)

	// Suspension lands while the challenge is pending; a valid code
	// must not complete the login.
	require.NoError(t, env.users.SetActive(ctx, user.ID, false))

	_, appErr = env.svc.VerifyMFALogin(ctx, res.MFAToken, totp.Code(secret, time.Now()), meta)
	assertCode(t, appErr, httperrors.ErrAccountSuspended)
	assert.Equal(t, 0, env.sessions.count(user.ID))
}

func TestBackupCodeConcurrentRedemptionHasOneWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := registerVerified(t, env, "ana@example.com")
	_, codes := enableMFA(t, env, user.ID)

	resA, appErr := env.svc.Login(ctx, "ana@example.com", goodPassword, meta)
	require.Nil(t, appErr)
	resB, appErr := env.svc.Login(ctx, "ana@example.com", goodPassword, meta)
	require.Nil(t, appErr)

	tokens := []string{resA.MFAToken, resB.MFAToken}
	errs := make([]*httperrors.AppError, len(tokens))
	var wg sync.WaitGroup
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.VerifyMFALogin(ctx, tokens[i], codes[0], meta)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, e := range errs {
		if e == nil {
			successes++
		} else {
			assert.Equal(t, httperrors.ErrMFACodeInvalid.Code, e.Code)
		}
	}
	assert.Equal(t, 1, successes, "the same backup code redeems exactly once")
}

func TestResendVerificationAuditsAndRedelivers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, appErr := env.svc.Register(ctx, "ana@example.com", goodPassword, "", "", "", meta)
	require.Nil(t, appErr)
	before := len(env.mail.subjects())

	env.svc.ResendVerification(ctx, "ana@example.com", meta)
	assert.Contains(t, env.spy.Actions(), audit.ActionVerificationResent)
	require.Eventually(t, func() bool {
		return len(env.mail.subjects()) == before+1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "Confirm your email", env.mail.subjects()[before])
}

func TestOAuthSignupThenLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, state, appErr := env.svc.StartOAuth(ctx, "testidp")
	require.Nil(t, appErr)

	pair, appErr := env.svc.CompleteOAuth(ctx, "testidp", "good-code", state, meta)
	require.Nil(t, appErr)
	assert.NotEmpty(t, pair.AccessToken)
	assert.Contains(t, env.spy.Actions(), audit.ActionOAuthSignup)

	user, err := env.users.GetByEmail(ctx, "fede@example.com")
	require.NoError(t, err)
	assert.True(t, user.EmailVerified)
	assert.Nil(t, user.PasswordHash)

	// Second round trip finds the linked identity.
	_, state, appErr = env.svc.StartOAuth(ctx, "testidp")
	require.Nil(t, appErr)
	_, appErr = env.svc.CompleteOAuth(ctx, "testidp", "good-code", state, meta)
	require.Nil(t, appErr)
	assert.Contains(t, env.spy.Actions(), audit.ActionOAuthLogin)
}

func TestOAuthLinksExistingAccountAndNotifies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registerVerified(t, env, "fede@example.com")

	_, state, appErr := env.svc.StartOAuth(ctx, "testidp")
	require.Nil(t, appErr)

	_, appErr = env.svc.CompleteOAuth(ctx, "testidp", "good-code", state, meta)
	require.Nil(t, appErr)
	assert.Contains(t, env.spy.Actions(), audit.ActionOAuthLink)
	assert.Contains(t, env.mail.subjects(), "Security notice")

	user, err := env.users.GetByEmail(ctx, "fede@example.com")
	require.NoError(t, err)
	require.NotNil(t, user.OAuthProvider)
	assert.Equal(t, "testidp", *user.OAuthProvider)
	assert.NotNil(t, user.PasswordHash, "linking keeps the password")
}

func TestOAuthStateIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, state, appErr := env.svc.StartOAuth(ctx, "testidp")
	require.Nil(t, appErr)

	_, appErr = env.svc.CompleteOAuth(ctx, "testidp", "good-code", state, meta)
	require.Nil(t, appErr)

	_, appErr = env.svc.CompleteOAuth(ctx, "testidp", "good-code", state, meta)
	assertCode(t, appErr, httperrors.ErrTokenInvalid)
}

func TestOAuthRejectsUnknownProviderAndBadCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _, appErr := env.svc.StartOAuth(ctx, "facebook")
	assertCode(t, appErr, httperrors.ErrUnknownProvider)

	_, state, appErr := env.svc.StartOAuth(ctx, "testidp")
	require.Nil(t, appErr)
	_, appErr = env.svc.CompleteOAuth(ctx, "testidp", "bad-code", state, meta)
	assertCode(t, appErr, httperrors.ErrUpstreamProvider)
}

func TestOAuthRejectsUnverifiedProviderEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.provider.identity.EmailVerified = false

	_, state, appErr := env.svc.StartOAuth(ctx, "testidp")
	require.Nil(t, appErr)
	_, appErr = env.svc.CompleteOAuth(ctx, "testidp", "good-code", state, meta)
	assertCode(t, appErr, httperrors.ErrForbidden)
}

func TestOAuthRejectsSuspendedAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, state, appErr := env.svc.StartOAuth(ctx, "testidp")
	require.Nil(t, appErr)
	_, appErr = env.svc.CompleteOAuth(ctx, "testidp", "good-code", state, meta)
	require.Nil(t, appErr)

	user, err := env.users.GetByEmail(ctx, "fede@example.com")
	require.NoError(t, err)
	require.NoError(t, env.users.SetActive(ctx, user.ID, false))

	_, state, appErr = env.svc.StartOAuth(ctx, "testidp")
	require.Nil(t, appErr)
	_, appErr = env.svc.CompleteOAuth(ctx, "testidp", "good-code", state, meta)
	assertCode(t, appErr, httperrors.ErrAccountSuspended)
}

func TestLoginFederatedOnlyAccountFailsGenerically(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, state, appErr := env.svc.StartOAuth(ctx, "testidp")
	require.Nil(t, appErr)
	_, appErr = env.svc.CompleteOAuth(ctx, "testidp", "good-code", state, meta)
	require.Nil(t, appErr)

	_, appErr = env.svc.Login(ctx, "fede@example.com", goodPassword, meta)
	assertCode(t, appErr, httperrors.ErrInvalidCredentials)
}
