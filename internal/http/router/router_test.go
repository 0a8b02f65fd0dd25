package router

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verbatimhq/authcore/internal/cache"
	authctrl "github.com/verbatimhq/authcore/internal/http/controllers/auth"
	"github.com/verbatimhq/authcore/internal/http/helpers"
	"github.com/verbatimhq/authcore/internal/rate"
	"github.com/verbatimhq/authcore/internal/token"
)

func newTestRouter(t *testing.T, deps Deps) http.Handler {
	t.Helper()
	if deps.Tokens == nil {
		seed := make([]byte, 32)
		_, err := rand.Read(seed)
		require.NoError(t, err)
		issuer, err := token.NewIssuer("https://auth.test", base64.RawURLEncoding.EncodeToString(seed), time.Minute)
		require.NoError(t, err)
		deps.Tokens = &token.Service{Issuer: issuer, Cache: cache.NewMemory()}
	}
	if deps.Auth == nil {
		deps.Auth = authctrl.New(nil, helpers.CookieSettings{Name: "refresh_token"}, time.Hour)
	}
	return New(deps)
}

func TestHealthAndReadiness(t *testing.T) {
	h := newTestRouter(t, Deps{
		Ready: func(ctx context.Context) error { return nil },
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadinessFailureIs500(t *testing.T) {
	h := newTestRouter(t, Deps{
		Ready: func(ctx context.Context) error { return fmt.Errorf("db down") },
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestUnknownRouteAndWrongMethod(t *testing.T) {
	h := newTestRouter(t, Deps{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/auth/login", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestProtectedRoutesNeedBearer(t *testing.T) {
	h := newTestRouter(t, Deps{})

	for _, path := range []string{"/auth/logout-all", "/auth/change-password", "/auth/mfa/setup"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestCredentialRoutesAreRateLimited(t *testing.T) {
	h := newTestRouter(t, Deps{
		Limiters: Limiters{Credentials: rate.NewMemoryLimiter(0, time.Minute)},
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "198.51.100.9:4000"
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestSecurityHeadersOnEveryResponse(t *testing.T) {
	h := newTestRouter(t, Deps{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
