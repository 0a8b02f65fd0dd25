package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verbatimhq/authcore/internal/http/helpers"
	"github.com/verbatimhq/authcore/internal/token"
)

func TestWritePairSetsBothAuthCookies(t *testing.T) {
	c := New(nil, helpers.CookieSettings{Name: "refresh_token", SameSite: "Lax"}, 30*24*time.Hour)

	rec := httptest.NewRecorder()
	c.writePair(rec, token.Pair{
		AccessToken:     "access-jwt",
		AccessExpiresAt: time.Now().Add(15 * time.Minute),
		RefreshToken:    "refresh-opaque",
	})

	var access, refresh *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		switch ck.Name {
		case helpers.AccessCookieName:
			access = ck
		case "refresh_token":
			refresh = ck
		}
	}

	require.NotNil(t, access, "access cookie must be set")
	assert.Equal(t, "access-jwt", access.Value)
	assert.True(t, access.HttpOnly)
	assert.Equal(t, "/", access.Path)
	assert.Greater(t, access.MaxAge, 0)

	require.NotNil(t, refresh, "refresh cookie must be set")
	assert.Equal(t, "refresh-opaque", refresh.Value)
	assert.True(t, refresh.HttpOnly)
	assert.Equal(t, "/auth", refresh.Path)
}
