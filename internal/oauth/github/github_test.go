package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New("client-id", "client-secret", "https://app.test/callback")
	c.Endpoints = Endpoints{
		Auth:  srv.URL + "/authorize",
		Token: srv.URL + "/token",
		User:  srv.URL + "/user",
		Email: srv.URL + "/emails",
	}
	c.http = srv.Client()
	return c
}

func TestAuthURL(t *testing.T) {
	c := New("client-id", "secret", "https://app.test/callback")

	raw, err := c.AuthURL(context.Background(), "state-1", "ignored")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "github.com", u.Host)
	assert.Equal(t, "client-id", u.Query().Get("client_id"))
	assert.Equal(t, "state-1", u.Query().Get("state"))
	assert.Contains(t, u.Query().Get("scope"), "user:email")
}

func TestExchangeHappyPath(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.Form.Get("code"))
		assert.Equal(t, "client-secret", r.Form.Get("client_secret"))
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "at-1", "token_type": "bearer"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 42, "login": "ana", "name": "Ana García"})
	})
	mux.HandleFunc("/emails", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"email": "old@example.com", "primary": false, "verified": true},
			{"email": "ana@example.com", "primary": true, "verified": true},
		})
	})

	c := newTestClient(t, mux)
	id, err := c.Exchange(context.Background(), "the-code", "")
	require.NoError(t, err)

	assert.Equal(t, "github", id.Provider)
	assert.Equal(t, "42", id.ProviderID)
	assert.Equal(t, "ana@example.com", id.Email)
	assert.True(t, id.EmailVerified)
	assert.Equal(t, "Ana", id.FirstName)
	assert.Equal(t, "García", id.LastName)
}

func TestExchangePropagatesProviderError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":             "bad_verification_code",
			"error_description": "The code passed is incorrect or expired.",
		})
	})

	c := newTestClient(t, mux)
	_, err := c.Exchange(context.Background(), "stale-code", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad_verification_code")
}

func TestExchangeFallsBackToUnverifiedProfileEmail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "at-1"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 7, "login": "bob", "email": "bob@example.com"})
	})
	mux.HandleFunc("/emails", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	c := newTestClient(t, mux)
	id, err := c.Exchange(context.Background(), "code", "")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", id.Email)
	assert.False(t, id.EmailVerified, "email without attestation stays unverified")
}

func TestSplitName(t *testing.T) {
	first, last := splitName("Ana García López")
	assert.Equal(t, "Ana", first)
	assert.Equal(t, "García López", last)

	first, last = splitName("Ana")
	assert.Equal(t, "Ana", first)
	assert.Empty(t, last)

	first, last = splitName("")
	assert.Empty(t, first)
	assert.Empty(t, last)
}
