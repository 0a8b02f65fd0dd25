// Package google implements OIDC login with Google. Endpoints come
// from the discovery document and ID tokens are verified against
// Google's JWKS, both cached in-process.
package google

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/verbatimhq/authcore/internal/oauth"
)

const defaultDiscoveryURL = "https://accounts.google.com/.well-known/openid-configuration"

var defaultIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

type discoveryDoc struct {
	Issuer        string `json:"issuer"`
	AuthEndpoint  string `json:"authorization_endpoint"`
	TokenEndpoint string `json:"token_endpoint"`
	JWKSURI       string `json:"jwks_uri"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

// Client is the Google OIDC client.
type Client struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// DiscoveryURL and Issuers are overridable for tests.
	DiscoveryURL string
	Issuers      []string

	http *http.Client

	mu     sync.RWMutex
	disc   *discoveryDoc
	discAt time.Time
	keys   *jwks
	keysAt time.Time
}

func New(clientID, clientSecret, redirectURL string) *Client {
	return &Client{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		DiscoveryURL: defaultDiscoveryURL,
		Issuers:      defaultIssuers,
		http:         &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Name() string { return "google" }

// AuthURL builds the authorization redirect with state and nonce.
func (c *Client) AuthURL(ctx context.Context, state, nonce string) (string, error) {
	disc, err := c.discovery(ctx)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(disc.AuthEndpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", c.ClientID)
	q.Set("redirect_uri", c.RedirectURL)
	q.Set("scope", strings.Join(c.Scopes, " "))
	q.Set("state", state)
	q.Set("nonce", nonce)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Exchange trades the code for tokens and verifies the ID token.
func (c *Client) Exchange(ctx context.Context, code, nonce string) (oauth.Identity, error) {
	disc, err := c.discovery(ctx)
	if err != nil {
		return oauth.Identity{}, err
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", c.ClientID)
	form.Set("client_secret", c.ClientSecret)
	form.Set("redirect_uri", c.RedirectURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, disc.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return oauth.Identity{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return oauth.Identity{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		var b struct {
			Error string `json:"error"`
			Desc  string `json:"error_description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&b)
		return oauth.Identity{}, fmt.Errorf("google: token endpoint %d: %s %s", resp.StatusCode, b.Error, b.Desc)
	}

	var tr struct {
		IDToken string `json:"id_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return oauth.Identity{}, fmt.Errorf("google: decode token response: %w", err)
	}
	if tr.IDToken == "" {
		return oauth.Identity{}, errors.New("google: missing id_token")
	}
	return c.verifyIDToken(ctx, tr.IDToken, nonce)
}

func (c *Client) verifyIDToken(ctx context.Context, idToken, expectedNonce string) (oauth.Identity, error) {
	var header struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return oauth.Identity{}, errors.New("google: malformed id_token")
	}
	hb, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return oauth.Identity{}, err
	}
	if err := json.Unmarshal(hb, &header); err != nil {
		return oauth.Identity{}, err
	}
	if header.Alg != "RS256" {
		return oauth.Identity{}, fmt.Errorf("google: unexpected alg %s", header.Alg)
	}

	key, err := c.rsaKeyForKid(ctx, header.Kid)
	if err != nil {
		return oauth.Identity{}, err
	}

	var claims struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
		Nonce         string `json:"nonce"`
		jwtv5.RegisteredClaims
	}
	tok, err := jwtv5.ParseWithClaims(idToken, &claims,
		func(*jwtv5.Token) (any, error) { return key, nil },
		jwtv5.WithValidMethods([]string{"RS256"}),
		jwtv5.WithAudience(c.ClientID),
		jwtv5.WithLeeway(30*time.Second),
	)
	if err != nil || !tok.Valid {
		return oauth.Identity{}, errors.New("google: invalid id_token")
	}

	issOK := false
	for _, iss := range c.Issuers {
		if claims.Issuer == iss {
			issOK = true
			break
		}
	}
	if !issOK {
		return oauth.Identity{}, fmt.Errorf("google: unexpected issuer %q", claims.Issuer)
	}
	if expectedNonce != "" && claims.Nonce != expectedNonce {
		return oauth.Identity{}, errors.New("google: nonce mismatch")
	}

	return oauth.Identity{
		Provider:      c.Name(),
		ProviderID:    claims.Sub,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		FirstName:     claims.GivenName,
		LastName:      claims.FamilyName,
	}, nil
}

func (c *Client) discovery(ctx context.Context) (*discoveryDoc, error) {
	c.mu.RLock()
	disc, fresh := c.disc, time.Since(c.discAt) < 24*time.Hour
	c.mu.RUnlock()
	if disc != nil && fresh {
		return disc, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.DiscoveryURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google: discovery status %d", resp.StatusCode)
	}
	var dd discoveryDoc
	if err := json.NewDecoder(resp.Body).Decode(&dd); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.disc, c.discAt = &dd, time.Now()
	c.mu.Unlock()
	return &dd, nil
}

func (c *Client) jwksDoc(ctx context.Context, uri string) (*jwks, error) {
	c.mu.RLock()
	keys, fresh := c.keys, time.Since(c.keysAt) < time.Hour
	c.mu.RUnlock()
	if keys != nil && fresh {
		return keys, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google: jwks status %d", resp.StatusCode)
	}
	var jj jwks
	if err := json.NewDecoder(resp.Body).Decode(&jj); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.keys, c.keysAt = &jj, time.Now()
	c.mu.Unlock()
	return &jj, nil
}

func (c *Client) rsaKeyForKid(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	disc, err := c.discovery(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := c.jwksDoc(ctx, disc.JWKSURI)
	if err != nil {
		return nil, err
	}
	for _, k := range doc.Keys {
		if k.Kid != kid || !strings.EqualFold(k.Kty, "RSA") {
			continue
		}
		nb, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, err
		}
		eb, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, err
		}
		e := 0
		for _, b := range eb {
			e = e<<8 | int(b)
		}
		if e == 0 {
			e = 65537
		}
		return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
	}
	return nil, fmt.Errorf("google: signing key %q not in jwks", kid)
}
