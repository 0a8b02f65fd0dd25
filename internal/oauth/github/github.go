// Package github implements OAuth 2.0 login with GitHub. GitHub issues
// no ID token, so the user profile and email come from separate API
// calls after the code exchange.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/verbatimhq/authcore/internal/oauth"
)

// Endpoints are variables so tests can point the client at a local
// server.
type Endpoints struct {
	Auth  string
	Token string
	User  string
	Email string
}

func defaultEndpoints() Endpoints {
	return Endpoints{
		Auth:  "https://github.com/login/oauth/authorize",
		Token: "https://github.com/login/oauth/access_token",
		User:  "https://api.github.com/user",
		Email: "https://api.github.com/user/emails",
	}
}

// Client is the GitHub OAuth 2.0 client.
type Client struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	Endpoints    Endpoints

	http *http.Client
}

func New(clientID, clientSecret, redirectURL string) *Client {
	return &Client{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"user:email", "read:user"},
		Endpoints:    defaultEndpoints(),
		http:         &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Name() string { return "github" }

// AuthURL builds the authorization redirect. GitHub has no nonce
// parameter; the caller's nonce rides inside the state.
func (c *Client) AuthURL(_ context.Context, state, _ string) (string, error) {
	u, err := url.Parse(c.Endpoints.Auth)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("client_id", c.ClientID)
	q.Set("redirect_uri", c.RedirectURL)
	q.Set("scope", strings.Join(c.Scopes, " "))
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	Error       string `json:"error,omitempty"`
	ErrorDesc   string `json:"error_description,omitempty"`
}

type userInfo struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type emailInfo struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// Exchange trades the callback code for a verified identity.
func (c *Client) Exchange(ctx context.Context, code, _ string) (oauth.Identity, error) {
	tok, err := c.exchangeCode(ctx, code)
	if err != nil {
		return oauth.Identity{}, err
	}
	info, err := c.userInfo(ctx, tok.AccessToken)
	if err != nil {
		return oauth.Identity{}, err
	}

	email, verified := info.Email, false
	if best, err := c.primaryEmail(ctx, tok.AccessToken); err == nil && best != nil {
		email, verified = best.Email, best.Verified
	}

	first, last := splitName(info.Name)
	return oauth.Identity{
		Provider:      c.Name(),
		ProviderID:    fmt.Sprintf("%d", info.ID),
		Email:         email,
		EmailVerified: verified,
		FirstName:     first,
		LastName:      last,
	}, nil
}

func (c *Client) exchangeCode(ctx context.Context, code string) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("client_id", c.ClientID)
	form.Set("client_secret", c.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", c.RedirectURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoints.Token, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("github: decode token response: %w", err)
	}
	if tr.Error != "" {
		return nil, fmt.Errorf("github: %s: %s", tr.Error, tr.ErrorDesc)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("github: empty access_token")
	}
	return &tr, nil
}

func (c *Client) userInfo(ctx context.Context, accessToken string) (*userInfo, error) {
	var info userInfo
	if err := c.apiGet(ctx, c.Endpoints.User, accessToken, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// primaryEmail prefers the primary verified address; some accounts
// keep the profile email private.
func (c *Client) primaryEmail(ctx context.Context, accessToken string) (*emailInfo, error) {
	var emails []emailInfo
	if err := c.apiGet(ctx, c.Endpoints.Email, accessToken, &emails); err != nil {
		return nil, err
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return &e, nil
		}
	}
	for _, e := range emails {
		if e.Verified {
			return &e, nil
		}
	}
	if len(emails) > 0 {
		return &emails[0], nil
	}
	return nil, fmt.Errorf("github: no email on account")
}

func (c *Client) apiGet(ctx context.Context, endpoint, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github: api status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
