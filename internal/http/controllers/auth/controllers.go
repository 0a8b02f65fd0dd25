// Package auth exposes the authentication endpoints as thin HTTP
// controllers over the auth service facade. Controllers bind and
// validate DTOs, manage the auth cookies and map results to the
// wire; every decision lives in the service layer.
package auth

import (
	"net/http"
	"time"

	"github.com/verbatimhq/authcore/internal/http/helpers"
	svcauth "github.com/verbatimhq/authcore/internal/http/services/auth"
	"github.com/verbatimhq/authcore/internal/token"

	dto "github.com/verbatimhq/authcore/internal/http/dto/auth"
)

// Controllers bundles the auth handlers and their shared settings.
type Controllers struct {
	Service *svcauth.Service

	// Cookies configures the httpOnly auth cookies; RefreshTTL is
	// the refresh cookie lifetime.
	Cookies    helpers.CookieSettings
	RefreshTTL time.Duration
}

func New(service *svcauth.Service, cookies helpers.CookieSettings, refreshTTL time.Duration) *Controllers {
	if cookies.Name == "" {
		cookies.Name = "refresh_token"
	}
	return &Controllers{Service: service, Cookies: cookies, RefreshTTL: refreshTTL}
}

func requestMeta(r *http.Request) svcauth.Meta {
	return svcauth.Meta{IP: helpers.ClientIP(r), UserAgent: r.UserAgent()}
}

// writePair sets both httpOnly cookies and writes the token pair body.
// The body carries the tokens once for non-browser clients.
func (c *Controllers) writePair(w http.ResponseWriter, pair token.Pair) {
	helpers.SetRefreshCookie(w, c.Cookies, pair.RefreshToken, c.RefreshTTL)
	helpers.SetAccessCookie(w, c.Cookies, pair.AccessToken, time.Until(pair.AccessExpiresAt))
	helpers.WriteJSON(w, http.StatusOK, dto.TokenPairResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(time.Until(pair.AccessExpiresAt).Seconds()),
		RefreshToken: pair.RefreshToken,
	})
}

// refreshFrom resolves the refresh token: explicit body value first,
// cookie as the browser fallback.
func (c *Controllers) refreshFrom(r *http.Request, bodyToken string) string {
	if bodyToken != "" {
		return bodyToken
	}
	return helpers.RefreshFromCookie(r, c.Cookies.Name)
}
