package helpers

import (
	"net/http"
	"strings"
	"time"
)

// CookieSettings describes how the refresh-token cookie is issued.
type CookieSettings struct {
	Name     string
	Domain   string
	SameSite string // "Lax" | "Strict" | "None"
	Secure   bool
}

// AccessCookieName is the httpOnly cookie carrying the access token
// for browser clients. Non-browser clients use the Authorization
// header instead.
const AccessCookieName = "access_token"

func parseSameSite(s string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// SetRefreshCookie issues the httpOnly refresh cookie scoped to the
// auth routes.
func SetRefreshCookie(w http.ResponseWriter, cfg CookieSettings, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Name,
		Value:    value,
		Path:     "/auth",
		Domain:   cfg.Domain,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: parseSameSite(cfg.SameSite),
	})
}

// ClearRefreshCookie expires the cookie immediately.
func ClearRefreshCookie(w http.ResponseWriter, cfg CookieSettings) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Name,
		Value:    "",
		Path:     "/auth",
		Domain:   cfg.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: parseSameSite(cfg.SameSite),
	})
}

// RefreshFromCookie reads the refresh token cookie; empty when absent.
func RefreshFromCookie(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}

// SetAccessCookie issues the short-lived access cookie. Unlike the
// refresh cookie it is sent on every route, so the path is the root.
func SetAccessCookie(w http.ResponseWriter, cfg CookieSettings, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookieName,
		Value:    value,
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: parseSameSite(cfg.SameSite),
	})
}

// ClearAccessCookie expires the access cookie immediately.
func ClearAccessCookie(w http.ResponseWriter, cfg CookieSettings) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookieName,
		Value:    "",
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: parseSameSite(cfg.SameSite),
	})
}

// AccessFromCookie reads the access token cookie; empty when absent.
func AccessFromCookie(r *http.Request) string {
	if c, err := r.Cookie(AccessCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}
