package middlewares

import (
	"errors"
	"net/http"
	"strings"

	httperrors "github.com/verbatimhq/authcore/internal/http/errors"
	"github.com/verbatimhq/authcore/internal/http/helpers"
	"github.com/verbatimhq/authcore/internal/token"
)

// bearerToken pulls the token out of the Authorization header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RequireAuth verifies the access token and puts its claims in the
// context. The Authorization header wins; browser clients fall back to
// the httpOnly access cookie. Deny-listed tokens are rejected like
// invalid ones.
func RequireAuth(tokens *token.Service) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				raw = helpers.AccessFromCookie(r)
			}
			if raw == "" {
				httperrors.WriteError(w, r, httperrors.ErrTokenMissing)
				return
			}

			claims, err := tokens.VerifyAccess(r.Context(), raw)
			if err != nil {
				if errors.Is(err, token.ErrTokenInvalid) || errors.Is(err, token.ErrTokenRevoked) {
					httperrors.WriteError(w, r, httperrors.ErrTokenInvalid)
					return
				}
				httperrors.WriteError(w, r, httperrors.ErrInternal.WithCause(err))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}
