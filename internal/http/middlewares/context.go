package middlewares

import (
	"context"

	"github.com/verbatimhq/authcore/internal/token"
)

type ctxKey string

const (
	ctxClaimsKey    ctxKey = "claims"
	ctxRequestIDKey ctxKey = "request_id"
)

// WithClaims injects the verified access claims into the context.
func WithClaims(ctx context.Context, claims *token.AccessClaims) context.Context {
	return context.WithValue(ctx, ctxClaimsKey, claims)
}

// GetClaims returns the access claims, or nil when RequireAuth did not
// run on this route.
func GetClaims(ctx context.Context) *token.AccessClaims {
	if v := ctx.Value(ctxClaimsKey); v != nil {
		if c, ok := v.(*token.AccessClaims); ok {
			return c
		}
	}
	return nil
}

// GetUserID returns the authenticated subject, or "" when anonymous.
func GetUserID(ctx context.Context) string {
	if c := GetClaims(ctx); c != nil {
		return c.Subject
	}
	return ""
}

func setRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, id)
}

// GetRequestID returns the request correlation ID, or "".
func GetRequestID(ctx context.Context) string {
	if v := ctx.Value(ctxRequestIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
