package middlewares

import (
	"net/http"
	"strconv"
	"time"

	httperrors "github.com/verbatimhq/authcore/internal/http/errors"
	"github.com/verbatimhq/authcore/internal/http/helpers"
	"github.com/verbatimhq/authcore/internal/metrics"
	"github.com/verbatimhq/authcore/internal/observability/logger"
	"github.com/verbatimhq/authcore/internal/rate"
)

// RateKeyFunc derives the limiter key for a request.
type RateKeyFunc func(r *http.Request) string

// IPRateKey keys by client address; the default for credential
// endpoints where the body must not be read twice.
func IPRateKey(r *http.Request) string {
	return helpers.ClientIP(r)
}

// RateLimitConfig configures one rate-limited route group.
type RateLimitConfig struct {
	Limiter rate.Limiter
	// Allowlist bypasses limiting for trusted addresses and networks.
	Allowlist *rate.Allowlist
	// Group labels denials in metrics (login, refresh, recovery...).
	Group   string
	KeyFunc RateKeyFunc
}

// WithRateLimit admits or rejects requests against the configured
// limiter. A limiter error fails open: auth availability beats strict
// accounting.
func WithRateLimit(cfg RateLimitConfig) Middleware {
	if cfg.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = IPRateKey
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := helpers.ClientIP(r)
			if cfg.Allowlist != nil && cfg.Allowlist.Contains(ip) {
				next.ServeHTTP(w, r)
				return
			}

			res, err := cfg.Limiter.Allow(r.Context(), cfg.Group+"|"+cfg.KeyFunc(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable",
					logger.Component("rate"), logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}

			if res.WindowTTL > 0 {
				resetAt := time.Now().Add(res.WindowTTL).Unix()
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))
			}
			if !res.Allowed {
				if res.RetryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds()+0.5)))
				}
				metrics.RateLimitDenials.WithLabelValues(cfg.Group).Inc()
				httperrors.WriteError(w, r, httperrors.ErrRateLimitExceeded)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))

			next.ServeHTTP(w, r)
		})
	}
}
