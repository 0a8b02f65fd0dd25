// Package metrics defines the Prometheus instruments for the auth
// flows. Standalone package so HTTP and service layers can both
// increment without import cycles.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	LoginAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_login_attempts_total",
		Help: "Login attempts by outcome (success, failure, mfa_required)",
	}, []string{"outcome"})

	TokenRotations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_token_rotations_total",
		Help: "Successful refresh token rotations",
	})

	ReplaysDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_refresh_replays_total",
		Help: "Refresh tokens presented again after rotation",
	})

	RateLimitDenials = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_rate_limit_denials_total",
		Help: "Requests rejected by the rate limiter, by route group",
	}, []string{"group"})

	MFAChallenges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_mfa_challenges_total",
		Help: "MFA verifications by method and outcome",
	}, []string{"method", "outcome"})

	EmailsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_emails_sent_total",
		Help: "Transactional emails handed to the sender, by kind",
	}, []string{"kind"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "auth_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status class",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "status"})
)

// Register installs the instruments on the registry (default when nil).
// Double registration is tolerated so tests can call it freely.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		LoginAttempts, TokenRotations, ReplaysDetected,
		RateLimitDenials, MFAChallenges, EmailsSent, HTTPDuration,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
