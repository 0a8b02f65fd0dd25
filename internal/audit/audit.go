// Package audit records security-relevant transitions: logins, token
// rotations, MFA changes, federation links. Recording must never block
// or fail the operation it describes.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/verbatimhq/authcore/internal/observability/logger"
)

// Event is one audit record.
type Event struct {
	Action       string
	Actor        string
	ResourceType string
	ResourceID   string
	IP           string
	UserAgent    string
	Detail       map[string]any
	At           time.Time
}

// Sink persists events somewhere.
type Sink interface {
	Record(ctx context.Context, ev Event)
}

// Actions emitted by the auth flows.
const (
	ActionRegister           = "user.register"
	ActionLoginSuccess       = "login.success"
	ActionLoginFailure       = "login.failure"
	ActionLoginMFARequired   = "login.mfa_required"
	ActionLogout             = "session.logout"
	ActionTokenRotated       = "token.rotated"
	ActionTokenReplay        = "token.replay_detected"
	ActionSessionsRevoked    = "session.revoked_all"
	ActionEmailVerified      = "email.verified"
	ActionVerificationResent = "email.verification_resent"
	ActionPasswordForgot     = "password.forgot"
	ActionPasswordReset      = "password.reset"
	ActionMFAEnabled         = "mfa.enabled"
	ActionMFADisabled        = "mfa.disabled"
	ActionMFABackupUsed      = "mfa.backup_code_used"
	ActionOAuthLogin         = "oauth.login"
	ActionOAuthLink          = "oauth.link"
	ActionOAuthSignup        = "oauth.signup"
)

// ZapSink writes events to the structured log under the "audit"
// component. The default sink for single-node deployments.
type ZapSink struct{}

func (ZapSink) Record(_ context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	fields := []zap.Field{
		logger.Component("audit"),
		logger.String("action", ev.Action),
		zap.Time("at", ev.At),
	}
	if ev.Actor != "" {
		fields = append(fields, logger.String("actor", ev.Actor))
	}
	if ev.ResourceType != "" {
		fields = append(fields, logger.String("resource_type", ev.ResourceType))
	}
	if ev.ResourceID != "" {
		fields = append(fields, logger.String("resource_id", ev.ResourceID))
	}
	if ev.IP != "" {
		fields = append(fields, logger.ClientIP(ev.IP))
	}
	if ev.UserAgent != "" {
		fields = append(fields, logger.String("user_agent", ev.UserAgent))
	}
	if len(ev.Detail) > 0 {
		fields = append(fields, zap.Any("detail", ev.Detail))
	}
	logger.L().Info("audit", fields...)
}

// Fanout duplicates events to several sinks.
type Fanout []Sink

func (f Fanout) Record(ctx context.Context, ev Event) {
	for _, s := range f {
		s.Record(ctx, ev)
	}
}
