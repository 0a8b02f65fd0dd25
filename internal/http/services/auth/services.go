// Package auth implements the authentication flows behind the HTTP
// controllers: registration, credential and federated login, the MFA
// step, token lifecycle and the email-driven recovery flows.
package auth

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/verbatimhq/authcore/internal/audit"
	"github.com/verbatimhq/authcore/internal/domain/repository"
	"github.com/verbatimhq/authcore/internal/email"
	"github.com/verbatimhq/authcore/internal/metrics"
	"github.com/verbatimhq/authcore/internal/mfa"
	"github.com/verbatimhq/authcore/internal/oauth"
	"github.com/verbatimhq/authcore/internal/observability/logger"
	"github.com/verbatimhq/authcore/internal/onetime"
	"github.com/verbatimhq/authcore/internal/security/password"
	"github.com/verbatimhq/authcore/internal/token"
)

// Meta carries per-request client attribution into the flows.
type Meta struct {
	IP        string
	UserAgent string
}

// Service is the authentication facade. All methods return *AppError
// from the http errors catalog so controllers can hand failures
// straight to the wire.
type Service struct {
	Users     repository.UserRepository
	Orgs      repository.OrganizationRepository
	Tokens    *token.Service
	MFA       *mfa.Engine
	OneTime   *onetime.Manager
	Mailer    *email.Mailer
	Audit     audit.Sink
	Providers *oauth.Registry
	Linker    *oauth.Linker

	Policy     password.Policy
	HashParams password.Params

	VerifyTTL    time.Duration
	ResetTTL     time.Duration
	DefaultOrgID string
	DefaultRole  string

	// hashSem bounds concurrent argon2 work; each hash pins ~64MB.
	hashSem *semaphore.Weighted
}

// New finishes construction; concurrency is the number of parallel
// password hashes allowed.
func New(s Service, concurrency int64) *Service {
	if concurrency <= 0 {
		concurrency = 8
	}
	s.hashSem = semaphore.NewWeighted(concurrency)
	return &s
}

func (s *Service) hash(ctx context.Context, plain string) (string, error) {
	if err := s.hashSem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer s.hashSem.Release(1)
	return password.Hash(s.HashParams, plain)
}

func (s *Service) verify(ctx context.Context, plain, phc string) (bool, error) {
	if err := s.hashSem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer s.hashSem.Release(1)
	return password.Verify(plain, phc), nil
}

// burnVerify runs a full-cost verification against a throwaway hash so
// requests for unknown accounts cost the same as real ones.
func (s *Service) burnVerify(ctx context.Context, plain string) {
	if err := s.hashSem.Acquire(ctx, 1); err != nil {
		return
	}
	defer s.hashSem.Release(1)
	password.DummyVerify(plain)
}

// notifyQuietly sends a security notice without failing the flow.
func (s *Service) notifyQuietly(ctx context.Context, to, message string) {
	if err := s.Mailer.SendSecurityNotice(ctx, to, message); err != nil {
		logger.From(ctx).Warn("security notice not sent",
			logger.Component("auth"), logger.Err(err))
		return
	}
	metrics.EmailsSent.WithLabelValues("notice").Inc()
}

func (s *Service) record(ctx context.Context, action, actor string, meta Meta, detail map[string]any) {
	s.Audit.Record(ctx, audit.Event{
		Action:       action,
		Actor:        actor,
		ResourceType: "user",
		ResourceID:   actor,
		IP:           meta.IP,
		UserAgent:    meta.UserAgent,
		Detail:       detail,
	})
}
