// Package pg implements the repository interfaces on PostgreSQL via
// pgx. One Store owns the pool and hands out repository views.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verbatimhq/authcore/internal/domain/repository"
)

// Config for the PostgreSQL pool.
type Config struct {
	DSN             string
	MaxConns        int32
	ConnMaxLifetime time.Duration
}

// Store owns the pgx pool and implements the repository interfaces
// through its views.
type Store struct {
	pool *pgxpool.Pool
}

// New opens the pool and verifies connectivity.
func New(ctx context.Context, cfg Config) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Pool exposes the underlying pool for health checks.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// Users returns the UserRepository view.
func (s *Store) Users() repository.UserRepository { return &userRepo{pool: s.pool} }

// Organizations returns the OrganizationRepository view.
func (s *Store) Organizations() repository.OrganizationRepository {
	return &orgRepo{pool: s.pool}
}

// Sessions returns the SessionRepository view.
func (s *Store) Sessions() repository.SessionRepository { return &sessionRepo{pool: s.pool} }

// MFA returns the MFARepository view.
func (s *Store) MFA() repository.MFARepository { return &mfaRepo{pool: s.pool} }

// mapError converts pgx errors to repository sentinels. 23505 is the
// postgres unique_violation code.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return repository.ErrConflict
	}
	return err
}
