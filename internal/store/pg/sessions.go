package pg

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verbatimhq/authcore/internal/domain/repository"
)

type sessionRepo struct {
	pool *pgxpool.Pool
}

const sessionColumns = `
	id, user_id, refresh_hash, ip_address, user_agent,
	rotation_count, created_at, expires_at
`

func scanSession(row interface{ Scan(dest ...any) error }) (*repository.Session, error) {
	var s repository.Session
	err := row.Scan(
		&s.ID, &s.UserID, &s.RefreshHash, &s.IPAddress, &s.UserAgent,
		&s.RotationCount, &s.CreatedAt, &s.ExpiresAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &s, nil
}

func (r *sessionRepo) Create(ctx context.Context, input repository.CreateSessionInput) (*repository.Session, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO session (id, user_id, refresh_hash, ip_address, user_agent, expires_at)
		VALUES ($1, $2, $3, $4, $5, NOW() + $6::interval)
		RETURNING `+sessionColumns,
		uuid.NewString(), input.UserID, input.RefreshHash,
		input.IPAddress, input.UserAgent, input.TTL.String(),
	)
	return scanSession(row)
}

func (r *sessionRepo) GetByRefreshHash(ctx context.Context, refreshHash string) (*repository.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM session
		WHERE refresh_hash = $1 AND expires_at > NOW()`,
		refreshHash)
	return scanSession(row)
}

// Rotate is the linearization point of refresh rotation: a single
// conditional UPDATE keyed on the old digest. Of N racing callers the
// row matches for exactly one; the rest scan no rows and surface
// ErrNotFound to the caller, which treats it as a replay signal.
func (r *sessionRepo) Rotate(ctx context.Context, oldHash, newHash string, ttl time.Duration) (*repository.Session, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE session
		SET refresh_hash = $2,
		    expires_at = NOW() + $3::interval,
		    rotation_count = rotation_count + 1
		WHERE refresh_hash = $1 AND expires_at > NOW()
		RETURNING `+sessionColumns,
		oldHash, newHash, ttl.String(),
	)
	return scanSession(row)
}

func (r *sessionRepo) DeleteByID(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM session WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *sessionRepo) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM session WHERE user_id = $1`, userID)
	if err != nil {
		return 0, mapError(err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *sessionRepo) DeleteExpired(ctx context.Context) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM session WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, mapError(err)
	}
	return int(tag.RowsAffected()), nil
}
