package repository

import (
	"context"
	"time"
)

// Session binds a refresh token to a user and device. The refresh value
// itself never reaches the store; only its digest does. A live digest
// identifies at most one session (unique constraint).
type Session struct {
	ID          string
	UserID      string
	RefreshHash string

	IPAddress string
	UserAgent string

	// RotationCount increments on every rotation of this device
	// session. Diagnostic only.
	RotationCount int

	CreatedAt time.Time
	ExpiresAt time.Time
}

// CreateSessionInput carries the fields for a new device session.
type CreateSessionInput struct {
	UserID      string
	RefreshHash string
	IPAddress   string
	UserAgent   string
	TTL         time.Duration
}

// SessionRepository persists device sessions.
//
// Concurrency contract: Rotate is the linearization point of refresh
// rotation. Two racing calls with the same oldHash yield exactly one
// success; the loser gets ErrNotFound. The store enforces this with a
// single conditional UPDATE, not application-level locking.
type SessionRepository interface {
	Create(ctx context.Context, input CreateSessionInput) (*Session, error)

	// GetByRefreshHash returns ErrNotFound for unknown or expired
	// digests.
	GetByRefreshHash(ctx context.Context, refreshHash string) (*Session, error)

	// Rotate atomically replaces oldHash with newHash and resets the
	// expiry to now+ttl, returning the updated session. ErrNotFound
	// when no live session carries oldHash — the replay signal.
	Rotate(ctx context.Context, oldHash, newHash string, ttl time.Duration) (*Session, error)

	// DeleteByID removes one session. Unknown IDs return ErrNotFound.
	DeleteByID(ctx context.Context, id string) error

	// DeleteAllForUser removes every session of a user, returning how
	// many were removed.
	DeleteAllForUser(ctx context.Context, userID string) (int, error)

	// DeleteExpired removes expired sessions (janitor).
	DeleteExpired(ctx context.Context) (int, error)
}
