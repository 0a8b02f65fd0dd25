package pg

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verbatimhq/authcore/internal/domain/repository"
)

type mfaRepo struct {
	pool *pgxpool.Pool
}

// EnableTOTP runs in one transaction so the flag, the secret and the
// backup codes become visible together.
func (r *mfaRepo) EnableTOTP(ctx context.Context, userID, secretB32 string, codeHashes []string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE app_user
		SET mfa_enabled = TRUE, mfa_secret = $2, mfa_last_counter = 0, updated_at = NOW()
		WHERE id = $1`,
		userID, secretB32)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM mfa_backup_code WHERE user_id = $1`, userID); err != nil {
		return mapError(err)
	}
	for _, h := range codeHashes {
		if _, err := tx.Exec(ctx, `
			INSERT INTO mfa_backup_code (id, user_id, code_hash)
			VALUES ($1, $2, $3)`,
			uuid.NewString(), userID, h); err != nil {
			return mapError(err)
		}
	}

	return tx.Commit(ctx)
}

func (r *mfaRepo) DisableTOTP(ctx context.Context, userID string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE app_user
		SET mfa_enabled = FALSE, mfa_secret = NULL, mfa_last_counter = 0, updated_at = NOW()
		WHERE id = $1`,
		userID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM mfa_backup_code WHERE user_id = $1`, userID); err != nil {
		return mapError(err)
	}

	return tx.Commit(ctx)
}

func (r *mfaRepo) GetLastCounter(ctx context.Context, userID string) (int64, error) {
	var counter int64
	err := r.pool.QueryRow(ctx,
		`SELECT mfa_last_counter FROM app_user WHERE id = $1`, userID,
	).Scan(&counter)
	if err != nil {
		return 0, mapError(err)
	}
	return counter, nil
}

func (r *mfaRepo) SetLastCounter(ctx context.Context, userID string, counter int64) error {
	// GREATEST guards against a concurrent verification moving the
	// counter backwards.
	_, err := r.pool.Exec(ctx, `
		UPDATE app_user SET mfa_last_counter = GREATEST(mfa_last_counter, $2)
		WHERE id = $1`,
		userID, counter)
	return mapError(err)
}

// ConsumeBackupCode is a single conditional UPDATE: of any number of
// concurrent attempts on the same code exactly one sees used_at IS NULL.
func (r *mfaRepo) ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE mfa_backup_code SET used_at = NOW()
		WHERE user_id = $1 AND code_hash = $2 AND used_at IS NULL`,
		userID, codeHash)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *mfaRepo) UnusedBackupCodes(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM mfa_backup_code
		WHERE user_id = $1 AND used_at IS NULL`,
		userID,
	).Scan(&n)
	if err != nil {
		return 0, mapError(err)
	}
	return n, nil
}
