package pg

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verbatimhq/authcore/internal/domain/repository"
)

type userRepo struct {
	pool *pgxpool.Pool
}

const userColumns = `
	id, email, password_hash, email_verified, is_active,
	mfa_enabled, mfa_secret,
	oauth_provider, oauth_provider_id,
	organization_id, role, last_login_at, created_at, updated_at
`

func scanUser(row interface{ Scan(dest ...any) error }) (*repository.User, error) {
	var u repository.User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.EmailVerified, &u.IsActive,
		&u.MFAEnabled, &u.MFASecret,
		&u.OAuthProvider, &u.OAuthProviderID,
		&u.OrganizationID, &u.Role, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

func (r *userRepo) Create(ctx context.Context, input repository.CreateUserInput) (*repository.User, error) {
	id := uuid.NewString()

	var passwordHash *string
	if input.PasswordHash != "" {
		passwordHash = &input.PasswordHash
	}
	var provider, providerID *string
	if input.OAuthProvider != "" {
		provider = &input.OAuthProvider
		providerID = &input.OAuthProviderID
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO app_user (
			id, email, password_hash, email_verified, is_active,
			oauth_provider, oauth_provider_id,
			organization_id, role, first_name, last_name
		)
		VALUES ($1, $2, $3, $4, TRUE, $5, $6, $7, $8, $9, $10)
		RETURNING `+userColumns,
		id, input.Email, passwordHash, input.EmailVerified,
		provider, providerID,
		input.OrganizationID, input.Role, input.FirstName, input.LastName,
	)
	return scanUser(row)
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM app_user WHERE email = $1`, email)
	return scanUser(row)
}

func (r *userRepo) GetByID(ctx context.Context, userID string) (*repository.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM app_user WHERE id = $1`, userID)
	return scanUser(row)
}

func (r *userRepo) GetByOAuth(ctx context.Context, provider, providerID string) (*repository.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM app_user
		 WHERE oauth_provider = $1 AND oauth_provider_id = $2`,
		provider, providerID)
	return scanUser(row)
}

func (r *userRepo) LinkOAuth(ctx context.Context, userID, provider, providerID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE app_user
		SET oauth_provider = $2, oauth_provider_id = $3,
		    email_verified = TRUE, updated_at = NOW()
		WHERE id = $1 AND oauth_provider IS NULL`,
		userID, provider, providerID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrConflict
	}
	return nil
}

func (r *userRepo) SetEmailVerified(ctx context.Context, userID string, verified bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE app_user SET email_verified = $2, updated_at = NOW() WHERE id = $1`,
		userID, verified)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *userRepo) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE app_user SET password_hash = $2, updated_at = NOW() WHERE id = $1`,
		userID, newHash)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *userRepo) SetLastLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE app_user SET last_login_at = $2 WHERE id = $1`, userID, at)
	return mapError(err)
}

func (r *userRepo) SetActive(ctx context.Context, userID string, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE app_user SET is_active = $2, updated_at = NOW() WHERE id = $1`,
		userID, active)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ─── Organizations ───

type orgRepo struct {
	pool *pgxpool.Pool
}

func (r *orgRepo) Create(ctx context.Context, name string) (*repository.Organization, error) {
	var org repository.Organization
	err := r.pool.QueryRow(ctx, `
		INSERT INTO organization (id, name)
		VALUES ($1, $2)
		RETURNING id, name, created_at`,
		uuid.NewString(), name,
	).Scan(&org.ID, &org.Name, &org.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &org, nil
}

func (r *orgRepo) GetByID(ctx context.Context, id string) (*repository.Organization, error) {
	var org repository.Organization
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM organization WHERE id = $1`, id,
	).Scan(&org.ID, &org.Name, &org.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &org, nil
}

func (r *orgRepo) GetByName(ctx context.Context, name string) (*repository.Organization, error) {
	var org repository.Organization
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM organization WHERE name = $1`, name,
	).Scan(&org.ID, &org.Name, &org.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &org, nil
}
