package repository

import (
	"context"
	"time"
)

// User is a principal. Users are never hard-deleted, only soft-disabled
// via IsActive.
type User struct {
	ID            string
	Email         string
	PasswordHash  *string // nil for OAuth-only accounts
	EmailVerified bool
	IsActive      bool

	MFAEnabled bool
	MFASecret  *string // base32; present iff MFAEnabled

	OAuthProvider   *string
	OAuthProviderID *string

	OrganizationID string
	Role           string

	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateUserInput carries the fields for a new principal. PasswordHash
// is empty for OAuth-created accounts.
type CreateUserInput struct {
	Email          string
	PasswordHash   string
	EmailVerified  bool
	OrganizationID string
	Role           string
	FirstName      string
	LastName       string

	OAuthProvider   string
	OAuthProviderID string
}

// UserRepository defines operations on principals.
type UserRepository interface {
	// Create inserts a new user. Returns ErrConflict if the email (or
	// the (provider, provider_id) pair) is already taken.
	Create(ctx context.Context, input CreateUserInput) (*User, error)

	// GetByEmail returns ErrNotFound when no user has that email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByID returns ErrNotFound when the user does not exist.
	GetByID(ctx context.Context, userID string) (*User, error)

	// GetByOAuth looks a user up by provider identity.
	GetByOAuth(ctx context.Context, provider, providerID string) (*User, error)

	// LinkOAuth attaches a provider identity to an existing account and
	// marks the email verified. Never touches the password hash.
	// Returns ErrConflict if the identity is already linked elsewhere.
	LinkOAuth(ctx context.Context, userID, provider, providerID string) error

	// SetEmailVerified flips the verification flag.
	SetEmailVerified(ctx context.Context, userID string, verified bool) error

	// UpdatePasswordHash replaces the stored hash.
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error

	// SetLastLogin stamps a successful authentication.
	SetLastLogin(ctx context.Context, userID string, at time.Time) error

	// SetActive soft-enables or soft-disables an account.
	SetActive(ctx context.Context, userID string, active bool) error
}

// Organization is the tenant a principal belongs to.
type Organization struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// OrganizationRepository manages tenants. Only the operations the auth
// core needs; the full CRUD surface lives in the platform services.
type OrganizationRepository interface {
	Create(ctx context.Context, name string) (*Organization, error)
	GetByID(ctx context.Context, id string) (*Organization, error)
	GetByName(ctx context.Context, name string) (*Organization, error)
}
