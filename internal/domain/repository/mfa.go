package repository

import "context"

// MFARepository covers the TOTP and backup-code state of a principal.
// The secret is stored only after setup completes; backup codes are
// stored hashed and are each consumable exactly once.
type MFARepository interface {
	// EnableTOTP persists the confirmed secret, sets the MFA flag and
	// replaces any previous backup codes with codeHashes.
	EnableTOTP(ctx context.Context, userID, secretB32 string, codeHashes []string) error

	// DisableTOTP clears the secret, the flag, the last-used counter
	// and all backup codes.
	DisableTOTP(ctx context.Context, userID string) error

	// GetLastCounter returns the highest TOTP counter accepted so far
	// (0 when none).
	GetLastCounter(ctx context.Context, userID string) (int64, error)

	// SetLastCounter records an accepted TOTP counter for replay
	// protection.
	SetLastCounter(ctx context.Context, userID string, counter int64) error

	// ConsumeBackupCode marks the backup code with this hash used.
	// Returns true iff the code existed and was unused; under any
	// number of concurrent calls at most one returns true.
	ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error)

	// UnusedBackupCodes reports how many codes remain.
	UnusedBackupCodes(ctx context.Context, userID string) (int, error)
}
