package auth

// MFASetupResponse returns the enrollment material for the QR screen.
type MFASetupResponse struct {
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

// MFAConfirmRequest is the body of POST /auth/mfa/confirm.
type MFAConfirmRequest struct {
	Code string `json:"code"`
}

// MFAConfirmResponse carries the backup codes, shown exactly once.
type MFAConfirmResponse struct {
	Enabled     bool     `json:"enabled"`
	BackupCodes []string `json:"backup_codes"`
}

// MFADisableRequest is the body of POST /auth/mfa/disable. Password
// re-verification guards against session hijacking.
type MFADisableRequest struct {
	Password string `json:"password"`
}

// MFAStatusResponse is the body of GET /auth/mfa.
type MFAStatusResponse struct {
	Enabled              bool `json:"enabled"`
	RemainingBackupCodes int  `json:"remaining_backup_codes,omitempty"`
}
