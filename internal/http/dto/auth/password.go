package auth

import "strings"

// ForgotPasswordRequest is the body of POST /auth/forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

func (r *ForgotPasswordRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

// ForgotPasswordResponse is identical whether or not the account
// exists.
type ForgotPasswordResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// ResetPasswordRequest is the body of POST /auth/reset-password.
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (r *ResetPasswordRequest) Valid() bool {
	return r.Token != "" && r.NewPassword != ""
}

// ChangePasswordRequest is the body of POST /auth/change-password
// (authenticated).
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (r *ChangePasswordRequest) Valid() bool {
	return r.CurrentPassword != "" && r.NewPassword != ""
}

// VerifyEmailRequest is the body of POST /auth/verify-email.
type VerifyEmailRequest struct {
	Token string `json:"token"`
}
