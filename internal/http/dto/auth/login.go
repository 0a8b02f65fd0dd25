package auth

import "strings"

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

func (r *LoginRequest) Valid() bool {
	return r.Email != "" && r.Password != ""
}

// TokenPairResponse carries a fresh access/refresh pair. The refresh
// token also travels as an httpOnly cookie; the body copy serves
// non-browser clients.
type TokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"` // always "Bearer"
	ExpiresIn    int64  `json:"expires_in"` // seconds
	RefreshToken string `json:"refresh_token"`
}

// MFARequiredResponse is returned instead of tokens when the account
// has MFA enabled. The client resubmits via POST /auth/login/mfa.
type MFARequiredResponse struct {
	MFARequired bool   `json:"mfa_required"` // always true
	MFAToken    string `json:"mfa_token"`
	ExpiresIn   int64  `json:"expires_in"` // seconds
}

// MFALoginRequest is the body of POST /auth/login/mfa.
type MFALoginRequest struct {
	MFAToken string `json:"mfa_token"`
	Code     string `json:"code"`
}

func (r *MFALoginRequest) Valid() bool {
	return r.MFAToken != "" && r.Code != ""
}
