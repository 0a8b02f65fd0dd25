// Package auth contains the request/response DTOs of the auth
// endpoints.
package auth

import "strings"

// RegisterRequest is the body of POST /auth/register. A non-empty
// OrganizationName creates a new tenant owned by the account instead
// of joining the default one.
type RegisterRequest struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	FirstName        string `json:"first_name,omitempty"`
	LastName         string `json:"last_name,omitempty"`
	OrganizationName string `json:"organization_name,omitempty"`
}

// Normalize trims and lower-cases the identifying fields.
func (r *RegisterRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.OrganizationName = strings.TrimSpace(r.OrganizationName)
}

// Valid reports whether the required fields are present and the email
// has a plausible shape.
func (r *RegisterRequest) Valid() bool {
	if r.Email == "" || r.Password == "" {
		return false
	}
	at := strings.Index(r.Email, "@")
	return at > 0 && at < len(r.Email)-1
}

// RegisterResponse confirms account creation.
type RegisterResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}
