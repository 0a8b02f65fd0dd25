package auth

// RefreshRequest is the body of POST /auth/refresh. The token may come
// from the cookie instead; the body wins when both are present.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// LogoutRequest is the body of POST /auth/logout.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// OKResponse is the generic success acknowledgement.
type OKResponse struct {
	OK bool `json:"ok"`
}
