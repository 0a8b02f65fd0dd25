package auth

// OAuthStartResponse carries the provider redirect for the client to
// follow.
type OAuthStartResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// OAuthCallbackRequest is the body of POST /auth/oauth/{provider}/callback.
type OAuthCallbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

func (r *OAuthCallbackRequest) Valid() bool {
	return r.Code != "" && r.State != ""
}

// ProvidersResponse lists the configured providers.
type ProvidersResponse struct {
	Providers []string `json:"providers"`
}
