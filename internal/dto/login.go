package dto

// SSOCredentials is what the SSO callback hands to the SSO resolver.
type SSOCredentials struct {
	Institution string `json:"institution"` // institution slug
	Ticket      string `json:"ticket"`
	ServiceURL  string `json:"serviceUrl"`

	// Session receives the attributes returned by the SSO server when set.
	Session map[string]any `json:"-"`
}

// PasswordCredentials is a local login attempt. Login is an email address or,
// for the username resolver, a handle.
type PasswordCredentials struct {
	Login    string `json:"login"`
	Password string `json:"password,omitempty"`
}
