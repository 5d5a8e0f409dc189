package models

// User is the account a runner reports as signed in.
type User struct {
	Handle      string   `json:"handle"`
	DisplayName string   `json:"displayName,omitempty"`
	Avatar      string   `json:"avatar,omitempty"`
	Info        []string `json:"info,omitempty"`
}

// OAuthRequest carries the authorization URL of an OAuth runner.
type OAuthRequest struct {
	URL string `json:"url"`
}

// SessionCookie is a cookie captured from a web sign-in flow.
type SessionCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
}
