package types

import "smidr/smidr/sources/session"

// LoginRequest accepts either username or email; the browser client sends email.
type LoginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Name returns whichever identifier the client filled in.
func (r LoginRequest) Name() string {
	if r.Username != "" {
		return r.Username
	}
	return r.Email
}

type LoginResponse struct {
	OK          bool             `json:"ok"`
	User        session.Identity `json:"user"`
	Token       string           `json:"token,omitempty"`
	AccessToken string           `json:"access_token,omitempty"`
	ExpiresAt   int64            `json:"expires_at"`
}

// SessionResponse carries the signed-in name flat in identity and username, and
// structured in user.
type SessionResponse struct {
	Authenticated bool              `json:"authenticated"`
	Identity      string            `json:"identity,omitempty"`
	Username      string            `json:"username,omitempty"`
	User          *session.Identity `json:"user,omitempty"`
	AllowedPages  []string          `json:"allowedPages"`
	Error         string            `json:"error,omitempty"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}
