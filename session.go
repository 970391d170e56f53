package iptrail

// Identity is the authenticated user as returned by the login endpoint.
type Identity struct {
	ID    ID     `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Session is the persisted credential and identity of the signed-in user.
// Identity is present if and only if Token is present.
type Session struct {
	Identity Identity `json:"user"`
	Token    string   `json:"token"`
}

// IsAuthenticated reports whether the session holds both an identity and a token.
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.Token != "" && !s.Identity.isZero()
}

func (i Identity) isZero() bool {
	return i.ID == "" && i.Name == "" && i.Email == ""
}

// RegisterRequest is the payload for creating an account.
type RegisterRequest struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// AgentInfo describes the client software identified by its user agent.
type AgentInfo struct {
	UserAgent  string `json:"user_agent"`
	Browser    string `json:"browser"`
	OS         string `json:"os"`
	DeviceType string `json:"device_type"` // mobile, desktop, tablet, bot
}
