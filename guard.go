package iptrail

// DefaultLoginRedirect is the entry view unauthenticated callers are sent to.
const DefaultLoginRedirect = "/"

// Decision is the outcome of a session guard check.
type Decision struct {
	Allowed bool
	// Redirect is the target view when Allowed is false.
	Redirect string
}

// RequireSession allows entry to a protected view only when s is a valid
// session. It must be evaluated on every entry; the result is not cached.
func RequireSession(s *Session) Decision {
	if s.IsAuthenticated() {
		return Decision{Allowed: true}
	}
	return Decision{Redirect: DefaultLoginRedirect}
}
