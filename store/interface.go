package store

// Persisted key names. The identity and the token are always written and
// cleared together.
const (
	KeyUser  = "user"
	KeyToken = "token"
)

// Credentials is the raw persisted session: the serialized identity object
// and the bearer token. Both are empty when nothing is stored.
type Credentials struct {
	User  string
	Token string
}

// Empty reports whether nothing is stored.
func (c Credentials) Empty() bool {
	return c.User == "" && c.Token == ""
}

// CredentialStore defines the interface for durable credential backends.
// Implementations must be safe for concurrent use and must write and
// clear both entries atomically.
type CredentialStore interface {
	// Load returns whatever is currently stored. A missing entry is
	// returned as an empty string, not an error.
	Load() (Credentials, error)

	// Save replaces both entries.
	Save(creds Credentials) error

	// Clear removes both entries. Clearing an empty store is not an error.
	Clear() error

	// Close releases any resources held by the store.
	Close() error
}
