package iptrail

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/aadithya-v/iptrail/store"
)

// Config contains configuration options for an App.
type Config struct {
	// BaseURL is the API root every endpoint path is appended to.
	// Default: "http://localhost:8000/api".
	BaseURL string

	// RequestTimeout bounds every request. A request that times out
	// fails with ErrNetwork.
	// Default: 15 seconds.
	RequestTimeout time.Duration

	// UserAgent is sent with every request.
	// Default: "iptrail/1.0".
	UserAgent string

	// CredentialStore is the durable backend for the session.
	// Default: SQLite store (creates iptrail.db in current directory).
	CredentialStore store.CredentialStore

	// DatabasePath is the path for the default SQLite database.
	// Only used if CredentialStore is nil.
	// Default: "iptrail.db".
	DatabasePath string

	// GeoIPDatabasePath is the path to a MaxMind GeoLite2-City.mmdb file.
	// Optional; enables offline lookups through App.Locate.
	GeoIPDatabasePath string

	// LoginRedirect is where the session guard sends unauthenticated callers.
	// Default: "/".
	LoginRedirect string

	// Logger receives operational messages.
	// Default: stderr with an "iptrail: " prefix.
	Logger *log.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "http://localhost:8000/api",
		RequestTimeout: 15 * time.Second,
		UserAgent:      "iptrail/1.0",
		DatabasePath:   "iptrail.db",
		LoginRedirect:  "/",
	}
}

// applyDefaults fills in default values for zero-value fields.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.BaseURL == "" {
		c.BaseURL = defaults.BaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = defaults.UserAgent
	}
	if c.DatabasePath == "" {
		c.DatabasePath = defaults.DatabasePath
	}
	if c.LoginRedirect == "" {
		c.LoginRedirect = defaults.LoginRedirect
	}
	if c.Logger == nil {
		c.Logger = log.New(os.Stderr, "iptrail: ", log.LstdFlags)
	}
}
