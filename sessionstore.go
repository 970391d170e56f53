package iptrail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/aadithya-v/iptrail/store"
)

// Authenticator is the remote side of the session store.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (Identity, string, error)
	Register(ctx context.Context, req RegisterRequest) error
}

// SessionStore owns the signed-in session and is the only writer of the
// credential backend. Readers always go back to the backend, so a logout
// performed through another handle is observed immediately.
type SessionStore struct {
	mu      sync.Mutex // serializes writes
	backend store.CredentialStore
	auth    Authenticator
	logger  *log.Logger
}

// NewSessionStore creates a session store over backend.
// A nil logger discards log output.
func NewSessionStore(backend store.CredentialStore, auth Authenticator, logger *log.Logger) *SessionStore {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &SessionStore{
		backend: backend,
		auth:    auth,
		logger:  logger,
	}
}

// Login authenticates and persists the resulting session.
// On failure any previously stored session is left untouched.
func (s *SessionStore) Login(ctx context.Context, email, password string) (*Session, error) {
	identity, token, err := s.auth.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	user, err := json.Marshal(identity)
	if err != nil {
		return nil, fmt.Errorf("iptrail: failed to encode identity: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Save(store.Credentials{User: string(user), Token: token}); err != nil {
		return nil, fmt.Errorf("iptrail: failed to persist session: %w", err)
	}

	return &Session{Identity: identity, Token: token}, nil
}

// Register creates an account without signing in.
// A password confirmation mismatch is rejected locally.
func (s *SessionStore) Register(ctx context.Context, req RegisterRequest) error {
	if req.Password != req.PasswordConfirmation {
		return &ValidationError{Fields: map[string][]string{
			"password_confirmation": {"Passwords do not match"},
		}}
	}
	return s.auth.Register(ctx, req)
}

// Logout clears the persisted session. It is a no-op when signed out.
func (s *SessionStore) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Clear(); err != nil {
		return fmt.Errorf("iptrail: failed to clear session: %w", err)
	}
	return nil
}

// Restore rebuilds the session from storage.
// It returns nil, nil when nothing usable is stored; malformed or
// half-written data counts as signed out. Only backend I/O errors are returned.
func (s *SessionStore) Restore() (*Session, error) {
	creds, err := s.backend.Load()
	if err != nil {
		return nil, fmt.Errorf("iptrail: failed to load session: %w", err)
	}
	return s.decode(creds), nil
}

// Current returns the stored session, or nil. Backend errors count as signed out.
func (s *SessionStore) Current() *Session {
	sess, err := s.Restore()
	if err != nil {
		s.logger.Printf("session: %v", err)
		return nil
	}
	return sess
}

// Token returns the current bearer token, or "".
func (s *SessionStore) Token() string {
	if sess := s.Current(); sess != nil {
		return sess.Token
	}
	return ""
}

// Guard evaluates RequireSession against freshly read storage.
func (s *SessionStore) Guard() Decision {
	return RequireSession(s.Current())
}

func (s *SessionStore) decode(creds store.Credentials) *Session {
	if creds.Empty() {
		return nil
	}
	if creds.User == "" || creds.Token == "" {
		s.logger.Printf("session: stored session is incomplete, treating as signed out")
		return nil
	}

	var identity Identity
	if err := json.Unmarshal([]byte(creds.User), &identity); err != nil {
		s.logger.Printf("session: stored identity is malformed, treating as signed out: %v", err)
		return nil
	}

	sess := &Session{Identity: identity, Token: creds.Token}
	if !sess.IsAuthenticated() {
		s.logger.Printf("session: stored identity is empty, treating as signed out")
		return nil
	}
	return sess
}
