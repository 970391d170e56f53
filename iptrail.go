// Package iptrail is a client for an authenticated IP geolocation service.
// It keeps the signed-in session, the current lookup result and the
// user's selectable lookup history consistent with the server.
package iptrail

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/aadithya-v/iptrail/store"
)

// App wires the session store, remote client, lookup coordinator and
// history manager together.
type App struct {
	config Config
	logger *log.Logger

	backend store.CredentialStore
	geoip   *GeoIPReader

	Client   *Client
	Sessions *SessionStore
	Lookup   *Coordinator
	History  *HistoryManager
}

// New creates a new App with the given configuration.
// If CredentialStore is not provided, a SQLite store at DatabasePath is used.
func New(cfg Config) (*App, error) {
	cfg.applyDefaults()

	a := &App{
		config: cfg,
		logger: cfg.Logger,
	}

	if cfg.CredentialStore != nil {
		a.backend = cfg.CredentialStore
	} else {
		sqliteStore, err := store.NewSQLite(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("iptrail: failed to initialize SQLite store: %w", err)
		}
		a.backend = sqliteStore
	}

	if cfg.GeoIPDatabasePath != "" {
		geoip, err := NewGeoIPReader(cfg.GeoIPDatabasePath)
		if err != nil {
			a.backend.Close()
			return nil, fmt.Errorf("iptrail: failed to initialize GeoIP: %w", err)
		}
		a.geoip = geoip
	}

	var sessions *SessionStore
	a.Client = NewClient(cfg.BaseURL, cfg.RequestTimeout, cfg.UserAgent, TokenFunc(func() string {
		return sessions.Token()
	}))
	sessions = NewSessionStore(a.backend, a.Client, a.logger)
	a.Sessions = sessions
	a.History = NewHistoryManager(a.Client, a.logger)
	a.Lookup = NewCoordinator(a.Client, a.History, a.logger)

	return a, nil
}

// Close releases all resources held by the App.
func (a *App) Close() error {
	var errs []error

	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if a.geoip != nil {
		if err := a.geoip.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("iptrail: errors during close: %w", errors.Join(errs...))
	}
	return nil
}

// Guard checks the stored session for entry to a protected view.
func (a *App) Guard() Decision {
	d := a.Sessions.Guard()
	if !d.Allowed {
		d.Redirect = a.config.LoginRedirect
	}
	return d
}

// EnterHome runs on entry to the home view. When the guard allows entry it
// auto-loads the caller's geolocation and refreshes the history
// concurrently. Read failures degrade the display but are not returned;
// ErrUnauthorized forces a logout and is returned.
func (a *App) EnterHome(ctx context.Context) (Decision, error) {
	d := a.Guard()
	if !d.Allowed {
		return d, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return unauthorizedOnly(a.Lookup.AutoLoad(gctx))
	})
	g.Go(func() error {
		return unauthorizedOnly(a.History.Refresh(gctx))
	})

	if err := g.Wait(); err != nil {
		a.logger.Printf("home: credential rejected, signing out: %v", err)
		redirect := Decision{Redirect: a.config.LoginRedirect}
		if logoutErr := a.Logout(); logoutErr != nil {
			return redirect, errors.Join(err, logoutErr)
		}
		return redirect, err
	}
	return d, nil
}

// Search runs a manual search. ErrUnauthorized forces a logout.
func (a *App) Search(ctx context.Context, input string) error {
	err := a.Lookup.Search(ctx, input)
	return a.forceLogoutOn(err)
}

// DeleteSelected bulk-deletes the selected history entries.
// ErrUnauthorized forces a logout.
func (a *App) DeleteSelected(ctx context.Context) error {
	err := a.History.DeleteSelected(ctx)
	return a.forceLogoutOn(err)
}

// Logout tears down the view state and clears the persisted session.
// In-flight responses are discarded.
func (a *App) Logout() error {
	a.Lookup.Reset()
	a.History.Reset()
	return a.Sessions.Logout()
}

// Locate resolves ip offline using the configured GeoIP database.
func (a *App) Locate(ip string) (*GeoRecord, error) {
	if a.geoip == nil {
		return nil, ErrGeoIPDatabaseNotConfigured
	}
	return a.geoip.Lookup(ip)
}

func (a *App) forceLogoutOn(err error) error {
	if !errors.Is(err, ErrUnauthorized) {
		return err
	}
	a.logger.Printf("credential rejected, signing out: %v", err)
	if logoutErr := a.Logout(); logoutErr != nil {
		return errors.Join(err, logoutErr)
	}
	return err
}

// unauthorizedOnly keeps ErrUnauthorized and drops every other error.
func unauthorizedOnly(err error) error {
	if errors.Is(err, ErrUnauthorized) {
		return err
	}
	return nil
}
