package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/aadithya-v/iptrail"
	"github.com/aadithya-v/iptrail/internal/config"
	"github.com/aadithya-v/iptrail/store"
)

const usage = `usage: iptrail [-server URL] <command> [args]

commands:
  login -email E -password P     sign in and remember the session
  register -name N -email E -password P -confirm P
  logout                         forget the stored session
  whoami                         show the signed-in user
  home                           show your own location and history
  search <ip>                    look up an IPv4 address
  history                        list past lookups
  show <id>                      redisplay a past lookup
  delete <id>... | delete -all   delete past lookups
  locate <ip>                    offline lookup using IPTRAIL_GEOIP_DB
`

func main() {
	serverFlag := flag.String("server", "", "Override API base URL (e.g. https://api.example.com/api)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *serverFlag != "" {
		cfg.APIURL = strings.TrimRight(*serverFlag, "/")
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	backend, err := openStore(cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	app, err := iptrail.New(iptrail.Config{
		BaseURL:           cfg.APIURL,
		RequestTimeout:    cfg.RequestTimeout(),
		UserAgent:         cfg.UserAgent,
		CredentialStore:   backend,
		GeoIPDatabasePath: cfg.GeoIPDB,
		Logger:            log.New(os.Stderr, "iptrail: ", 0),
	})
	if err != nil {
		backend.Close()
		log.Fatalf("init: %v", err)
	}

	code := run(context.Background(), app, flag.Arg(0), flag.Args()[1:])
	app.Close()
	os.Exit(code)
}

func openStore(cfg *config.Config) (store.CredentialStore, error) {
	switch cfg.Store {
	case config.StoreMySQL:
		return store.NewMySQLFromDSN(cfg.MySQLDSN, cfg.Profile)
	case config.StoreRedis:
		return store.NewRedisFromConfig(store.RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix(),
		})
	case config.StoreMemory:
		return store.NewMemoryStore(), nil
	default:
		return store.NewSQLite(cfg.DBPath)
	}
}

func run(ctx context.Context, app *iptrail.App, cmd string, args []string) int {
	var err error
	switch cmd {
	case "login":
		err = loginCmd(ctx, app, args)
	case "register":
		err = registerCmd(ctx, app, args)
	case "logout":
		err = app.Logout()
		if err == nil {
			fmt.Println("Signed out.")
		}
	case "whoami":
		err = whoamiCmd(app)
	case "home", "history":
		err = homeCmd(ctx, app)
	case "search":
		err = searchCmd(ctx, app, args)
	case "show":
		err = showCmd(ctx, app, args)
	case "delete":
		err = deleteCmd(ctx, app, args)
	case "locate":
		err = locateCmd(app, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	var redirect errRedirect
	switch {
	case err == nil:
		return 0
	case errors.As(err, &redirect):
		fmt.Fprintln(os.Stderr, "Not signed in. Run: iptrail login -email ... -password ...")
		return 3
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
}

// errRedirect reports that the session guard sent the user to sign in.
type errRedirect struct{ to string }

func (e errRedirect) Error() string { return "redirect to " + e.to }

func loginCmd(ctx context.Context, app *iptrail.App, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("IPTRAIL_PASSWORD"), "account password (or IPTRAIL_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return errors.New("-email and -password are required")
	}

	sess, err := app.Sessions.Login(ctx, *email, *password)
	if err != nil {
		return errors.New(iptrail.UserMessage(err, "Login failed"))
	}
	fmt.Printf("Welcome, %s!\n", sess.Identity.Name)
	return nil
}

func registerCmd(ctx context.Context, app *iptrail.App, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	var req iptrail.RegisterRequest
	fs.StringVar(&req.Name, "name", "", "display name")
	fs.StringVar(&req.Email, "email", "", "account email")
	fs.StringVar(&req.Password, "password", "", "password (min 8 characters)")
	fs.StringVar(&req.PasswordConfirmation, "confirm", "", "repeat the password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	err := app.Sessions.Register(ctx, req)
	var verr *iptrail.ValidationError
	switch {
	case err == nil:
		fmt.Println("Account created. Sign in with: iptrail login")
		return nil
	case errors.As(err, &verr):
		for _, field := range []string{"name", "email", "password", "password_confirmation"} {
			if msg := verr.First(field); msg != "" {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", field, msg)
			}
		}
		return errors.New("registration rejected")
	default:
		return errors.New(iptrail.UserMessage(err, "Registration failed"))
	}
}

func whoamiCmd(app *iptrail.App) error {
	d := app.Guard()
	if !d.Allowed {
		return errRedirect{to: d.Redirect}
	}
	sess := app.Sessions.Current()
	if sess == nil {
		return errRedirect{to: d.Redirect}
	}
	agent := app.Client.Agent()
	fmt.Printf("Name:   %s\n", sess.Identity.Name)
	fmt.Printf("Email:  %s\n", sess.Identity.Email)
	fmt.Printf("Client: %s (%s, %s)\n", orDash(agent.Browser), orDash(agent.OS), agent.DeviceType)
	return nil
}

// enter runs the home view entry and turns a guard redirect into an error.
func enter(ctx context.Context, app *iptrail.App) error {
	d, err := app.EnterHome(ctx)
	if errors.Is(err, iptrail.ErrUnauthorized) {
		return errRedirect{to: d.Redirect}
	}
	if err != nil {
		return err
	}
	if !d.Allowed {
		return errRedirect{to: d.Redirect}
	}
	return nil
}

func homeCmd(ctx context.Context, app *iptrail.App) error {
	if err := enter(ctx, app); err != nil {
		return err
	}
	printState(app.Lookup.State())
	printHistory(app)
	return nil
}

func searchCmd(ctx context.Context, app *iptrail.App, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: iptrail search <ip>")
	}
	if d := app.Guard(); !d.Allowed {
		return errRedirect{to: d.Redirect}
	}

	if err := app.Search(ctx, args[0]); err != nil {
		if errors.Is(err, iptrail.ErrUnauthorized) {
			return errRedirect{to: app.Guard().Redirect}
		}
		if s := app.Lookup.State(); s.Status == iptrail.StatusFailed && s.Reason != "" {
			return fmt.Errorf("lookup failed: %s", s.Reason)
		}
		return fmt.Errorf("lookup failed: %s", iptrail.UserMessage(err, "please try again"))
	}
	printState(app.Lookup.State())
	if iptrail.IsPrivateIP(args[0]) {
		fmt.Println("(private address: the provider has no location data for it)")
	}
	printHistory(app)
	return nil
}

func showCmd(ctx context.Context, app *iptrail.App, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: iptrail show <id>")
	}
	if err := enter(ctx, app); err != nil {
		return err
	}

	entry, ok := app.History.Lookup(iptrail.ID(args[0]))
	if !ok {
		return fmt.Errorf("no history entry with id %s", args[0])
	}
	app.Lookup.Replay(entry)
	printState(app.Lookup.State())
	return nil
}

func deleteCmd(ctx context.Context, app *iptrail.App, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	all := fs.Bool("all", false, "delete every entry")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*all && fs.NArg() == 0 {
		return errors.New("usage: iptrail delete <id>... | delete -all")
	}
	if err := enter(ctx, app); err != nil {
		return err
	}

	if *all {
		if !app.History.AllSelected() {
			app.History.ToggleAll()
		}
	} else {
		for _, id := range fs.Args() {
			if _, ok := app.History.Lookup(iptrail.ID(id)); !ok {
				fmt.Fprintf(os.Stderr, "skipping unknown id %s\n", id)
				continue
			}
			if !app.History.IsSelected(iptrail.ID(id)) {
				app.History.Toggle(iptrail.ID(id))
			}
		}
	}

	selected := app.History.Selected()
	if len(selected) == 0 {
		fmt.Println("Nothing to delete.")
		return nil
	}

	err := app.DeleteSelected(ctx)
	switch {
	case errors.Is(err, iptrail.ErrUnauthorized):
		return errRedirect{to: app.Guard().Redirect}
	case errors.Is(err, iptrail.ErrPartialFailure):
		fmt.Fprintln(os.Stderr, "The server could not confirm every deletion; showing the current history.")
	case err != nil:
		fmt.Fprintln(os.Stderr, "Delete failed:", iptrail.UserMessage(err, "please try again"))
	default:
		fmt.Printf("Deleted %d entr%s.\n", len(selected), plural(len(selected), "y", "ies"))
	}
	printHistory(app)
	return nil
}

func locateCmd(app *iptrail.App, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: iptrail locate <ip>")
	}
	rec, err := app.Locate(args[0])
	if err != nil {
		return err
	}
	printRecord(*rec)
	return nil
}

func printState(s iptrail.LookupState) {
	switch s.Status {
	case iptrail.StatusReady:
		printRecord(*s.Record)
	case iptrail.StatusFailed:
		fmt.Printf("Lookup failed: %s\n", s.Reason)
	default:
		fmt.Printf("Lookup %s\n", s.Status)
	}
}

func printRecord(r iptrail.GeoRecord) {
	fmt.Printf("IP:       %s\n", orDash(r.IP))
	fmt.Printf("City:     %s\n", orDash(r.City))
	fmt.Printf("Region:   %s\n", orDash(r.Region))
	fmt.Printf("Country:  %s\n", orDash(r.Country))
	fmt.Printf("Location: %s\n", orDash(r.Loc))
	fmt.Printf("Org:      %s\n", orDash(r.Org))
	fmt.Printf("Timezone: %s\n", orDash(r.Timezone))
}

func printHistory(app *iptrail.App) {
	entries := app.History.Entries()
	if err := app.History.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "History unavailable:", iptrail.UserMessage(err, "could not load history"))
	}

	fmt.Printf("\nHistory (%d)\n", len(entries))
	if len(entries) == 0 {
		fmt.Println("  no lookups yet")
		return
	}

	var here *iptrail.GeoRecord
	if s := app.Lookup.State(); s.Status == iptrail.StatusReady {
		here = s.Record
	}
	for _, e := range entries {
		line := fmt.Sprintf("  [%s] %-15s %s, %s", e.ID, e.IPAddress, orDash(e.City), orDash(e.Country))
		if here != nil {
			if km, ok := here.DistanceKM(e.Record()); ok {
				line += fmt.Sprintf("  (%.0f km away)", km)
			}
		}
		if e.CreatedAt != "" {
			line += "  " + e.CreatedAt
		}
		fmt.Println(line)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
