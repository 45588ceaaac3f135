package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"fleetdash/cmd/internal/auth/session"
	"fleetdash/cmd/security/token"

	"github.com/spf13/pflag"
)

// ErrNotLoggedIn is returned by commands that need a session.
var ErrNotLoggedIn = errors.New("not logged in")

func newFlagSet(a *App, name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func parseFlags(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return usageErrorf("%s: %v", fs.Name(), err)
	}
	if extra := fs.Args(); len(extra) > 0 {
		return usageErrorf("%s: unexpected argument %q", fs.Name(), extra[0])
	}
	return nil
}

func cmdLogin(ctx context.Context, a *App, args []string) error {
	fs := newFlagSet(a, "login")
	username := fs.StringP("username", "u", "", "account username")
	password := fs.String("password", "", "account password (prefer --password-stdin)")
	fromStdin := fs.Bool("password-stdin", false, "read the password from the first line of stdin")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	pw, err := a.resolvePassword(*password, *fromStdin)
	if err != nil {
		return err
	}
	if *username == "" || pw == "" {
		return usageErrorf("login: --username and a password are required")
	}

	if err := a.store.LoginWithPassword(ctx, session.PasswordCredentials{Username: *username, Password: pw}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "logged in as %s\n", *username)
	return nil
}

func cmdLoginTelegram(ctx context.Context, a *App, args []string) error {
	fs := newFlagSet(a, "login-telegram")
	var proof session.TelegramProof
	fs.Int64Var(&proof.ID, "id", 0, "Telegram user id")
	fs.StringVar(&proof.Hash, "hash", "", "login-widget hash")
	fs.Int64Var(&proof.AuthDate, "auth-date", 0, "login-widget auth_date (unix seconds)")
	fs.StringVar(&proof.Username, "username", "", "Telegram username")
	fs.StringVar(&proof.FirstName, "first-name", "", "first name")
	fs.StringVar(&proof.LastName, "last-name", "", "last name")
	fs.StringVar(&proof.PhotoURL, "photo-url", "", "profile photo URL")
	proofJSON := fs.String("proof", "", "full widget payload as JSON (overrides the individual flags)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if *proofJSON != "" {
		proof = session.TelegramProof{}
		if err := json.Unmarshal([]byte(*proofJSON), &proof); err != nil {
			return usageErrorf("login-telegram: --proof: %v", err)
		}
	}
	if proof.ID == 0 || proof.Hash == "" {
		return usageErrorf("login-telegram: --id and --hash are required")
	}

	if err := a.store.Login(ctx, proof); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "logged in as %s\n", displayName(a.store.Snapshot().User))
	return nil
}

func cmdRegister(ctx context.Context, a *App, args []string) error {
	fs := newFlagSet(a, "register")
	username := fs.StringP("username", "u", "", "new account username")
	password := fs.String("password", "", "new account password (prefer --password-stdin)")
	fromStdin := fs.Bool("password-stdin", false, "read the password from the first line of stdin")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	pw, err := a.resolvePassword(*password, *fromStdin)
	if err != nil {
		return err
	}
	if *username == "" || pw == "" {
		return usageErrorf("register: --username and a password are required")
	}
	if err := a.cfg.Password.Validate(pw); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	if err := a.store.Register(ctx, session.RegisterRequest{Username: *username, Password: pw}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "registered and logged in as %s\n", *username)
	return nil
}

func cmdLogout(_ context.Context, a *App, args []string) error {
	fs := newFlagSet(a, "logout")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	had := a.store.Snapshot().IsAuthenticated
	a.store.Logout()
	a.store.Wait()

	if had {
		fmt.Fprintln(a.out, "logged out")
	} else {
		fmt.Fprintln(a.out, "no session")
	}
	return nil
}

// statusView is what status prints. It never carries raw tokens.
type statusView struct {
	Authenticated bool        `json:"authenticated"`
	User          *statusUser `json:"user,omitempty"`
	Access        *tokenView  `json:"accessToken,omitempty"`
	Refresh       *tokenView  `json:"refreshToken,omitempty"`
	Outcome       string      `json:"outcome"`
	Storage       string      `json:"storage"`
}

type statusUser struct {
	Username   string `json:"username"`
	Name       string `json:"name,omitempty"`
	AuthMethod string `json:"authMethod"`
}

type tokenView struct {
	Fingerprint string    `json:"fingerprint"`
	ExpiresAt   time.Time `json:"expiresAt,omitzero"`
	Valid       bool      `json:"valid"`
}

func cmdStatus(ctx context.Context, a *App, args []string) error {
	fs := newFlagSet(a, "status")
	asJSON := fs.Bool("json", false, "print JSON")
	offline := fs.Bool("offline", false, "do not validate or refresh tokens")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	outcome := "not_checked"
	if !*offline {
		outcome = string(a.store.ValidateSession(ctx))
	}

	v := a.statusView(outcome)
	if *asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	fmt.Fprintf(a.out, "authenticated: %t\n", v.Authenticated)
	if v.User != nil {
		fmt.Fprintf(a.out, "user:          %s (%s)\n", v.User.Username, v.User.AuthMethod)
	}
	printToken(a, "access token: ", v.Access)
	printToken(a, "refresh token:", v.Refresh)
	fmt.Fprintf(a.out, "validation:    %s\n", v.Outcome)
	fmt.Fprintf(a.out, "storage:       %s\n", v.Storage)
	return nil
}

func (a *App) statusView(outcome string) statusView {
	st := a.store.Snapshot()
	now := a.clock.Now()

	v := statusView{
		Authenticated: st.IsAuthenticated,
		Outcome:       outcome,
		Storage:       a.backend.name,
		Access:        newTokenView(st.AccessToken, now, a.cfg.Session.ExpiryMargin),
		Refresh:       newTokenView(st.RefreshToken, now, a.cfg.Session.ExpiryMargin),
	}
	if st.User != nil {
		v.User = &statusUser{
			Username:   st.User.Username,
			Name:       strings.TrimSpace(st.User.FirstName + " " + st.User.LastName),
			AuthMethod: string(st.User.AuthMethod),
		}
	}
	return v
}

func newTokenView(raw string, now time.Time, margin time.Duration) *tokenView {
	if raw == "" {
		return nil
	}
	v := &tokenView{
		Fingerprint: token.Fingerprint(raw),
		Valid:       token.ValidFor(raw, now, margin),
	}
	if exp, err := token.ExpiresAt(raw); err == nil {
		v.ExpiresAt = exp.UTC()
	}
	return v
}

func printToken(a *App, label string, v *tokenView) {
	if v == nil {
		fmt.Fprintf(a.out, "%s none\n", label)
		return
	}
	exp := "unknown"
	if !v.ExpiresAt.IsZero() {
		exp = v.ExpiresAt.Format(time.RFC3339)
	}
	fmt.Fprintf(a.out, "%s fp=%s expires=%s valid=%t\n", label, v.Fingerprint, exp, v.Valid)
}

func (a *App) resolvePassword(flagValue string, fromStdin bool) (string, error) {
	if !fromStdin {
		return flagValue, nil
	}
	if flagValue != "" {
		return "", usageErrorf("--password and --password-stdin are mutually exclusive")
	}

	line, err := bufio.NewReader(a.in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func displayName(u *session.User) string {
	if u == nil {
		return "unknown"
	}
	if u.Username != "" {
		return u.Username
	}
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	return "unknown"
}
