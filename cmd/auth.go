package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/miosa/chatai/auth"
	"github.com/miosa/chatai/client"
	"github.com/miosa/chatai/session"
)

// LoginCommand signs in and stores the session for the TUI and other
// commands.
func LoginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in to your account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "Account `NAME`"},
			&cli.StringFlag{Name: "password", Usage: "Password (prompted when omitted)", EnvVars: []string{"CHATAI_PASSWORD"}},
		},
		Action: runLogin,
	}
}

// SignupCommand creates an account and signs in.
func SignupCommand() *cli.Command {
	return &cli.Command{
		Name:  "signup",
		Usage: "Create an account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "Account `NAME`"},
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Email `ADDRESS`"},
			&cli.StringFlag{Name: "password", Usage: "Password (prompted when omitted)", EnvVars: []string{"CHATAI_PASSWORD"}},
		},
		Action: runSignup,
	}
}

// LogoutCommand removes the stored session.
func LogoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Sign out and forget the stored session",
		Action: runLogout,
	}
}

// RefreshCommand exchanges the refresh token for a new access token.
func RefreshCommand() *cli.Command {
	return &cli.Command{
		Name:   "refresh",
		Usage:  "Renew the access token",
		Action: runRefresh,
	}
}

// WhoamiCommand prints what the stored access token says about the user.
func WhoamiCommand() *cli.Command {
	return &cli.Command{
		Name:   "whoami",
		Usage:  "Show the signed-in account",
		Action: runWhoami,
	}
}

func runLogin(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	username, err := prompt(c.String("username"), "Username: ")
	if err != nil {
		return err
	}
	password, err := promptPassword(c.String("password"))
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(c)
	defer cancel()

	m := auth.New(ctx, e.client, e.store)
	cmd, err := m.Login(username, password)
	if err != nil {
		return err
	}
	if err := runAuth(m, cmd); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Signed in as %s\n", username)
	return nil
}

func runSignup(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	username, err := prompt(c.String("username"), "Username: ")
	if err != nil {
		return err
	}
	email, err := prompt(c.String("email"), "Email: ")
	if err != nil {
		return err
	}
	password, err := promptPassword(c.String("password"))
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(c)
	defer cancel()

	m := auth.New(ctx, e.client, e.store)
	cmd, err := m.Signup(username, email, password)
	if err != nil {
		return err
	}
	if err := runAuth(m, cmd); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Account created. Signed in as %s\n", username)
	return nil
}

func runLogout(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	if err := auth.New(c.Context, e.client, e.store).Logout(); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "Signed out")
	return nil
}

func runRefresh(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(c)
	defer cancel()

	m := auth.New(ctx, e.client, e.store)
	cmd, err := m.Refresh()
	if err != nil {
		return errors.New(client.ErrorMessage(err))
	}
	if err := runAuth(m, cmd); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "Access token renewed")
	return nil
}

func runWhoami(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	if err := e.requireSession(); err != nil {
		return err
	}
	claims, err := session.ParseClaims(e.store.AccessToken())
	if err != nil {
		return err
	}
	w := c.App.Writer
	fmt.Fprintf(w, "User:    %s\n", claims.Subject)
	if !claims.IssuedAt.IsZero() {
		fmt.Fprintf(w, "Issued:  %s\n", claims.IssuedAt.Local().Format(time.RFC1123))
	}
	if !claims.ExpiresAt.IsZero() {
		state := "valid"
		if claims.Expired(time.Now()) {
			state = "expired, will refresh on next request"
		}
		fmt.Fprintf(w, "Expires: %s (%s)\n", claims.ExpiresAt.Local().Format(time.RFC1123), state)
	}
	if fs, ok := e.store.(*session.FileStore); ok {
		fmt.Fprintf(w, "Session: %s\n", fs.Dir())
	} else {
		fmt.Fprintln(w, "Session: in memory")
	}
	return nil
}

// runAuth drives one auth request to completion and reports its error.
func runAuth(m *auth.Machine, cmd tea.Cmd) error {
	drive(cmd, func(msg tea.Msg) tea.Cmd {
		m.Update(msg)
		return nil
	})
	if st := m.State(); st.Status == auth.Rejected {
		return errors.New(st.Error)
	}
	return nil
}

func prompt(value, label string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprint(os.Stderr, label)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}
	return strings.TrimSpace(line), nil
}

func promptPassword(value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt("", "Password: ")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}
