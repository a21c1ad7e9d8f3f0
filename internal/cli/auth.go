package cli

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/idilsaglam/tasks/internal/session"
	"github.com/idilsaglam/tasks/internal/ui"
)

// prompter reads missing credentials from stdin, one line each.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(cmd *cobra.Command) *prompter {
	return &prompter{in: bufio.NewReader(cmd.InOrStdin()), out: cmd.OutOrStdout()}
}

func (p *prompter) ask(label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprintf(p.out, "%s: ", label)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newRegisterCmd(o *rootOptions) *cobra.Command {
	var username, email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Args:  exactArgs(0, "register [--username u] [--email e] [--password p]"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.load()
			if err != nil {
				return err
			}
			p := newPrompter(cmd)
			if username, err = p.ask("Username", username); err != nil {
				return err
			}
			if email, err = p.ask("Email", email); err != nil {
				return err
			}
			if password, err = p.ask("Password", password); err != nil {
				return err
			}
			if err := a.dash.Register(cmd.Context(), username, email, password); err != nil {
				return errReported
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account name")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}

func newLoginCmd(o *rootOptions) *cobra.Command {
	var email, password, token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with email and password, or store a token",
		Args:  exactArgs(0, "login [--email e] [--password p] | login --token t"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.load()
			if err != nil {
				return err
			}
			if token != "" {
				if err := a.sessions.Save(token); err != nil {
					return fmt.Errorf("save token: %w", err)
				}
				ui.OK("token saved")
				return nil
			}
			p := newPrompter(cmd)
			if email, err = p.ask("Email", email); err != nil {
				return err
			}
			if password, err = p.ask("Password", password); err != nil {
				return err
			}
			if err := a.dash.Login(cmd.Context(), email, password); err != nil {
				return errReported
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().StringVar(&token, "token", "", "store this token instead of logging in")
	return cmd
}

func newLogoutCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  exactArgs(0, "logout"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.load()
			if err != nil {
				return err
			}
			if sess, _ := a.sessions.Get(); sess != nil && sess.Source == session.SourceEnv {
				ui.OK(fmt.Sprintf("token is provided by %s env var (nothing to delete)", session.EnvToken))
				return nil
			}
			if err := a.dash.Logout(); err != nil {
				return errReported
			}
			return nil
		},
	}
}

func newStatusCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a session is stored",
		Args:  exactArgs(0, "status"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			sess, err := a.sessions.Get()
			if err != nil {
				return err
			}
			if !sess.Authenticated() {
				fmt.Fprintln(out, ui.Current().Muted.Render("not logged in"))
				fmt.Fprintln(out, "Run: tasks login")
				return nil
			}
			if sess.User != nil {
				fmt.Fprintf(out, "user: %s <%s>\n", sess.User.Username, sess.User.Email)
			}
			fmt.Fprintf(out, "source: %s\n", sess.Source)
			if sess.ExpiresAt != nil {
				fmt.Fprintf(out, "expires: %s\n", sess.ExpiresAt.UTC().Format(time.RFC3339))
			} else {
				fmt.Fprintln(out, "expires: (unknown)")
			}
			fmt.Fprintf(out, "server: %s\n", a.cfg.APIURL)
			fmt.Fprintf(out, "env override: %s\n", session.EnvToken)
			return nil
		},
	}
}

// whoami decodes a JWT locally without verifying it; opaque tokens fall
// back to the cached user.
func newWhoamiCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the session user and token claims",
		Args:  exactArgs(0, "whoami"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.load()
			if err != nil {
				return err
			}
			sess, err := a.requireSession()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if sess.User != nil {
				fmt.Fprintf(out, "%s %s <%s>\n", ui.Current().Title.Render(sess.User.Username), sess.User.ID, sess.User.Email)
			}
			claims, ok := session.Claims(sess.Token)
			if !ok {
				fmt.Fprintln(out, "Opaque token (cannot introspect locally).")
				fmt.Fprintln(out, "source:", sess.Source)
				return nil
			}
			keys := make([]string, 0, len(claims))
			for k := range claims {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintln(out, "JWT claims:")
			for _, k := range keys {
				fmt.Fprintf(out, "  %s: %v\n", k, claims[k])
			}
			return nil
		},
	}
}
