// Package cli is the command-line surface of the client.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/idilsaglam/tasks/internal/ui"
)

// exitError carries the process exit code (1 error, 2 usage). err is
// printed by Execute unless nil, which marks a failure already reported.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// errReported means a dashboard notification already told the user.
var errReported = &exitError{code: 1}

func usageErr(format string, args ...any) error {
	return &exitError{code: 2, err: fmt.Errorf(format, args...)}
}

func exactArgs(n int, usage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usageErr("usage: tasks %s", usage)
		}
		return nil
	}
}

func minArgs(n int, usage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < n {
			return usageErr("usage: tasks %s", usage)
		}
		return nil
	}
}

// rootOptions are the persistent flags.
type rootOptions struct {
	dir     string
	verbose bool
	theme   string
	noColor bool
	color   bool

	app *app
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command { return newRootCmd(&rootOptions{}) }

func newRootCmd(opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "tasks",
		Short: "tasks - a live task list in your terminal",
		Long: `tasks talks to a task service: register or log in once, then list, add,
complete and delete tasks. "tasks watch" and "tasks ui" follow changes made
from other clients as they happen.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			ui.Stdout, ui.Stderr = cmd.OutOrStdout(), cmd.ErrOrStderr()
			ui.SetColorForcing(opts.color, opts.noColor)
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &exitError{code: 2, err: err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&opts.dir, "dir", "", "state directory (default ~/.tasks)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr at debug level")
	pf.StringVar(&opts.theme, "theme", "", "classic, neon or mono (overrides config)")
	pf.BoolVar(&opts.noColor, "no-color", false, "disable colors")
	pf.BoolVar(&opts.color, "color", false, "force colors")

	root.AddCommand(
		newRegisterCmd(opts),
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newStatusCmd(opts),
		newWhoamiCmd(opts),
		newListCmd(opts),
		newAddCmd(opts),
		newEditCmd(opts),
		newDoneCmd(opts),
		newRemoveCmd(opts),
		newWatchCmd(opts),
		newUICmd(opts),
		newConfigCmd(opts),
		newMockServerCmd(opts),
	)
	return root
}

// Execute runs the CLI with args and returns the exit code
// (0 ok, 1 error, 2 usage).
func Execute(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := &rootOptions{}
	defer opts.close()
	root := newRootCmd(opts)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if len(args) == 0 {
		root.Help()
		return 2
	}

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(stderr, ui.Current().Error.Render("✖ "+ee.err.Error()))
		}
		return ee.code
	}
	fmt.Fprintln(stderr, ui.Current().Error.Render("✖ "+err.Error()))
	if strings.HasPrefix(err.Error(), "unknown command") {
		return 2
	}
	return 1
}
