package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/idilsaglam/tasks/internal/live"
	"github.com/idilsaglam/tasks/internal/model"
	"github.com/idilsaglam/tasks/internal/session"
	"github.com/idilsaglam/tasks/internal/store/taskstore"
	"github.com/idilsaglam/tasks/internal/tui"
	"github.com/idilsaglam/tasks/internal/ui"
)

// authed loads the app, checks the session and fetches the task list.
func (o *rootOptions) authed(ctx context.Context) (*app, error) {
	a, err := o.load()
	if err != nil {
		return nil, err
	}
	if _, err := a.requireSession(); err != nil {
		return nil, err
	}
	if err := a.dash.Refresh(ctx); err != nil {
		return nil, errReported
	}
	return a, nil
}

// resolve finds a task by id, or by the 1-based position shown by ls.
func (a *app) resolve(ref string) (model.Task, error) {
	if t, ok := a.dash.Store().Get(ref); ok {
		return t, nil
	}
	tasks := a.dash.Tasks()
	if n, err := strconv.Atoi(ref); err == nil {
		if n >= 1 && n <= len(tasks) {
			return tasks[n-1], nil
		}
		return model.Task{}, usageErr("index out of range: have %d, got %d (run `tasks ls`)", len(tasks), n)
	}
	return model.Task{}, usageErr("no task %q (run `tasks ls` to see ids)", ref)
}

func newListCmd(o *rootOptions) *cobra.Command {
	var group, chart bool
	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List tasks",
		Args:    exactArgs(0, "ls [--group] [--chart]"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.authed(cmd.Context())
			if err != nil {
				return err
			}
			tasks := a.dash.Tasks()
			c := a.dash.Counts()
			t := ui.Current()

			lines := []string{
				fmt.Sprintf("%s  %s %d  %s %d  %s %d",
					t.Title.Render("Tasks"),
					t.Success.Render("✔"), c.Completed,
					t.Pending.Render("•"), c.Pending,
					t.Accent.Render("Total"), c.Total()),
				ui.ProgressBar(c.Completed, c.Total(), 28),
				"",
			}
			if chart {
				lines = append(lines, ui.Chart(c.Pending, c.Completed, 28), "")
			}
			if group {
				lines = append(lines, groupLines(tasks)...)
			} else {
				lines = append(lines, flatLines(tasks, 1)...)
			}
			lines = append(lines, "", t.Muted.Render("Tip: add with `tasks add \"Buy milk\"`"))
			fmt.Fprintln(cmd.OutOrStdout(), ui.Panel(lines))
			return nil
		},
	}
	cmd.Flags().BoolVar(&group, "group", false, "group output by pending/completed")
	cmd.Flags().BoolVar(&chart, "chart", false, "show the pending/completed chart")
	return cmd
}

func newAddCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <title...>",
		Short: "Add a task (the title can be several words)",
		Args:  minArgs(1, "add <title...>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.load()
			if err != nil {
				return err
			}
			if _, err := a.requireSession(); err != nil {
				return err
			}
			if _, err := a.dash.Create(cmd.Context(), strings.Join(args, " ")); err != nil {
				return errReported
			}
			return nil
		},
	}
}

func newEditCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id|index> <title...>",
		Short: "Rename a task",
		Args:  minArgs(2, "edit <id|index> <title...>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.authed(cmd.Context())
			if err != nil {
				return err
			}
			t, err := a.resolve(args[0])
			if err != nil {
				return err
			}
			if _, err := a.dash.Rename(cmd.Context(), t.ID, strings.Join(args[1:], " ")); err != nil {
				return errReported
			}
			return nil
		},
	}
}

func newDoneCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "done <id|index>",
		Short: "Mark a task completed",
		Args:  exactArgs(1, "done <id|index>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.authed(cmd.Context())
			if err != nil {
				return err
			}
			t, err := a.resolve(args[0])
			if err != nil {
				return err
			}
			if t.Done() {
				ui.OK(fmt.Sprintf("%q is already completed", t.Title))
				return nil
			}
			if _, err := a.dash.Complete(cmd.Context(), t.ID); err != nil {
				return errReported
			}
			return nil
		},
	}
}

func newRemoveCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id|index>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    exactArgs(1, "rm <id|index>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.authed(cmd.Context())
			if err != nil {
				return err
			}
			t, err := a.resolve(args[0])
			if err != nil {
				return err
			}
			if err := a.dash.Delete(cmd.Context(), t.ID); err != nil {
				return errReported
			}
			return nil
		},
	}
}

// watch prints pushed events until interrupted, the channel drops without
// reconnection, or the session is cleared by another process.
func newWatchCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow task changes live",
		Args:  exactArgs(0, "watch"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.authed(cmd.Context())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			loggedOut := make(chan struct{}, 1)
			err = a.sessions.Watch(ctx, func(s *session.Session) {
				if !s.Authenticated() {
					select {
					case loggedOut <- struct{}{}:
					default:
					}
				}
			})
			if err != nil {
				return err
			}
			if err := a.dash.StartLive(ctx); err != nil {
				return errReported
			}
			// registered after StartLive so the store has applied each event
			// by the time it is printed
			out := cmd.OutOrStdout()
			for _, k := range live.Kinds {
				unsub := a.channel.On(k, func(ev live.Event) {
					fmt.Fprintln(out, eventLine(ev, a.dash.Counts()))
				})
				defer unsub()
			}
			ui.OK(fmt.Sprintf("watching %d tasks, Ctrl-C to stop", a.dash.Store().Len()))

			select {
			case <-ctx.Done():
			case <-loggedOut:
				ui.Warn("logged out from another terminal")
			case <-a.channel.Done():
				ui.Warn("live channel closed")
				return &exitError{code: 1}
			}
			return nil
		},
	}
}

func newUICmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Open the interactive dashboard",
		Args:  exactArgs(0, "ui"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.load()
			if err != nil {
				return err
			}
			if _, err := a.requireSession(); err != nil {
				return err
			}
			outcome, err := tui.Run(cmd.Context(), a.dash, a.sessions)
			if err != nil {
				return fmt.Errorf("tui: %w", err)
			}
			if outcome != "" {
				ui.Warn(outcome)
			}
			return nil
		},
	}
}

// -------------- rendering helpers ----------------

func eventLine(ev live.Event, c taskstore.Counts) string {
	t := ui.Current()
	var what string
	switch ev.Kind {
	case live.TaskCreated:
		what = t.Accent.Render("+ created ") + ev.Task.Title
	case live.TaskUpdated:
		what = t.Accent.Render("~ updated ") + ev.Task.Title
	case live.TaskCompleted:
		what = t.Success.Render("✔ completed ") + ev.Task.Title
	case live.TaskDeleted:
		what = t.Error.Render("- deleted ") + ev.ID
	}
	return fmt.Sprintf("%s  %s", what, t.Muted.Render(fmt.Sprintf("(%d pending, %d completed)", c.Pending, c.Completed)))
}

func flatLines(tasks []model.Task, first int) []string {
	t := ui.Current()
	if len(tasks) == 0 {
		return []string{t.Muted.Render("no tasks")}
	}
	out := make([]string, 0, len(tasks))
	for i, task := range tasks {
		box := t.Muted.Render(t.BoxUnchecked)
		title := truncate(task.Title, 80)
		if task.Done() {
			box, title = t.Success.Render(t.BoxChecked), t.Done.Render(title)
		}
		out = append(out, fmt.Sprintf("%s %s %s  %s",
			t.Muted.Render(fmt.Sprintf("%2d.", first+i)), box, title, t.Muted.Render(shortID(task.ID))))
	}
	return out
}

// groupLines keeps ls indexes stable: positions refer to the flat order.
func groupLines(tasks []model.Task) []string {
	t := ui.Current()
	section := func(label string, status model.Status) []string {
		lines := []string{t.Accent.Render(label)}
		n := 0
		for i, task := range tasks {
			if task.Status == status {
				lines = append(lines, flatLines([]model.Task{task}, i+1)...)
				n++
			}
		}
		if n == 0 {
			lines = append(lines, t.Muted.Render("(none)"))
		}
		return lines
	}
	lines := section("Pending", model.StatusPending)
	lines = append(lines, "")
	return append(lines, section("Completed", model.StatusCompleted)...)
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
