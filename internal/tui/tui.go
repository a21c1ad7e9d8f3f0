// Package tui is the interactive dashboard: the reconciled task list with
// inline add/edit, live updates and a pending/completed chart.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/idilsaglam/tasks/internal/dashboard"
	"github.com/idilsaglam/tasks/internal/model"
	"github.com/idilsaglam/tasks/internal/session"
	"github.com/idilsaglam/tasks/internal/ui"
)

// Watcher reports session changes made by other processes.
type Watcher interface {
	Watch(ctx context.Context, fn func(*session.Session)) error
}

type (
	storeChangedMsg struct{}
	noticeMsg       struct{ dashboard.Notification }
	loggedOutMsg    struct{}
	opDoneMsg       struct{ err error }
)

// taskItem adapts model.Task to bubbles/list.Item.
type taskItem struct{ model.Task }

func (i taskItem) Title() string       { return i.Task.Title }
func (i taskItem) Description() string { return "" }
func (i taskItem) FilterValue() string { return i.Task.Title }

func toItems(tasks []model.Task) []list.Item {
	out := make([]list.Item, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskItem{t})
	}
	return out
}

// itemDelegate renders one task per line.
type itemDelegate struct{}

func (d itemDelegate) Height() int                         { return 1 }
func (d itemDelegate) Spacing() int                        { return 0 }
func (d itemDelegate) Update(tea.Msg, *list.Model) tea.Cmd { return nil }
func (d itemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(taskItem)
	if !ok {
		return
	}
	t := ui.Current()
	box, text := t.Muted.Render(t.BoxUnchecked), it.Task.Title
	if it.Done() {
		box, text = t.Success.Render(t.BoxChecked), t.Done.Render(text)
	}
	prefix := "  "
	if index == m.Index() {
		prefix = t.Selected.Render("> ")
	}
	fmt.Fprintf(w, "%s%s %s", prefix, box, text)
}

var (
	addKey      = key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add"))
	editKey     = key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit"))
	completeKey = key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "complete"))
	deleteKey   = key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete"))
	undoKey     = key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "undo delete"))
	chartKey    = key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "chart"))
	reloadKey   = key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload"))
)

// Model is the Bubble Tea model.
type Model struct {
	ctx  context.Context
	dash *dashboard.Dashboard

	list    list.Model
	spin    spinner.Model
	busy    int
	width   int
	height  int
	chart   bool
	notice  *dashboard.Notification
	outcome string

	// inline add/edit share one input
	ti       textinput.Model
	adding   bool
	editID   string
	inputErr string

	// last deleted task, re-created by undo with its title and status
	undo *model.Task
}

// New builds the model around dash.
func New(ctx context.Context, dash *dashboard.Dashboard) Model {
	t := ui.Current()
	l := list.New(toItems(dash.Tasks()), itemDelegate{}, 80, 20)
	l.SetShowHelp(true)
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.SetStatusBarItemName("task", "tasks")
	l.Styles.Title = t.Title
	l.Styles.HelpStyle = t.Help
	l.Styles.PaginationStyle = t.Help
	l.FilterInput.Prompt = "/ "
	extra := func() []key.Binding {
		return []key.Binding{addKey, editKey, completeKey, deleteKey, undoKey, chartKey, reloadKey}
	}
	l.AdditionalShortHelpKeys = extra
	l.AdditionalFullHelpKeys = extra

	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 200

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{ctx: ctx, dash: dash, list: l, ti: ti, spin: sp, width: 80, height: 24}
	m.list.Title = m.header()
	return m
}

// Run starts the program and blocks until the user quits or the session is
// cleared elsewhere. It returns a message for the caller to print, if any.
func Run(ctx context.Context, dash *dashboard.Dashboard, watcher Watcher) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(New(ctx, dash), tea.WithAltScreen(), tea.WithContext(ctx))

	dash.SetNotifier(func(n dashboard.Notification) { p.Send(noticeMsg{n}) })
	defer dash.SetNotifier(nil)
	unsub := dash.Store().Subscribe(func() { p.Send(storeChangedMsg{}) })
	defer unsub()

	if watcher != nil {
		err := watcher.Watch(ctx, func(s *session.Session) {
			if !s.Authenticated() {
				p.Send(loggedOutMsg{})
			}
		})
		if err != nil {
			return "", err
		}
	}
	defer dash.StopLive()

	final, err := p.Run()
	if err != nil {
		return "", err
	}
	if fm, ok := final.(Model); ok {
		return fm.outcome, nil
	}
	return "", nil
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.op(m.dash.Refresh), m.op(m.dash.StartLive))
}

// op runs fn off the event loop and reports back with opDoneMsg.
func (m Model) op(fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg { return opDoneMsg{err: fn(ctx)} }
}

func (m *Model) start(fn func(context.Context) error) tea.Cmd {
	m.busy++
	return m.op(fn)
}

func (m Model) selected() (taskItem, bool) {
	it, ok := m.list.SelectedItem().(taskItem)
	return it, ok
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil
	case storeChangedMsg:
		m.list.Title = m.header()
		return m, m.list.SetItems(toItems(m.dash.Tasks()))
	case noticeMsg:
		n := msg.Notification
		m.notice = &n
		return m, nil
	case opDoneMsg:
		if m.busy > 0 {
			m.busy--
		}
		if !m.dash.Authenticated() {
			m.outcome = "Session ended, please log in again"
			return m, tea.Quit
		}
		return m, nil
	case loggedOutMsg:
		m.outcome = "Logged out from another terminal"
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	if m.adding || m.editID != "" {
		return m.updateInput(msg)
	}

	if km, ok := msg.(tea.KeyMsg); ok && m.list.FilterState() != list.Filtering {
		m.notice = nil
		switch {
		case km.String() == "q" || km.String() == "esc":
			return m, tea.Quit
		case key.Matches(km, addKey):
			m.adding = true
			m.openInput("", "New task title...")
			return m, textinput.Blink
		case key.Matches(km, editKey):
			if it, ok := m.selected(); ok {
				m.editID = it.ID
				m.openInput(it.Task.Title, "Edit task title...")
				return m, textinput.Blink
			}
			return m, nil
		case key.Matches(km, completeKey):
			it, ok := m.selected()
			if !ok {
				return m, nil
			}
			if it.Done() {
				return m, nil
			}
			return m, m.start(func(ctx context.Context) error {
				_, err := m.dash.Complete(ctx, it.ID)
				return err
			})
		case key.Matches(km, deleteKey):
			it, ok := m.selected()
			if !ok {
				return m, nil
			}
			deleted := it.Task
			m.undo = &deleted
			return m, m.start(func(ctx context.Context) error { return m.dash.Delete(ctx, it.ID) })
		case key.Matches(km, undoKey):
			prev := m.undo
			if prev == nil {
				return m, nil
			}
			m.undo = nil
			return m, m.start(func(ctx context.Context) error {
				t, err := m.dash.Create(ctx, prev.Title)
				if err != nil || !prev.Done() {
					return err
				}
				_, err = m.dash.Complete(ctx, t.ID)
				return err
			})
		case key.Matches(km, chartKey):
			m.chart = !m.chart
			m.resize()
			return m, nil
		case key.Matches(km, reloadKey):
			return m, m.start(m.dash.Refresh)
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) openInput(value, placeholder string) {
	m.inputErr = ""
	m.ti.SetValue(value)
	m.ti.CursorEnd()
	m.ti.Placeholder = placeholder
	m.ti.Focus()
	m.resize()
}

func (m *Model) closeInput() {
	m.adding, m.editID, m.inputErr = false, "", ""
	m.ti.SetValue("")
	m.ti.Blur()
	m.resize()
}

func (m Model) updateInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok {
		switch km.String() {
		case "esc":
			m.closeInput()
			return m, nil
		case "enter":
			title := strings.TrimSpace(m.ti.Value())
			if title == "" {
				m.inputErr = "Title cannot be empty"
				return m, nil
			}
			id := m.editID
			m.closeInput()
			if id == "" {
				return m, m.start(func(ctx context.Context) error {
					_, err := m.dash.Create(ctx, title)
					return err
				})
			}
			return m, m.start(func(ctx context.Context) error {
				_, err := m.dash.Rename(ctx, id, title)
				return err
			})
		}
	}
	var cmd tea.Cmd
	m.ti, cmd = m.ti.Update(msg)
	return m, cmd
}

// resize fits the list into what the header, chart and input leave over.
func (m *Model) resize() {
	h := m.height - 4
	if m.adding || m.editID != "" {
		h -= 4
	}
	if m.chart {
		h -= 3
	}
	if h < 3 {
		h = 3
	}
	m.list.SetSize(m.width-4, h)
}

func (m Model) header() string {
	t := ui.Current()
	c := m.dash.Counts()
	return fmt.Sprintf("%s   %s %d  %s %d  %s %d  %s",
		t.Title.Render("Tasks"),
		t.Success.Render("✔"), c.Completed,
		t.Pending.Render("•"), c.Pending,
		t.Accent.Render("Total"), c.Total(),
		ui.ProgressBar(c.Completed, c.Total(), 16),
	)
}

func (m Model) View() string {
	t := ui.Current()
	parts := []string{}
	if m.chart {
		c := m.dash.Counts()
		parts = append(parts, ui.Chart(c.Pending, c.Completed, 30), "")
	}
	parts = append(parts, m.list.View())

	if m.adding || m.editID != "" {
		title := "Add task"
		if m.editID != "" {
			title = "Edit task"
		}
		if m.inputErr != "" {
			title += "  " + t.Error.Render(m.inputErr)
		}
		box := lipgloss.NewStyle().Border(t.Border).BorderForeground(t.BorderColor).Padding(0, 1)
		parts = append(parts, box.Render(title+"\n"+m.ti.View()))
	}

	status := ""
	if m.busy > 0 {
		status = m.spin.View() + " "
	}
	if m.notice != nil {
		status += renderNotice(*m.notice)
	}
	if status != "" {
		parts = append(parts, status)
	}
	return ui.Panel(parts)
}

func renderNotice(n dashboard.Notification) string {
	t := ui.Current()
	style := t.Muted
	switch n.Level {
	case dashboard.LevelSuccess:
		style = t.Success
	case dashboard.LevelWarn:
		style = t.Warn
	case dashboard.LevelError:
		style = t.Error
	}
	out := style.Render(n.Message)
	if f := ui.Fields(n.Fields); f != "" {
		out += "\n" + f
	}
	return out
}
