package tui

import (
	"bytes"
	"context"
	"testing"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/idilsaglam/tasks/internal/dashboard"
	"github.com/idilsaglam/tasks/internal/model"
	"github.com/idilsaglam/tasks/internal/session"
	"github.com/idilsaglam/tasks/internal/store/taskstore"
	"github.com/idilsaglam/tasks/internal/ui"
)

func newModel(t *testing.T, tasks ...model.Task) (Model, *taskstore.Store) {
	t.Helper()
	ui.SetTheme("mono")
	t.Cleanup(func() { ui.SetTheme("classic") })

	store := taskstore.New()
	store.ReplaceAll(tasks)
	sessions := session.NewStore(t.TempDir(), zap.NewNop())
	return New(context.Background(), dashboard.New(sessions, nil, nil, store, zap.NewNop())), store
}

func keys(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func TestDelegateRender(t *testing.T) {
	newModel(t)
	l := list.New(toItems([]model.Task{
		{ID: "1", Title: "Buy milk", Status: model.StatusPending},
		{ID: "2", Title: "Walk dog", Status: model.StatusCompleted},
	}), itemDelegate{}, 40, 10)

	var buf bytes.Buffer
	itemDelegate{}.Render(&buf, l, 0, l.Items()[0])
	assert.Contains(t, buf.String(), "> [ ] Buy milk")

	buf.Reset()
	itemDelegate{}.Render(&buf, l, 1, l.Items()[1])
	assert.Equal(t, "  [x] Walk dog", buf.String())
}

func TestStoreChangeRefreshesList(t *testing.T) {
	m, store := newModel(t)
	assert.Empty(t, m.list.Items())

	store.ApplyCreated(model.Task{ID: "1", Title: "Buy milk", Status: model.StatusPending})
	next, _ := m.Update(storeChangedMsg{})
	m = next.(Model)

	require.Len(t, m.list.Items(), 1)
	assert.Contains(t, m.list.Title, "Total 1")
}

func TestAddRejectsEmptyTitle(t *testing.T) {
	m, _ := newModel(t)

	next, _ := m.Update(keys("a"))
	m = next.(Model)
	require.True(t, m.adding)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	assert.Nil(t, cmd)
	assert.True(t, m.adding)
	assert.Equal(t, "Title cannot be empty", m.inputErr)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(Model)
	assert.False(t, m.adding)
}

func TestEditPrefillsTitle(t *testing.T) {
	m, _ := newModel(t, model.Task{ID: "7", Title: "Buy milk", Status: model.StatusPending})

	next, _ := m.Update(keys("e"))
	m = next.(Model)
	assert.Equal(t, "7", m.editID)
	assert.Equal(t, "Buy milk", m.ti.Value())
}

func TestLoggedOutElsewhereQuits(t *testing.T) {
	m, _ := newModel(t)

	next, cmd := m.Update(loggedOutMsg{})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, "Logged out from another terminal", next.(Model).outcome)
}

func TestNoticeRendersFields(t *testing.T) {
	m, _ := newModel(t)

	next, _ := m.Update(noticeMsg{dashboard.Notification{
		Level:   dashboard.LevelWarn,
		Message: "Could not create task",
		Fields:  map[string]string{"title": "Title cannot be empty"},
	}})
	view := next.(Model).View()
	assert.Contains(t, view, "Could not create task")
	assert.Contains(t, view, "title: Title cannot be empty")
}

// recordingGateway answers the calls undo makes and remembers them.
type recordingGateway struct {
	dashboard.Gateway
	created   []string
	completed []string
}

func (g *recordingGateway) DeleteTask(_ context.Context, id string) (string, error) {
	return id, nil
}

func (g *recordingGateway) CreateTask(_ context.Context, title string) (*model.Task, error) {
	g.created = append(g.created, title)
	return &model.Task{ID: "new-1", Title: title, Status: model.StatusPending}, nil
}

func (g *recordingGateway) CompleteTask(_ context.Context, id string) (*model.Task, error) {
	g.completed = append(g.completed, id)
	return &model.Task{ID: id, Title: "Walk dog", Status: model.StatusCompleted}, nil
}

func TestUndoRestoresCompletedTask(t *testing.T) {
	ui.SetTheme("mono")
	t.Cleanup(func() { ui.SetTheme("classic") })
	store := taskstore.New()
	store.ReplaceAll([]model.Task{{ID: "7", Title: "Walk dog", Status: model.StatusCompleted}})
	gw := &recordingGateway{}
	sessions := session.NewStore(t.TempDir(), zap.NewNop())
	m := New(context.Background(), dashboard.New(sessions, gw, nil, store, zap.NewNop()))

	next, cmd := m.Update(keys("d"))
	m = next.(Model)
	require.NotNil(t, cmd)
	cmd()
	assert.Zero(t, store.Len())

	_, cmd = m.Update(keys("u"))
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, []string{"Walk dog"}, gw.created)
	assert.Equal(t, []string{"new-1"}, gw.completed)
	got, ok := store.Get("new-1")
	require.True(t, ok)
	assert.True(t, got.Done())
}
