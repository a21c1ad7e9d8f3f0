package live

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"
	"golang.org/x/time/rate"

	"github.com/idilsaglam/tasks/internal/model"
)

type hub struct {
	mu        sync.Mutex
	joins     []string
	connected chan *websocket.Conn
	// dropFirst closes the first connection right after its join.
	dropFirst bool
}

func newHub(t *testing.T, dropFirst bool) (*hub, *httptest.Server) {
	t.Helper()
	h := &hub{connected: make(chan *websocket.Conn, 8), dropFirst: dropFirst}
	srv := httptest.NewServer(websocket.Handler(func(ws *websocket.Conn) {
		var f Frame
		if err := websocket.JSON.Receive(ws, &f); err != nil || f.Event != JoinEvent {
			return
		}
		var user string
		json.Unmarshal(f.Data, &user)

		h.mu.Lock()
		h.joins = append(h.joins, user)
		first := len(h.joins) == 1
		h.mu.Unlock()

		if h.dropFirst && first {
			return
		}
		h.connected <- ws
		for websocket.JSON.Receive(ws, &f) == nil {
		}
	}))
	t.Cleanup(srv.Close)
	return h, srv
}

func (h *hub) joined() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.joins...)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func send(t *testing.T, ws *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, websocket.JSON.Send(ws, Frame{Event: event, Data: raw}))
}

func waitConn(t *testing.T, h *hub) *websocket.Conn {
	t.Helper()
	select {
	case ws := <-h.connected:
		return ws
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw a connection")
		return nil
	}
}

func TestConnect_AnnouncesUserOnce(t *testing.T) {
	h, srv := newHub(t, false)
	c := New(wsURL(srv), srv.URL, zap.NewNop())
	defer c.Disconnect()

	require.NoError(t, c.Connect(context.Background(), "u1"))
	waitConn(t, h)
	require.NoError(t, c.Connect(context.Background(), "u1"))

	assert.True(t, c.Connected())
	assert.Equal(t, []string{"u1"}, h.joined())
}

func TestConnect_RejectsEmptyUser(t *testing.T) {
	c := New("ws://127.0.0.1:1", "http://127.0.0.1:1", nil)
	assert.Error(t, c.Connect(context.Background(), ""))
}

func TestDisconnect_SafeWhenIdle(t *testing.T) {
	c := New("ws://127.0.0.1:1", "http://127.0.0.1:1", nil)
	assert.NoError(t, c.Disconnect())
	assert.NoError(t, c.Disconnect())
	assert.False(t, c.Connected())
	assert.Nil(t, c.Done())
}

func TestHandlers_RunInRegistrationOrder(t *testing.T) {
	h, srv := newHub(t, false)
	c := New(wsURL(srv), srv.URL, zap.NewNop())

	var (
		mu    sync.Mutex
		order []string
		got   []Event
	)
	record := func(tag string) Handler {
		return func(ev Event) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, tag)
			got = append(got, ev)
		}
	}
	c.On(TaskCreated, record("first"))
	c.On(TaskCreated, record("second"))

	require.NoError(t, c.Connect(context.Background(), "u1"))
	ws := waitConn(t, h)

	send(t, ws, string(TaskCreated), model.Task{ID: "42", Title: "Buy milk", Status: model.StatusPending})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, c.Disconnect())

	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, "42", got[0].ID)
	assert.Equal(t, "Buy milk", got[0].Task.Title)
}

func TestDeletePayloadForms(t *testing.T) {
	h, srv := newHub(t, false)
	c := New(wsURL(srv), srv.URL, zap.NewNop())

	ids := make(chan string, 4)
	c.On(TaskDeleted, func(ev Event) { ids <- ev.ID })

	require.NoError(t, c.Connect(context.Background(), "u1"))
	defer c.Disconnect()
	ws := waitConn(t, h)

	send(t, ws, string(TaskDeleted), "42")
	send(t, ws, "somethingElse", "ignored")
	send(t, ws, string(TaskDeleted), map[string]string{"id": "43"})

	for _, want := range []string{"42", "43"} {
		select {
		case id := <-ids:
			assert.Equal(t, want, id)
		case <-time.After(2 * time.Second):
			t.Fatalf("no delete event for %s", want)
		}
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	h, srv := newHub(t, false)
	c := New(wsURL(srv), srv.URL, zap.NewNop())

	var (
		mu      sync.Mutex
		removed int
	)
	marks := make(chan string, 4)
	unsub := c.On(TaskUpdated, func(Event) {
		mu.Lock()
		removed++
		mu.Unlock()
	})
	c.On(TaskUpdated, func(ev Event) { marks <- ev.ID })
	unsub()

	require.NoError(t, c.Connect(context.Background(), "u1"))
	defer c.Disconnect()
	ws := waitConn(t, h)
	send(t, ws, string(TaskUpdated), model.Task{ID: "1", Title: "x", Status: model.StatusPending})

	select {
	case id := <-marks:
		assert.Equal(t, "1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("no update event")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, removed)
}

func TestReconnect_RepeatsJoin(t *testing.T) {
	h, srv := newHub(t, true)
	c := New(wsURL(srv), srv.URL, zap.NewNop(),
		WithReconnect(rate.NewLimiter(rate.Every(10*time.Millisecond), 1)))
	defer c.Disconnect()

	require.NoError(t, c.Connect(context.Background(), "u1"))
	waitConn(t, h)

	assert.Equal(t, []string{"u1", "u1"}, h.joined())
	assert.True(t, c.Connected())
}

func TestDrop_WithoutReconnectEndsRun(t *testing.T) {
	_, srv := newHub(t, true)
	c := New(wsURL(srv), srv.URL, zap.NewNop())

	require.NoError(t, c.Connect(context.Background(), "u1"))
	done := c.Done()
	require.NotNil(t, done)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not end after the server dropped")
	}
	assert.False(t, c.Connected())
	assert.NoError(t, c.Disconnect())
}
