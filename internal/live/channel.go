// Package live is the push side of the service: a WebSocket that delivers
// task events for the session user.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/websocket"
	"golang.org/x/time/rate"

	"github.com/idilsaglam/tasks/internal/model"
)

// Kind names a server-pushed event.
type Kind string

const (
	TaskCreated   Kind = "taskCreated"
	TaskUpdated   Kind = "taskUpdated"
	TaskDeleted   Kind = "taskDeleted"
	TaskCompleted Kind = "taskCompleted"

	// JoinEvent is sent by the client right after connecting; its data is
	// the user id the server scopes broadcasts to.
	JoinEvent = "join"
)

// Kinds lists every event a handler can register for.
var Kinds = []Kind{TaskCreated, TaskUpdated, TaskDeleted, TaskCompleted}

// Frame is the JSON envelope used in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is a decoded push. ID is always set; Task is zero for deletes that
// only carried an id.
type Event struct {
	Kind Kind
	ID   string
	Task model.Task
}

// Handler receives events on the channel's reader goroutine.
type Handler func(Event)

type handlerEntry struct {
	id int
	fn Handler
}

// run is one connected period, from Connect to Disconnect.
type run struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	conn *websocket.Conn
}

func (r *run) setConn(ws *websocket.Conn) {
	r.mu.Lock()
	r.conn = ws
	r.mu.Unlock()
}

func (r *run) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		r.conn.Close()
	}
}

// Channel is safe for concurrent use.
type Channel struct {
	url     string
	origin  string
	logger  *zap.Logger
	limiter *rate.Limiter

	mu  sync.Mutex
	cur *run

	hmu      sync.RWMutex
	handlers map[Kind][]handlerEntry
	nextID   int
}

// Option tweaks a Channel.
type Option func(*Channel)

// WithReconnect redials a dropped connection, pacing attempts with l, and
// re-sends the join announcement. Without it a drop ends the run.
func WithReconnect(l *rate.Limiter) Option {
	return func(c *Channel) { c.limiter = l }
}

// New returns a disconnected Channel for url (ws:// or wss://). origin is
// sent in the handshake; the API base URL is a good value.
func New(url, origin string, logger *zap.Logger, opts ...Option) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Channel{
		url:      url,
		origin:   origin,
		logger:   logger,
		handlers: map[Kind][]handlerEntry{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// On registers h for kind. Handlers of one kind run in registration order.
// The returned func unregisters h; after it returns h is not called again
// by events dispatched later.
func (c *Channel) On(kind Kind, h Handler) (unsubscribe func()) {
	c.hmu.Lock()
	id := c.nextID
	c.nextID++
	c.handlers[kind] = append(c.handlers[kind], handlerEntry{id: id, fn: h})
	c.hmu.Unlock()

	return func() {
		c.hmu.Lock()
		defer c.hmu.Unlock()
		hs := c.handlers[kind]
		for i, e := range hs {
			if e.id == id {
				c.handlers[kind] = append(hs[:i:i], hs[i+1:]...)
				return
			}
		}
	}
}

// Connect dials and announces userID. Calling it while connected is a no-op.
func (c *Channel) Connect(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("live: empty user id")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != nil && !isDone(c.cur.done) {
		return nil
	}

	ws, err := c.dial(ctx, userID)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{cancel: cancel, done: make(chan struct{}), conn: ws}
	c.cur = r
	go c.read(runCtx, r, userID)
	c.logger.Info("live channel connected", zap.String("url", c.url), zap.String("user_id", userID))
	return nil
}

// Connected reports whether a run is active.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur != nil && !isDone(c.cur.done)
}

// Disconnect tears the connection down and waits for the reader to exit.
// It is safe to call when not connected.
func (c *Channel) Disconnect() error {
	c.mu.Lock()
	r := c.cur
	c.cur = nil
	c.mu.Unlock()
	if r == nil {
		return nil
	}
	r.cancel()
	r.close()
	<-r.done
	c.logger.Info("live channel disconnected")
	return nil
}

// Done is closed when the current run ends, either by Disconnect or by a
// drop without reconnection. It returns nil when not connected.
func (c *Channel) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return nil
	}
	return c.cur.done
}

func (c *Channel) dial(ctx context.Context, userID string) (*websocket.Conn, error) {
	cfg, err := websocket.NewConfig(c.url, c.origin)
	if err != nil {
		return nil, fmt.Errorf("live: config: %w", err)
	}
	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("live: dial %s: %w", c.url, err)
	}
	data, _ := json.Marshal(userID)
	if err := websocket.JSON.Send(ws, Frame{Event: JoinEvent, Data: data}); err != nil {
		ws.Close()
		return nil, fmt.Errorf("live: join: %w", err)
	}
	return ws, nil
}

func (c *Channel) read(ctx context.Context, r *run, userID string) {
	defer close(r.done)

	r.mu.Lock()
	ws := r.conn
	r.mu.Unlock()

	for {
		var f Frame
		err := websocket.JSON.Receive(ws, &f)
		if err == nil {
			c.dispatch(f)
			continue
		}
		if ctx.Err() != nil {
			return
		}
		ws.Close()
		if c.limiter == nil {
			c.logger.Warn("live channel dropped", zap.Error(err))
			return
		}
		c.logger.Warn("live channel dropped, reconnecting", zap.Error(err))
		ws = c.redial(ctx, r, userID)
		if ws == nil {
			return
		}
	}
}

// redial loops until a connection is back or ctx is done.
func (c *Channel) redial(ctx context.Context, r *run, userID string) *websocket.Conn {
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil
		}
		ws, err := c.dial(ctx, userID)
		if err != nil {
			c.logger.Debug("live redial failed", zap.Error(err))
			continue
		}
		r.setConn(ws)
		if ctx.Err() != nil {
			ws.Close()
			return nil
		}
		c.logger.Info("live channel reconnected", zap.String("user_id", userID))
		return ws
	}
}

func (c *Channel) dispatch(f Frame) {
	kind := Kind(f.Event)
	ev, err := decodeEvent(kind, f.Data)
	if err != nil {
		c.logger.Warn("live event dropped", zap.String("event", f.Event), zap.Error(err))
		return
	}

	c.hmu.RLock()
	hs := make([]handlerEntry, len(c.handlers[kind]))
	copy(hs, c.handlers[kind])
	c.hmu.RUnlock()

	for _, h := range hs {
		h.fn(ev)
	}
}

func decodeEvent(kind Kind, data json.RawMessage) (Event, error) {
	ev := Event{Kind: kind}
	switch kind {
	case TaskCreated, TaskUpdated, TaskCompleted:
		if err := json.Unmarshal(data, &ev.Task); err != nil {
			return ev, fmt.Errorf("decode task: %w", err)
		}
		ev.ID = ev.Task.ID
	case TaskDeleted:
		var id string
		if json.Unmarshal(data, &id) == nil {
			ev.ID = id
			break
		}
		if err := json.Unmarshal(data, &ev.Task); err != nil {
			return ev, fmt.Errorf("decode id: %w", err)
		}
		ev.ID = ev.Task.ID
	default:
		return ev, errors.New("unknown event")
	}
	if ev.ID == "" {
		return ev, errors.New("missing id")
	}
	return ev, nil
}

func isDone(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
