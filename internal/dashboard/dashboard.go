// Package dashboard wires the session, the API gateway, the live channel
// and the task store together. Views call it and render what it exposes;
// every remote failure is turned into a Notification here.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/idilsaglam/tasks/internal/api"
	"github.com/idilsaglam/tasks/internal/live"
	"github.com/idilsaglam/tasks/internal/model"
	"github.com/idilsaglam/tasks/internal/session"
	"github.com/idilsaglam/tasks/internal/store/taskstore"
)

// ErrNoUser means the session has a token but no cached user id, so the
// live channel cannot announce itself.
var ErrNoUser = errors.New("session has no cached user; log in again")

// Gateway is the subset of *api.Client the dashboard needs.
type Gateway interface {
	Register(ctx context.Context, username, email, password string) (*api.AuthResponse, error)
	Login(ctx context.Context, email, password string) (*api.AuthResponse, error)
	ListTasks(ctx context.Context) ([]model.Task, error)
	CreateTask(ctx context.Context, title string) (*model.Task, error)
	UpdateTask(ctx context.Context, id, title string, status model.Status) (*model.Task, error)
	CompleteTask(ctx context.Context, id string) (*model.Task, error)
	DeleteTask(ctx context.Context, id string) (string, error)
}

// Channel is the subset of *live.Channel the dashboard needs.
type Channel interface {
	Connect(ctx context.Context, userID string) error
	On(kind live.Kind, h live.Handler) (unsubscribe func())
	Disconnect() error
}

// Sessions is the subset of *session.Store the dashboard needs.
type Sessions interface {
	Get() (*session.Session, error)
	SaveSession(token string, user *model.User) error
	Clear() error
}

// Dashboard is safe for concurrent use.
type Dashboard struct {
	sessions Sessions
	gateway  Gateway
	channel  Channel
	store    *taskstore.Store
	logger   *zap.Logger
	notify   func(Notification)

	mu     sync.Mutex
	unsubs []func()
}

// Option tweaks a Dashboard.
type Option func(*Dashboard)

// WithNotifier sets where notifications go. The default drops them.
func WithNotifier(fn func(Notification)) Option {
	return func(d *Dashboard) { d.notify = fn }
}

// New returns a Dashboard. store may be nil, in which case a fresh one is
// created.
func New(sessions Sessions, gateway Gateway, channel Channel, store *taskstore.Store, logger *zap.Logger, opts ...Option) *Dashboard {
	if store == nil {
		store = taskstore.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dashboard{
		sessions: sessions,
		gateway:  gateway,
		channel:  channel,
		store:    store,
		logger:   logger,
		notify:   func(Notification) {},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Store exposes the reconciled task list for rendering.
func (d *Dashboard) Store() *taskstore.Store { return d.store }

// Tasks is an ordered snapshot of the reconciled list.
func (d *Dashboard) Tasks() []model.Task { return d.store.Tasks() }

// Counts is the pending/completed pair shown by the chart.
func (d *Dashboard) Counts() taskstore.Counts { return d.store.Counts() }

// Session returns the current session or nil.
func (d *Dashboard) Session() *session.Session {
	s, err := d.sessions.Get()
	if err != nil {
		d.logger.Warn("session unreadable", zap.Error(err))
		return nil
	}
	return s
}

// Authenticated reports whether a token is present.
func (d *Dashboard) Authenticated() bool { return d.Session().Authenticated() }

// Register creates an account and stores the returned session.
func (d *Dashboard) Register(ctx context.Context, username, email, password string) error {
	resp, err := d.gateway.Register(ctx, username, email, password)
	if err != nil {
		d.fail(err, "Registration failed", false)
		return err
	}
	if err := d.sessions.SaveSession(resp.Token, &resp.User); err != nil {
		d.fail(err, "Could not save session", false)
		return err
	}
	d.logger.Info("registered", zap.String("user_id", resp.User.ID))
	d.emit(Notification{Level: LevelSuccess, Message: "Registration successful!"})
	return nil
}

// Login authenticates and stores the returned session.
func (d *Dashboard) Login(ctx context.Context, email, password string) error {
	resp, err := d.gateway.Login(ctx, email, password)
	if err != nil {
		d.fail(err, "Invalid username or password", false)
		return err
	}
	if err := d.sessions.SaveSession(resp.Token, &resp.User); err != nil {
		d.fail(err, "Could not save session", false)
		return err
	}
	d.logger.Info("logged in", zap.String("user_id", resp.User.ID))
	d.emit(Notification{Level: LevelSuccess, Message: fmt.Sprintf("Welcome, %s", displayName(resp.User))})
	return nil
}

// Logout stops live updates, forgets the session and empties the store.
func (d *Dashboard) Logout() error {
	d.StopLive()
	d.store.ReplaceAll(nil)
	if err := d.sessions.Clear(); err != nil {
		d.fail(err, "Logout failed", false)
		return err
	}
	d.emit(Notification{Level: LevelSuccess, Message: "Logged out"})
	return nil
}

// Refresh replaces the store with the server's list. Live events applied
// while the request was in flight are kept.
func (d *Dashboard) Refresh(ctx context.Context) error {
	mark := d.store.Mark()
	tasks, err := d.gateway.ListTasks(ctx)
	if err != nil {
		d.fail(err, "Could not load tasks", true)
		return err
	}
	d.store.ReplaceSince(mark, tasks)
	return nil
}

// Create adds a pending task and applies the confirmed copy.
func (d *Dashboard) Create(ctx context.Context, title string) (*model.Task, error) {
	t, err := d.gateway.CreateTask(ctx, title)
	if err != nil {
		d.fail(err, "Could not create task", true)
		return nil, err
	}
	d.store.ApplyCreated(*t)
	d.emit(Notification{Level: LevelSuccess, Message: "Task created"})
	return t, nil
}

// Rename changes the title of task id, keeping its status.
func (d *Dashboard) Rename(ctx context.Context, id, title string) (*model.Task, error) {
	status := model.StatusPending
	if cur, ok := d.store.Get(id); ok {
		status = cur.Status
	}
	return d.Update(ctx, id, title, status)
}

// Update replaces title and status of task id.
func (d *Dashboard) Update(ctx context.Context, id, title string, status model.Status) (*model.Task, error) {
	t, err := d.gateway.UpdateTask(ctx, id, title, status)
	if err != nil {
		d.fail(err, "Could not update task", true)
		return nil, err
	}
	d.store.ApplyUpdated(*t)
	d.emit(Notification{Level: LevelSuccess, Message: "Task updated"})
	return t, nil
}

// Complete marks task id completed.
func (d *Dashboard) Complete(ctx context.Context, id string) (*model.Task, error) {
	t, err := d.gateway.CompleteTask(ctx, id)
	if err != nil {
		d.fail(err, "Could not complete task", true)
		return nil, err
	}
	d.store.ApplyCompleted(*t)
	d.emit(Notification{Level: LevelSuccess, Message: "Task completed"})
	return t, nil
}

// Delete removes task id.
func (d *Dashboard) Delete(ctx context.Context, id string) error {
	ack, err := d.gateway.DeleteTask(ctx, id)
	if err != nil {
		d.fail(err, "Could not delete task", true)
		return err
	}
	d.store.ApplyDeleted(ack)
	if ack != id {
		d.store.ApplyDeleted(id)
	}
	d.emit(Notification{Level: LevelSuccess, Message: "Task deleted"})
	return nil
}

// StartLive routes pushed events into the store and connects the channel
// for the session user. It is a no-op when already started.
func (d *Dashboard) StartLive(ctx context.Context) error {
	sess := d.Session()
	if !sess.Authenticated() {
		err := &api.AuthError{Message: "not logged in"}
		d.emit(Notification{Level: LevelError, Message: "Not logged in", Err: err})
		return err
	}
	if sess.User == nil || sess.User.ID == "" {
		d.emit(Notification{Level: LevelError, Message: ErrNoUser.Error(), Err: ErrNoUser})
		return ErrNoUser
	}

	d.mu.Lock()
	if d.unsubs == nil {
		d.unsubs = []func(){
			d.channel.On(live.TaskCreated, func(ev live.Event) { d.store.ApplyCreated(ev.Task) }),
			d.channel.On(live.TaskUpdated, func(ev live.Event) { d.store.ApplyUpdated(ev.Task) }),
			d.channel.On(live.TaskCompleted, func(ev live.Event) { d.store.ApplyCompleted(ev.Task) }),
			d.channel.On(live.TaskDeleted, func(ev live.Event) { d.store.ApplyDeleted(ev.ID) }),
		}
	}
	d.mu.Unlock()

	if err := d.channel.Connect(ctx, sess.User.ID); err != nil {
		d.fail(&api.NetworkError{Op: "live connect", Err: err}, "Live updates unavailable", false)
		return err
	}
	return nil
}

// StopLive unregisters the store handlers and disconnects. Safe to call
// repeatedly. It must not be called from a live event handler.
func (d *Dashboard) StopLive() {
	d.mu.Lock()
	unsubs := d.unsubs
	d.unsubs = nil
	d.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
	if err := d.channel.Disconnect(); err != nil {
		d.logger.Warn("live disconnect", zap.Error(err))
	}
}

func displayName(u model.User) string {
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}
