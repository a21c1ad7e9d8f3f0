package dashboard

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/idilsaglam/tasks/internal/api"
	"github.com/idilsaglam/tasks/internal/session"
)

// Level ranks a notification.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notification is a transient, user-visible message. Fields carries
// per-field validation messages for inline display.
type Notification struct {
	Level   Level
	Message string
	Fields  map[string]string
	Err     error
}

// SetNotifier replaces the notification sink, e.g. once a view that
// consumes them is running. nil drops notifications.
func (d *Dashboard) SetNotifier(fn func(Notification)) {
	if fn == nil {
		fn = func(Notification) {}
	}
	d.mu.Lock()
	d.notify = fn
	d.mu.Unlock()
}

func (d *Dashboard) emit(n Notification) {
	d.mu.Lock()
	fn := d.notify
	d.mu.Unlock()
	fn(n)
}

// fail converts err into a notification. authed marks calls made with the
// session token: an AuthError there means the session is no longer valid,
// so it is cleared.
func (d *Dashboard) fail(err error, fallback string, authed bool) {
	n := Notification{Level: LevelError, Message: fallback, Err: err}

	var (
		ve *api.ValidationError
		ae *api.AuthError
		ne *api.NetworkError
		se *api.ServerError
	)
	switch {
	case errors.As(err, &ve):
		n.Level = LevelWarn
		n.Fields = ve.Fields
		switch {
		case ve.Message != "":
			n.Message = ve.Message
		case ve.Status == 0:
			// nothing was sent; only the fields are wrong
			n.Message = "Please correct the fields below"
		}
	case errors.As(err, &ae):
		if authed {
			n.Message = "Session expired, please log in again"
			if s := d.Session(); s != nil && s.Source == session.SourceEnv {
				n.Message += fmt.Sprintf(" (unset %s)", session.EnvToken)
			}
			d.invalidateSession()
		}
	case errors.As(err, &ne):
		n.Message = "Network error: could not reach the server"
		if ne.Timeout() {
			n.Message = "Network error: the server took too long to answer"
		}
	case errors.As(err, &se):
		n.Message = fallback + " (server error)"
	}

	d.logger.Warn("operation failed", zap.String("message", n.Message), zap.Error(err))
	d.emit(n)
}

func (d *Dashboard) invalidateSession() {
	d.StopLive()
	d.store.ReplaceAll(nil)
	if err := d.sessions.Clear(); err != nil {
		d.logger.Warn("clear session after auth failure", zap.Error(err))
	}
	d.logger.Info("session invalidated by server")
}
