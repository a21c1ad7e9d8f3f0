package cli

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/idilsaglam/tasks/internal/api"
	"github.com/idilsaglam/tasks/internal/config"
	"github.com/idilsaglam/tasks/internal/dashboard"
	"github.com/idilsaglam/tasks/internal/live"
	"github.com/idilsaglam/tasks/internal/logging"
	"github.com/idilsaglam/tasks/internal/session"
	"github.com/idilsaglam/tasks/internal/store/taskstore"
	"github.com/idilsaglam/tasks/internal/ui"
)

// app is everything a command needs, built once per invocation.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	sessions *session.Store
	client   *api.Client
	channel  *live.Channel
	dash     *dashboard.Dashboard
}

// config loads settings and applies the theme; commands that never talk to
// the service stop here.
func (o *rootOptions) config() (*config.Config, error) {
	cfg, err := config.Load(o.dir)
	if err != nil {
		return nil, err
	}
	if o.theme != "" {
		cfg.Theme = o.theme
	}
	ui.SetTheme(cfg.Theme)
	return cfg, nil
}

func (o *rootOptions) load() (*app, error) {
	if o.app != nil {
		return o.app, nil
	}
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.LogFile, cfg.LogLevel, o.verbose)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}
	a.sessions = session.NewStore(cfg.Dir, log.Named("session"))
	a.client = api.NewClient(cfg.APIURL, a.sessions, log.Named("api"),
		api.WithAuthHeader(cfg.AuthHeader),
		api.WithTimeout(cfg.Timeout),
	)
	var liveOpts []live.Option
	if cfg.Reconnect {
		liveOpts = append(liveOpts, live.WithReconnect(rate.NewLimiter(rate.Every(cfg.ReconnectInterval), 1)))
	}
	a.channel = live.New(cfg.LiveURL, cfg.Origin(), log.Named("live"), liveOpts...)
	a.dash = dashboard.New(a.sessions, a.client, a.channel, taskstore.New(), log.Named("dashboard"),
		dashboard.WithNotifier(printNotice))

	log.Debug("client ready", zap.String("api", cfg.APIURL), zap.String("live", cfg.LiveURL))
	o.app = a
	return a, nil
}

func (o *rootOptions) close() {
	if o.app == nil {
		return
	}
	o.app.dash.StopLive()
	_ = o.app.log.Sync()
	o.app = nil
}

// printNotice is the CLI notification sink.
func printNotice(n dashboard.Notification) {
	switch n.Level {
	case dashboard.LevelSuccess:
		ui.OK(n.Message)
	case dashboard.LevelWarn:
		ui.Warn(n.Message)
	case dashboard.LevelError:
		ui.Fail(n.Message)
	default:
		fmt.Fprintln(ui.Stdout, ui.Current().Muted.Render(n.Message))
	}
	if f := ui.Fields(n.Fields); f != "" {
		fmt.Fprintln(ui.Stderr, f)
	}
}

// requireSession fails with a usage error when nobody is logged in.
func (a *app) requireSession() (*session.Session, error) {
	sess, err := a.sessions.Get()
	if err != nil {
		return nil, err
	}
	if !sess.Authenticated() {
		return nil, usageErr("not logged in. Set %s or run `tasks login`", session.EnvToken)
	}
	return sess, nil
}
