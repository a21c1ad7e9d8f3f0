package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/idilsaglam/tasks/internal/config"
	"github.com/idilsaglam/tasks/internal/logging"
	"github.com/idilsaglam/tasks/internal/mockapi"
	"github.com/idilsaglam/tasks/internal/ui"
)

func newMockServerCmd(o *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Run an in-memory task service for local development",
		Args:  exactArgs(0, "mock-server [--addr :5000]"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.config()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Mock.Addr = addr
			}
			// the server's log is its output, so it always goes to stderr
			log, err := logging.New("", "", true)
			if err != nil {
				return err
			}
			defer log.Sync()

			app := fx.New(
				fx.Supply(cfg, log),
				fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
					return &fxevent.ZapLogger{Logger: l.Named("fx")}
				}),
				mockapi.Module,
				fx.Invoke(mockapi.RegisterHooks),
			)
			return serve(cmd.Context(), app, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides mock.addr)")
	return cmd
}

// serve starts app, waits for ctx or a signal fx caught, then stops it.
func serve(ctx context.Context, app *fx.App, cfg *config.Config) error {
	startCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	ui.OK("mock backend on " + cfg.Mock.Addr + ", Ctrl-C to stop")

	select {
	case <-ctx.Done():
	case <-app.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return app.Stop(stopCtx)
}
