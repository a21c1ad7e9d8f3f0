package mockapi

import (
	"context"
	"errors"
	"net"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/idilsaglam/tasks/internal/config"
)

// Module provides the mock backend to an fx app.
var Module = fx.Options(
	fx.Provide(
		New,
		NewHTTP,
	),
)

type Params struct {
	fx.In

	Log    *zap.Logger
	Config *config.Config
}

// New builds a Server from configuration.
func New(p Params) *Server {
	return NewServer(p.Config.Mock.Secret, p.Config.Mock.TokenTTL, p.Log)
}

// HTTP is the listening side of the mock backend.
type HTTP struct {
	log    *zap.Logger
	server *http.Server
}

// NewHTTP wraps srv in an http.Server bound to the configured address.
func NewHTTP(p Params, srv *Server) *HTTP {
	return &HTTP{
		log: p.Log,
		server: &http.Server{
			Addr:    p.Config.Mock.Addr,
			Handler: srv.Handler(),
		},
	}
}

// RegisterHooks should be invoked by fx
func RegisterHooks(lc fx.Lifecycle, h *HTTP) {
	lc.Append(fx.Hook{
		OnStart: h.Start,
		OnStop:  h.server.Shutdown,
	})
}

// Start binds synchronously so address errors fail the app start, then
// serves in the background.
func (h *HTTP) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return err
	}
	h.log.Info("mock backend listening", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.log.Error("error shutting down server", zap.Error(err))
		}
	}()
	return nil
}
