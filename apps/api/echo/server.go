package echoapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/trezcool/trafikkvakt/core"
	"github.com/trezcool/trafikkvakt/core/duty"
	"github.com/trezcool/trafikkvakt/core/events"
	"github.com/trezcool/trafikkvakt/core/notification"
	"github.com/trezcool/trafikkvakt/services/whatsapp"
)

type (
	Options struct {
		Conf      *core.Config
		Logger    core.Logger
		DutySvc   *duty.Service
		Broker    *events.Broker
		Scheduler *notification.Scheduler
		WhatsApp  *whatsappsvc.Client
		// Diagnostics describes the storage backend in /api/health.
		Diagnostics    func() map[string]interface{}
		SignalShutdown func()
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	if opts.SignalShutdown == nil {
		opts.SignalShutdown = func() {}
	}
	if opts.Diagnostics == nil {
		opts.Diagnostics = func() map[string]interface{} { return nil }
	}
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.opts.Conf
	validate, translator := core.NewValidator()

	s.app.HideBanner = true
	s.app.Logger.SetLevel(log.INFO)
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     conf.Server.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization, echo.HeaderXRequestedWith},
		AllowCredentials: true,
	}))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, translator, s.opts.SignalShutdown)
	s.app.Debug = conf.Debug

	api := s.app.Group("/api")
	admin := newAdminMiddleware(conf)

	registerAuthAPI(api, conf, validate)
	registerSystemAPI(api, conf, s.opts.DutySvc, s.opts.Broker, s.opts.Diagnostics)
	registerDutyAPI(api, s.opts.DutySvc, validate)
	registerWhatsAppAPI(api, admin, s.opts.WhatsApp, s.opts.Scheduler)
	registerNotificationAPI(api, admin, s.opts.Scheduler, s.opts.DutySvc)

	if conf.Server.StaticDir != "" {
		// single page app: unknown paths get index.html
		s.app.Use(middleware.StaticWithConfig(middleware.StaticConfig{
			Root:  conf.Server.StaticDir,
			HTML5: true,
			Skipper: func(ctx echo.Context) bool {
				return strings.HasPrefix(ctx.Request().URL.Path, "/api")
			},
		}))
	} else {
		s.app.GET("/", home)
	}
}

// Start serves until Stop is called.
func (s *server) Start() error {
	err := s.app.Start(s.opts.Conf.Server.Addr())
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Trafikkvakt API!")
}
