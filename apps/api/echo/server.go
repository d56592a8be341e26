package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/presensi/core"
	"github.com/trezcool/presensi/core/attendance"
	"github.com/trezcool/presensi/core/class"
	"github.com/trezcool/presensi/core/recap"
	"github.com/trezcool/presensi/core/roster"
	"github.com/trezcool/presensi/services/metrics"
)

type ServerDeps struct {
	Conf       *core.Config
	Logger     core.Logger
	Translator ut.Translator
	Metrics    *metrics.Metrics

	Roster     *roster.Service
	Classes    *class.Service
	Attendance *attendance.Service
	Recap      *recap.Service
}

type Server struct {
	deps     ServerDeps
	app      *echo.Echo
	errors   chan error
	shutdown chan os.Signal
}

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Debug = conf.Debug
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)

	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(metricsMiddleware(s.deps.Metrics))
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.GET("/", s.home)
	s.app.GET("/metrics", echo.WrapHandler(s.deps.Metrics.Handler()))

	v1 := s.app.Group("/v1", middleware.JWTWithConfig(newJWTConfig(conf)))

	registerStudentAPI(v1, s.deps.Roster, s.deps.Metrics)
	registerRombelAPI(v1, s.deps.Roster, s.deps.Attendance, s.deps.Recap, s.deps.Metrics)
	registerClassAPI(v1, s.deps.Classes, s.deps.Attendance, s.deps.Recap, s.deps.Metrics)
	registerAdminAPI(v1, s.deps.Roster, s.deps.Metrics)
}

// Start blocks until the server stops. Errors are sent to Errors().
func (s *Server) Start() {
	s.deps.Logger.Info("API listening on " + s.deps.Conf.Server.Address)
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already signalled
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
