package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/eske/multivec-go/multivec"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// modelIDHeader is the header nginx uses to forward the consistent-hash
// routing key when models are pinned to instances.
const modelIDHeader = "X-Model-ID"

// modelIDContextKey is the echo context key for the resolved model id.
const modelIDContextKey = "model_id"

// ModelProvider resolves models for the query API. *multivec.ModelCatalog
// satisfies it.
type ModelProvider interface {
	Get(ctx context.Context, id string) (*multivec.Model, error)
	IDs() []string
}

type AppConfig struct {
	Address           string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	Logger            *slog.Logger
}

func DefaultAppConfig() AppConfig {
	return AppConfig{
		Address:           "127.0.0.1:8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		Logger:            slog.Default(),
	}
}

type App struct {
	models  ModelProvider
	echo    *echo.Echo
	config  AppConfig
	logger  *slog.Logger
	metrics multivec.AppMetrics

	mu       sync.Mutex
	listener net.Listener
	errCh    chan error
	started  bool
}

func NewApp(models ModelProvider, cfg AppConfig) *App {
	cfg = mergeWithDefaultAppConfig(cfg)
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := multivec.AppMetrics(multivec.NoopAppMetrics{})
	if m := multivec.NewInMemAppMetrics(); m != nil {
		metrics = m
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(requestLoggerMiddleware(logger, metrics))
	e.Use(modelIDMiddleware())

	app := &App{
		models:  models,
		echo:    e,
		config:  cfg,
		logger:  logger,
		metrics: metrics,
		errCh:   make(chan error, 1),
	}
	app.registerRoutes()
	return app
}

// modelIDMiddleware extracts the X-Model-ID header set by nginx
// consistent-hash routing and stores it in the echo context for
// observability. the value is also echoed back in the response header for
// debugging.
func modelIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := strings.TrimSpace(c.Request().Header.Get(modelIDHeader))
			if id != "" {
				c.Set(modelIDContextKey, id)
				c.Response().Header().Set(modelIDHeader, id)
			}
			return next(c)
		}
	}
}

func mergeWithDefaultAppConfig(cfg AppConfig) AppConfig {
	d := DefaultAppConfig()
	if cfg.Address != "" {
		d.Address = cfg.Address
	}
	if cfg.ReadHeaderTimeout > 0 {
		d.ReadHeaderTimeout = cfg.ReadHeaderTimeout
	}
	if cfg.ShutdownTimeout > 0 {
		d.ShutdownTimeout = cfg.ShutdownTimeout
	}
	if cfg.Logger != nil {
		d.Logger = cfg.Logger
	}
	return d
}

func requestLoggerMiddleware(logger *slog.Logger, metrics multivec.AppMetrics) echo.MiddlewareFunc {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = multivec.NoopAppMetrics{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			if status == 0 {
				status = http.StatusOK
			}
			latencyMS := time.Since(start).Milliseconds()
			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			metrics.RecordRequest(c.Request().Method, path, status, latencyMS)
			attrs := []any{
				"method", c.Request().Method,
				"path", path,
				"status", status,
				"latency_ms", latencyMS,
				"remote_ip", c.RealIP(),
			}

			switch {
			case status >= http.StatusInternalServerError:
				logger.ErrorContext(c.Request().Context(), "http request", attrs...)
			case status >= http.StatusBadRequest:
				logger.WarnContext(c.Request().Context(), "http request", attrs...)
			default:
				logger.InfoContext(c.Request().Context(), "http request", attrs...)
			}
			return nil
		}
	}
}

func (a *App) registerRoutes() {
	deps := Dependencies{
		GetModel: func(ctx context.Context, id string) (*multivec.Model, error) {
			if a.models == nil {
				return nil, fmt.Errorf("models unavailable")
			}
			return a.models.Get(ctx, id)
		},
		ListModels: func() []string {
			if a.models == nil {
				return nil
			}
			return a.models.IDs()
		},
		Logger:     a.logger,
		AppMetrics: a.metrics,
	}
	Register(a.echo, deps)
	RegisterUI(a.echo)
}

func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return fmt.Errorf("app already started")
	}

	ln, err := net.Listen("tcp", a.config.Address)
	if err != nil {
		return err
	}
	a.listener = ln
	a.started = true

	srv := &http.Server{Handler: a.echo, ReadHeaderTimeout: a.config.ReadHeaderTimeout}
	a.echo.Server = srv

	go func() {
		err := a.echo.Server.Serve(ln)
		if err == http.ErrServerClosed {
			err = nil
		}
		a.errCh <- err
	}()

	return nil
}

func (a *App) Address() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	addr := a.listener.Addr().String()
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	host = strings.TrimSpace(host)
	if host == "" || host == "::" || host == "0.0.0.0" || host == "[::]" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

func (a *App) Wait() error {
	return <-a.errCh
}

func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	started := a.started
	a.started = false
	a.mu.Unlock()

	if !started {
		return nil
	}

	if ctx == nil {
		c, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
		defer cancel()
		ctx = c
	}

	if err := a.echo.Shutdown(ctx); err != nil {
		return err
	}
	return nil
}
