// Package http serves the escrowd JSON API over echo.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/escrowd/internal/logging"
	"github.com/fyrsmithlabs/escrowd/internal/task"
	"github.com/fyrsmithlabs/escrowd/pkg/auth"
)

// TaskService is the task lifecycle the API exposes.
type TaskService interface {
	CreateTask(ctx context.Context, req task.CreateRequest) (*task.Task, error)
	SubmitAllocation(ctx context.Context, req task.SubmitRequest) error
	Claim(ctx context.Context, req task.ClaimRequest) (*task.ClaimResult, error)
	Initialize(ctx context.Context) (*task.GlobalConfig, error)
	GlobalConfig(ctx context.Context) (*task.GlobalConfig, error)
	GetTask(ctx context.Context, name string) (*task.Task, error)
	ListTasks(ctx context.Context) ([]*task.Task, error)
}

// BalanceReader reads ledger balances.
type BalanceReader interface {
	Balance(ctx context.Context, id auth.Identity) (uint64, error)
}

// HealthCheck reports a dependency problem as a non-nil error.
type HealthCheck func(ctx context.Context) error

// Server provides HTTP endpoints for escrowd.
type Server struct {
	echo     *echo.Echo
	tasks    TaskService
	balances BalanceReader
	logger   *zap.Logger
	config   *Config
	checks   map[string]HealthCheck
}

// Config holds HTTP server configuration.
type Config struct {
	Host         string
	Port         int
	CallerHeader string
	BodyLimit    string
	RateLimit    RateLimitConfig

	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Meter receives request instruments. Nil uses the global meter.
	Meter metric.Meter
}

// RateLimitConfig bounds per-client request rate.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
	ExpiresIn         time.Duration
}

// DefaultConfig returns a local-only config with rate limiting on.
func DefaultConfig() *Config {
	return &Config{
		Host:         "127.0.0.1",
		Port:         8480,
		CallerHeader: auth.DefaultCallerHeader,
		BodyLimit:    "64K",
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 20,
			Burst:             40,
			ExpiresIn:         3 * time.Minute,
		},
	}
}

// Option configures a Server.
type Option func(*Server)

// WithHealthCheck adds a named check to GET /health.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

// NewServer creates a new HTTP server.
func NewServer(tasks TaskService, balances BalanceReader, logger *zap.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if tasks == nil {
		return nil, fmt.Errorf("task service cannot be nil")
	}
	if balances == nil {
		return nil, fmt.Errorf("balance reader cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		tasks:    tasks,
		balances: balances,
		logger:   logger.Named("http"),
		config:   cfg,
		checks:   make(map[string]HealthCheck),
	}
	for _, opt := range opts {
		opt(s)
	}

	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.RequestID())
	e.Use(s.requestLogger)
	e.Use(NewHTTPMetrics(cfg.Meter, s.logger).MetricsMiddleware())
	e.Use(middleware.Recover())
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}
	if cfg.RateLimit.Enabled {
		e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(cfg.RateLimit.RequestsPerSecond),
				Burst:     cfg.RateLimit.Burst,
				ExpiresIn: cfg.RateLimit.ExpiresIn,
			}),
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/health" || c.Path() == "/metrics"
			},
		}))
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.config.Gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.echo.Group("/api/v1", auth.CallerMiddleware(s.config.CallerHeader))

	v1.POST("/admin/initialize", s.handleInitialize)
	v1.GET("/admin/config", s.handleGlobalConfig)

	v1.POST("/tasks", s.handleCreateTask)
	v1.GET("/tasks", s.handleListTasks)
	v1.GET("/tasks/:name", s.handleGetTask)
	v1.POST("/tasks/:name/allocation", s.handleSubmitAllocation)
	v1.POST("/tasks/:name/claim", s.handleClaim)

	v1.GET("/accounts/:id/balance", s.handleBalance)
}

// requestLogger tags the request context with its ID and logs the outcome.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		requestID := c.Response().Header().Get(echo.HeaderXRequestID)
		req := c.Request()
		c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), requestID)))

		if err := next(c); err != nil {
			c.Error(err)
		}

		fields := append(logging.ContextFields(c.Request().Context()),
			zap.String("method", req.Method),
			zap.String("uri", req.RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		if c.Response().Status >= http.StatusInternalServerError {
			s.logger.Error("http request", fields...)
		} else {
			s.logger.Info("http request", fields...)
		}
		return nil
	}
}

// handleHealth runs every registered check.
func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	if len(s.checks) > 0 {
		names := make([]string, 0, len(s.checks))
		for name := range s.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		resp.Checks = make(map[string]string, len(names))
		for _, name := range names {
			if err := s.checks[name](c.Request().Context()); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, resp)
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start serves until Shutdown, after which it returns nil.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
