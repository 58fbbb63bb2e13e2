// Package http serves an instrumented wasm module over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tetratelabs/wazero/api"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/wasmobs/internal/exporter"
	"github.com/fyrsmithlabs/wasmobs/internal/instrument"
	"github.com/fyrsmithlabs/wasmobs/internal/logging"
)

// Pipeline reports the state of the span pipeline behind the server.
type Pipeline interface {
	State() exporter.State
	Exported() int64
	Pending() int
	QueueLen() int
	RuntimeID() uuid.UUID
}

// Functions is the module the server invokes.
type Functions interface {
	ExportedFunction(name string) api.Function
	Exports() []string
	Names() []string
}

// Server provides HTTP endpoints for one instrumented module.
type Server struct {
	echo      *echo.Echo
	pipeline  Pipeline
	functions Functions
	logger    *logging.Logger
	config    *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// Module names the served module in request logs.
	Module string
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	meter metric.Meter
}

// WithMeter records HTTP metrics on meter instead of the global one.
func WithMeter(meter metric.Meter) Option {
	return func(o *serverOptions) {
		o.meter = meter
	}
}

// NewServer creates a new HTTP server.
func NewServer(pipeline Pipeline, functions Functions, logger *logging.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if pipeline == nil {
		return nil, errors.New("pipeline cannot be nil")
	}
	if functions == nil {
		return nil, errors.New("functions cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "127.0.0.1",
			Port: 9464,
		}
	}

	o := &serverOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.meter == nil {
		o.meter = otel.Meter(httpInstrumentationName)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			ctx := logging.WithRequestID(c.Request().Context(), c.Response().Header().Get(echo.HeaderXRequestID))
			ctx = logging.WithModule(ctx, cfg.Module)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	})
	e.Use(newHTTPMetrics(o.meter, logger.Underlying()).MetricsMiddleware())

	s := &Server{
		echo:      e,
		pipeline:  pipeline,
		functions: functions,
		logger:    logger,
		config:    cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/v1")
	v1.GET("/functions", s.handleFunctions)
	v1.POST("/functions/:name/invoke", s.handleInvoke)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Exporter  string `json:"exporter"`
	RuntimeID string `json:"runtime_id"`
	Exported  int64  `json:"exported"`
	Pending   int    `json:"pending"`
	Queued    int    `json:"queued"`
}

// FunctionInfo describes one callable export.
type FunctionInfo struct {
	Name         string `json:"name"`
	Signature    string `json:"signature"`
	Instrumented bool   `json:"instrumented"`
}

// FunctionsResponse is the response body for GET /v1/functions.
type FunctionsResponse struct {
	Functions []FunctionInfo `json:"functions"`
}

// InvokeRequest is the request body for POST /v1/functions/:name/invoke.
// Arguments are text, parsed according to the function's parameter types.
type InvokeRequest struct {
	Args []string `json:"args"`
}

// InvokeResponse is the response body for POST /v1/functions/:name/invoke.
type InvokeResponse struct {
	Function   string  `json:"function"`
	Results    []any   `json:"results,omitempty"`
	Error      string  `json:"error,omitempty"`
	DurationMs float64 `json:"duration_ms"`
}

// handleHealth reports ok while the exporter accepts spans: Ready until the
// first receive, Draining for the rest of a normal run.
func (s *Server) handleHealth(c echo.Context) error {
	state := s.pipeline.State()
	resp := HealthResponse{
		Status:    "ok",
		Exporter:  state.String(),
		RuntimeID: s.pipeline.RuntimeID().String(),
		Exported:  s.pipeline.Exported(),
		Pending:   s.pipeline.Pending(),
		Queued:    s.pipeline.QueueLen(),
	}
	if state != exporter.StateReady && state != exporter.StateDraining {
		resp.Status = "degraded"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleFunctions(c echo.Context) error {
	instrumented := s.functions.Names()
	resp := FunctionsResponse{Functions: []FunctionInfo{}}
	for _, name := range s.functions.Exports() {
		fn := s.functions.ExportedFunction(name)
		if fn == nil {
			continue
		}
		resp.Functions = append(resp.Functions, FunctionInfo{
			Name:         name,
			Signature:    instrument.Signature(fn.Definition()),
			Instrumented: slices.Contains(instrumented, name),
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// handleInvoke calls an export. A guest trap is reported in the body with
// status 422; the call's span records it as failed.
func (s *Server) handleInvoke(c echo.Context) error {
	name := c.Param("name")
	fn := s.functions.ExportedFunction(name)
	if fn == nil {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("function %q is not exported", name))
	}

	var req InvokeRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid invoke request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	def := fn.Definition()
	params, err := instrument.EncodeParams(def, req.Args)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	start := time.Now()
	results, err := fn.Call(ctx, params...)
	elapsed := time.Since(start)

	resp := InvokeResponse{
		Function:   name,
		DurationMs: float64(elapsed.Microseconds()) / 1000,
	}
	if err != nil {
		s.logger.Warn(ctx, "function call failed", zap.String("function", name), zap.Error(err))
		resp.Error = err.Error()
		return c.JSON(http.StatusUnprocessableEntity, resp)
	}

	s.logger.Debug(ctx, "function called",
		zap.String("function", name),
		zap.Duration("duration", elapsed),
	)
	resp.Results = instrument.DecodeResults(def, results)
	return c.JSON(http.StatusOK, resp)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server. It returns nil once Shutdown has been called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
