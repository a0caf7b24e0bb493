package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"askrelay/internal/config"
	"askrelay/internal/metrics"
	"askrelay/internal/relay"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	writeTimeout        = 90 * time.Second
	idleTimeout         = 120 * time.Second

	askPath = "/ask"
	// netlifyAskPath is where the Netlify-hosted chat page posts prompts.
	netlifyAskPath = "/.netlify/functions/ask-openrouter"
)

type Server struct {
	cfg      config.Config
	relay    *relay.Relay
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	app      *echo.Echo
	address  string
}

// New constructs an HTTP server wired with routing and middleware. m and
// gatherer may be nil, in which case no metrics are recorded or exposed.
func New(cfg config.Config, rl *relay.Relay, m *metrics.Metrics, gatherer prometheus.Gatherer) (*Server, error) {
	if rl == nil {
		return nil, errors.New("relay must not be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = jsonErrorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogRequestID: true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"request_id", v.RequestID,
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))
	e.Use(corsHeaders(askPath, netlifyAskPath))

	srv := &Server{
		cfg:      cfg,
		relay:    rl,
		metrics:  m,
		gatherer: gatherer,
		app:      e,
		address:  fmt.Sprintf(":%d", cfg.Server.Port),
	}

	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the configured echo instance, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	printStartupBanner(s.cfg.Server.Port, s.relay.Model())
	slog.Info("starting server", "addr", s.address, "model", s.relay.Model())
	if err := s.relay.CheckConfig(); err != nil {
		slog.Warn("upstream credential missing; /ask will answer 500 until it is configured", "env", config.EnvAPIKey)
	}

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)
	s.app.Any(askPath, s.handleAsk)
	s.app.Any(netlifyAskPath, s.handleAsk)
	if s.gatherer != nil {
		s.app.GET(s.cfg.Server.MetricsPath, echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// corsHeaders sets the permissive cross-origin headers on every response for
// the given paths, including errors rendered by jsonErrorHandler.
func corsHeaders(paths ...string) echo.MiddlewareFunc {
	match := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		match[p] = struct{}{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := match[c.Request().URL.Path]; ok {
				h := c.Response().Header()
				h.Set(echo.HeaderAccessControlAllowOrigin, "*")
				h.Set(echo.HeaderAccessControlAllowHeaders, echo.HeaderContentType)
				h.Set(echo.HeaderAccessControlAllowMethods, "POST, OPTIONS")
			}
			return next(c)
		}
	}
}

func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}

func printStartupBanner(port int, model string) {
	host := "127.0.0.1"
	fmt.Println()
	fmt.Println("askrelay ready")
	fmt.Printf("Listening on http://%s:%d\n", host, port)
	fmt.Printf("Upstream model: %s\n", model)
	fmt.Println("Endpoints:")
	fmt.Println("  GET          /health")
	fmt.Println("  POST|OPTIONS /ask")
	fmt.Printf("Example:\n  curl http://%s:%d/ask -H 'Content-Type: application/json' -d '{\"prompt\":\"Hello\"}'\n\n", host, port)
}
