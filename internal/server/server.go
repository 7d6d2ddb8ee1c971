package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brunosaraiva/zapinsight/internal/config"
	"github.com/brunosaraiva/zapinsight/internal/database"
)

// Server wraps the echo instance and its lifecycle.
type Server struct {
	echo   *echo.Echo
	store  database.Store
	port   int
	logger *slog.Logger
}

type structValidator struct {
	validate *validator.Validate
}

func (v *structValidator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// New builds the HTTP server and mounts all routes.
func New(
	cfg config.ServerConfig,
	store database.Store,
	webhook *WebhookController,
	dashboard *DashboardController,
	logger *slog.Logger,
) *Server {
	log := logger.With("component", "server")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &structValidator{validate: validator.New()}
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	e.Use(metricsMiddleware())
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Error("Panic recovered in handler",
				"path", c.Request().RequestURI, "error", err, "stack", string(stack))
			return nil
		},
	}))
	e.Use(requestLogMiddleware(log))

	s := &Server{
		echo:   e,
		store:  store,
		port:   cfg.Port,
		logger: log,
	}

	e.GET("/health", s.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.POST("/webhook/whatsapp", webhook.Handle)

	api := e.Group("/api")
	api.POST("/history/import", webhook.ImportHistory)

	a := api.Group("/analytics")
	a.GET("/dashboard/overview", dashboard.Overview)
	a.GET("/participants", dashboard.Participants)
	a.GET("/participants/:jid/profile", dashboard.ParticipantProfile)
	a.POST("/participants/:jid/analyze", dashboard.AnalyzeParticipant)
	a.GET("/sentiment/participant/:jid/progression", dashboard.SentimentProgression)
	a.GET("/relationships/graph", dashboard.RelationshipGraph)
	a.GET("/relationships/strongest", dashboard.StrongestRelationships)
	a.GET("/insights", dashboard.Insights)
	a.POST("/insights/generate", dashboard.GenerateInsights)
	a.GET("/alerts", dashboard.Alerts)
	a.POST("/alerts/:id/read", dashboard.MarkAlertRead)
	a.GET("/conversations", dashboard.Conversations)
	a.GET("/conversations/:jid/messages", dashboard.ConversationMessages)

	return s
}

// Start runs the server until it fails or is shut down. Always
// returns a non-nil error; http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("HTTP server listening", "addr", addr)
	return s.echo.Start(addr)
}

// Shutdown drains connections and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	if err := s.store.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "zapinsight",
	})
}

// requestLogMiddleware logs one line per request, skipping the noisy
// health and metrics probes.
func requestLogMiddleware(log *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			uri := c.Request().RequestURI
			return uri == "/health" || uri == "/metrics"
		},
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
				log.Error("Request failed", attrs...)
				return nil
			}
			log.Info("Request handled", attrs...)
			return nil
		},
	})
}
