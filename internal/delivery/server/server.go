// Package server exposes the reminder engine over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"nudge/internal/app/scheduler"
	"nudge/internal/domain/reminder"
	"nudge/internal/shared/logging"
)

// Service is the slice of the engine the API needs.
type Service interface {
	CreateReminder(ctx context.Context, userID, content, timeInput, agentID string) (scheduler.CreateResult, error)
	GetReminders(userID string) ([]reminder.Reminder, error)
	CancelReminder(userID, reminderID string) error
	CancelReminderByContent(userID, query string) (reminder.Reminder, error)
	GetSettings(userID string) (reminder.Settings, error)
	UpdateSettings(userID string, patch reminder.SettingsPatch) (reminder.Settings, error)
	RegisterUser(userID string) error
	UnregisterUser(userID string)
	IsRegistered(userID string) bool
	ParseTimeIn(input, tz string) reminder.ParsedTime
}

// RequestRecorder receives per-request metrics.
type RequestRecorder interface {
	RecordHTTPServerRequest(method, route string, status int, duration time.Duration)
}

// Config configures the HTTP server.
type Config struct {
	Addr           string
	AllowedOrigins []string
	Debug          bool
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Server serves the reminder API.
type Server struct {
	cfg        Config
	svc        Service
	logger     logging.Logger
	recorder   RequestRecorder
	metrics    http.Handler
	engine     *gin.Engine
	httpServer *http.Server
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) { s.logger = logging.OrNop(logger) }
}

// WithMetrics mounts handler at /metrics and records requests on recorder.
// Either may be nil.
func WithMetrics(handler http.Handler, recorder RequestRecorder) Option {
	return func(s *Server) {
		s.metrics = handler
		s.recorder = recorder
	}
}

// New builds the router. Call ListenAndServe to accept connections.
func New(cfg Config, svc Service, opts ...Option) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	s := &Server{cfg: cfg, svc: svc, logger: logging.Nop()}
	for _, opt := range opts {
		opt(s)
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), requestIDMiddleware(), loggingMiddleware(s.logger))
	if s.recorder != nil {
		s.engine.Use(metricsMiddleware(s.recorder))
	}
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", requestIDHeader}
		s.engine.Use(cors.New(corsConfig))
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics))
	}

	api := s.engine.Group("/api/v1")
	api.Use(jsonContentType())
	api.GET("/parse", s.handleParse)

	users := api.Group("/users/:user_id")
	users.GET("/reminders", s.handleListReminders)
	users.POST("/reminders", s.handleCreateReminder)
	users.POST("/reminders/cancel", s.handleCancelByContent)
	users.DELETE("/reminders/:reminder_id", s.handleCancelReminder)
	users.GET("/settings", s.handleGetSettings)
	users.PUT("/settings", s.handleUpdateSettings)
	users.GET("/registration", s.handleGetRegistration)
	users.POST("/registration", s.handleRegister)
	users.DELETE("/registration", s.handleUnregister)
}

// ListenAndServe blocks until ctx is cancelled or the listener fails, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP: listening on %s", s.cfg.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info("HTTP: server stopped")
	return nil
}
