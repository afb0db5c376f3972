// Package http provides the HTTP servers of the gateway: the main server with
// the login endpoints and the separate Prometheus metrics server.
package http

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	loginhttp "github.com/allisson/gridgate/internal/login/http"
)

// RouterConfig carries the handlers and cross-cutting options the main router
// needs. The DI container fills it from application config.
type RouterConfig struct {
	LoginHandler *loginhttp.LoginHandler

	// MetricsMiddleware records per-request metrics when metrics are
	// enabled. Nil skips it.
	MetricsMiddleware gin.HandlerFunc

	CORSEnabled      bool
	CORSAllowOrigins string

	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int
}

// Server is the main HTTP server.
type Server struct {
	db     *sql.DB
	router *gin.Engine
	server *http.Server
	logger *slog.Logger
}

// NewServer creates the main HTTP server. Call SetupRouter before Start to
// register the application routes.
func NewServer(db *sql.DB, host string, port int, logger *slog.Logger) *Server {
	return &Server{
		db:     db,
		logger: logger,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// SetupRouter builds the gin engine with the shared middleware chain and the
// login routes.
func (s *Server) SetupRouter(cfg RouterConfig) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if cfg.MetricsMiddleware != nil {
		router.Use(cfg.MetricsMiddleware)
	}

	if corsMiddleware := createCORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowOrigins, s.logger); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	login := router.Group("/login")
	if cfg.RateLimitEnabled {
		login.Use(loginhttp.LoginRateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst, s.logger))
	}
	login.POST("", cfg.LoginHandler.StartHandler)
	login.GET("/oauth_callback", cfg.LoginHandler.CallbackHandler)
	login.POST("/:session_id", cfg.LoginHandler.ClaimHandler)

	s.router = router
}

// healthHandler reports process liveness.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports whether the server can take traffic. The database
// is the only hard dependency; remote identity providers are contacted per
// login and do not gate readiness.
func (s *Server) readinessHandler(c *gin.Context) {
	components := gin.H{}
	ready := true

	if s.db == nil {
		components["database"] = "error"
		ready = false
	} else if err := s.db.PingContext(c.Request.Context()); err != nil {
		s.logger.Warn("readiness database ping failed", slog.Any("error", err))
		components["database"] = "error"
		ready = false
	} else {
		components["database"] = "ok"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "components": components})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready", "components": components})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start(ctx context.Context) error {
	if s.router != nil {
		s.server.Handler = s.router
	}

	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}
