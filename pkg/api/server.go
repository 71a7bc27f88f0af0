package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"coalmine/pkg/api/middleware"
	"coalmine/pkg/coordination"
	"coalmine/pkg/models"
	"coalmine/pkg/storage"
)

// Server is a read-only HTTP view of the election marker and result log.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server

	claimer coordination.Claimer
	results storage.ResultLog
	logger  *zap.Logger
}

// Config holds API server configuration.
type Config struct {
	Addr    string
	Claimer coordination.Claimer
	Results storage.ResultLog
	Logger  *zap.Logger
}

// NewServer creates a new API server with all dependencies.
func NewServer(cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.TracingMiddleware("coalmine-api"))
	router.Use(middleware.MetricsMiddleware())
	router.Use(requestLogger(logger))

	s := &Server{
		router:  router,
		claimer: cfg.Claimer,
		results: cfg.Results,
		logger:  logger,
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("starting API server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/leader", s.getLeader)
		v1.GET("/results", s.listResults)
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// healthCheck reports whether the election backend answers.
func (s *Server) healthCheck(c *gin.Context) {
	_, err := s.claimer.Leader(c.Request.Context())
	if err != nil && !errors.Is(err, coordination.ErrNotClaimed) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "degraded",
			"error":     err.Error(),
			"timestamp": time.Now().UTC(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

// getLeader handles GET /api/v1/leader
func (s *Server) getLeader(c *gin.Context) {
	msg, err := s.claimer.Leader(c.Request.Context())
	switch {
	case errors.Is(err, coordination.ErrNotClaimed):
		c.JSON(http.StatusOK, gin.H{"claimed": false})
	case err != nil:
		s.logger.Error("failed to read election marker", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read election marker"})
	default:
		c.JSON(http.StatusOK, gin.H{"claimed": true, "message": msg})
	}
}

// listResults handles GET /api/v1/results
func (s *Server) listResults(c *gin.Context) {
	recs, err := s.results.Records(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to read result log", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read result log"})
		return
	}
	if recs == nil {
		recs = []models.Record{}
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(recs),
		"records": recs,
		"summary": models.Summarize(recs),
	})
}
