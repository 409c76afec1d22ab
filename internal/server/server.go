package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"afreeca-dl/internal/auth"
	"afreeca-dl/internal/monitor"
	"afreeca-dl/internal/ratelimit"
	"afreeca-dl/internal/registry"
	"afreeca-dl/pkg/models"
)

const (
	version         = "1.0.0"
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// Server represents the API server
type Server struct {
	config       *models.Config
	registry     *registry.Registry
	monitor      *monitor.Monitor
	authService  *auth.AuthService
	rateLimitMgr *ratelimit.Manager
	httpServer   *http.Server
	router       *gin.Engine
	cancel       context.CancelFunc
	logger       zerolog.Logger
}

// NewServer creates a new API server resolving URLs through reg
func NewServer(cfg *models.Config, reg *registry.Registry, mon *monitor.Monitor, logger zerolog.Logger) (*Server, error) {
	logger = logger.With().Str("component", "server").Logger()

	s := &Server{
		config:   cfg,
		registry: reg,
		monitor:  mon,
		logger:   logger,
	}

	if cfg.Auth.Enabled {
		authSvc, err := auth.NewAuthService(
			cfg.Auth.JWTSecret,
			cfg.Auth.AdminUser,
			cfg.Auth.AdminPassword,
			time.Duration(cfg.Auth.TokenExpiry)*time.Hour,
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("error creating auth service: %w", err)
		}
		s.authService = authSvc
	}

	s.rateLimitMgr = ratelimit.NewManager(ratelimit.Config{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		MaxConcurrent:     cfg.RateLimit.MaxConcurrent,
		WhitelistedIPs:    cfg.RateLimit.WhitelistedIPs,
	}, logger)

	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())
	s.router.Use(s.loggerMiddleware())
	s.router.Use(s.monitor.Middleware())
	s.router.Use(corsMiddleware())
	s.setupRoutes(s.router)

	return s, nil
}

// Handler returns the HTTP handler serving the API
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the API server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.monitor.Start()
	s.rateLimitMgr.Start(ctx)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.Server.WriteTimeout) * time.Second,
	}

	go func() {
		s.logger.Info().Str("address", s.httpServer.Addr).Msg("Starting API server")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal().Err(err).Msg("Error starting server")
		}
	}()

	return nil
}

// Stop stops the API server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.cancel()
	s.monitor.Stop()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down server")
		return err
	}

	s.logger.Info().Msg("API server stopped")
	return nil
}

// Run runs the server until SIGINT or SIGTERM
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	return s.Stop()
}

// setupRoutes sets up the API routes
func (s *Server) setupRoutes(router *gin.Engine) {
	router.GET("/health", s.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(s.rateLimitMgr.Middleware())

	v1.GET("/extractors", s.listExtractors)

	protected := v1.Group("")
	if s.authService != nil {
		v1.POST("/auth/token", s.issueToken)
		protected.Use(auth.NewAuthMiddleware(s.authService, s.logger).Required())
	}

	protected.POST("/extract", s.extract)
	protected.GET("/catalog", s.catalogPage)
}

// Health check handler
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"timestamp":  time.Now().Unix(),
		"version":    version,
		"extractors": s.registry.GetExtractorCount(),
		"system":     s.monitor.HealthCheck(),
	})
}

func (s *Server) listExtractors(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"extractors": s.registry.GetExtractorInfo()})
}

// issueToken exchanges the admin credentials for a bearer token
func (s *Server) issueToken(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, expiresAt, err := s.authService.Authenticate(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"token_type": "Bearer",
		"expires_at": expiresAt,
	})
}

// extract resolves a URL into a media record
func (s *Server) extract(c *gin.Context) {
	var req struct {
		URL string `json:"url" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	extractor, err := s.registry.GetExtractorForURL(req.URL)
	if err != nil {
		s.writeError(c, err)
		return
	}

	record, err := extractor.Extract(c.Request.Context(), req.URL)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"extractor": extractor.GetName(),
		"record":    record,
	})
}

// catalogPage returns one page of a lazily paged playlist. With a limit
// query parameter it returns the items in [offset, offset+limit) instead.
func (s *Server) catalogPage(c *gin.Context) {
	rawURL := c.Query("url")
	if rawURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url query parameter required"})
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "0"))
	if err != nil || page < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page must be a non-negative integer"})
		return
	}

	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
		return
	}
	limit := -1
	if raw, ok := c.GetQuery("limit"); ok {
		if limit, err = strconv.Atoi(raw); err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
	}

	extractor, err := s.registry.GetExtractorForURL(rawURL)
	if err != nil {
		s.writeError(c, err)
		return
	}

	record, err := extractor.Extract(c.Request.Context(), rawURL)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if record.Pages == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "URL does not resolve to a paged playlist"})
		return
	}

	if limit > 0 {
		entries, err := record.Pages.Slice(c.Request.Context(), offset, offset+limit)
		if err != nil {
			s.writeError(c, err)
			return
		}
		if entries == nil {
			entries = []*models.MediaRecord{}
		}
		c.JSON(http.StatusOK, gin.H{
			"id":       record.ID,
			"title":    record.Title,
			"offset":   offset,
			"entries":  entries,
			"has_more": len(entries) == limit,
		})
		return
	}

	entries, err := record.Pages.Page(c.Request.Context(), page)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if entries == nil {
		entries = []*models.MediaRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"id":       record.ID,
		"title":    record.Title,
		"page":     page,
		"entries":  entries,
		"has_more": len(entries) > 0,
	})
}

// writeError maps an extraction error to a status and JSON body
func (s *Server) writeError(c *gin.Context, err error) {
	status := statusForError(err)

	body := gin.H{"error": err.Error()}
	if kind := models.ErrorKindOf(err); kind != "" {
		body["kind"] = kind
		body["expected"] = models.IsExpected(err)
	}
	if id, ok := c.Get(requestIDKey); ok {
		body["request_id"] = id
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Extraction failed")
	} else {
		s.logger.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("Extraction rejected")
	}

	c.JSON(status, body)
}

// statusForError returns the HTTP status for an extraction error
func statusForError(err error) int {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}

	switch models.ErrorKindOf(err) {
	case models.ErrNotFound:
		return http.StatusNotFound
	case models.ErrRestricted, models.ErrPasswordRequired:
		return http.StatusForbidden
	case models.ErrAuthenticationFailed:
		return http.StatusUnauthorized
	case models.ErrNotLive:
		return http.StatusConflict
	case models.ErrUnsupported:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// requestIDMiddleware tags each request with an ID, reusing the client's
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString(requestIDKey)).
			Msg("Request")
	}
}

// CORS middleware
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
