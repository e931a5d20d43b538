// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mbd888/txbuddy/internal/analysis"
	"github.com/mbd888/txbuddy/internal/auth"
	"github.com/mbd888/txbuddy/internal/chain"
	"github.com/mbd888/txbuddy/internal/circuitbreaker"
	"github.com/mbd888/txbuddy/internal/config"
	"github.com/mbd888/txbuddy/internal/events"
	"github.com/mbd888/txbuddy/internal/explainer"
	"github.com/mbd888/txbuddy/internal/explanations"
	"github.com/mbd888/txbuddy/internal/explorer"
	"github.com/mbd888/txbuddy/internal/health"
	"github.com/mbd888/txbuddy/internal/idgen"
	"github.com/mbd888/txbuddy/internal/logging"
	"github.com/mbd888/txbuddy/internal/metrics"
	"github.com/mbd888/txbuddy/internal/monitor"
	"github.com/mbd888/txbuddy/internal/progress"
	"github.com/mbd888/txbuddy/internal/ratelimit"
	"github.com/mbd888/txbuddy/internal/realtime"
	"github.com/mbd888/txbuddy/internal/retry"
	"github.com/mbd888/txbuddy/internal/risk"
	"github.com/mbd888/txbuddy/internal/security"
	"github.com/mbd888/txbuddy/internal/traces"
	"github.com/mbd888/txbuddy/internal/validation"
)

// Version is reported by /health and the tracer resource.
const Version = "0.1.0"

// ShutdownTimeout bounds the HTTP shutdown and the analysis drain.
const ShutdownTimeout = 30 * time.Second

// ChainClient is the node connection the server needs: reads for the
// pipeline and the session manager, plus a probe and a close.
type ChainClient interface {
	chain.Reader
	Ping(ctx context.Context) error
	Close()
}

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg      *config.Config
	chain    ChainClient
	explorer *explorer.Client

	progress     *progress.Service
	explanations explanations.Store
	risks        risk.Store
	sessions     monitor.SessionStore
	pipeline     *analysis.Pipeline
	manager      *monitor.Manager
	reaper       *monitor.Reaper

	bus          *events.Bus
	realtimeHub  *realtime.Hub
	kafka        *events.KafkaSink
	closeDiscord func() error

	health          *health.Registry
	rateLimiter     *ratelimit.Limiter
	db              *sql.DB // nil if using in-memory
	router          *gin.Engine
	httpSrv         *http.Server
	logger          *slog.Logger
	shutdownTracing func(context.Context) error
	cancelRunCtx    context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithChain sets a custom chain client (for testing)
func WithChain(c ChainClient) Option {
	return func(s *Server) {
		s.chain = c
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	shutdownTracing, err := traces.Init(ctx, cfg.OTLPEndpoint, Version, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	s.shutdownTracing = shutdownTracing

	if s.chain == nil {
		c, err := chain.Dial(ctx, cfg.RPCURL, cfg.ChainID, s.logger)
		if err != nil {
			return nil, err
		}
		s.chain = c
	}
	s.logger.Info("connected to chain", "rpc", cfg.RPCURL, "chainId", cfg.ChainID)

	// One breaker, keyed per upstream ("explorer", "llm").
	breaker := circuitbreaker.New(5, 30*time.Second)
	breaker.OnTransition(func(key string, from, to circuitbreaker.State) {
		s.logger.Warn("circuit breaker transition", "upstream", key, "from", from.String(), "to", to.String())
	})

	s.explorer, err = explorer.New(explorer.Config{
		BaseURL:   cfg.ExplorerURL,
		APIKey:    cfg.ExplorerAPIKey,
		CacheSize: cfg.VerifyCacheSize,
	}, explorer.WithBreaker(breaker), explorer.WithLogger(s.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create explorer client: %w", err)
	}

	expl := explainer.New(explainer.Config{
		BaseURL: cfg.LLMURL,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
	}, breaker, s.logger)
	if cfg.LLMAPIKey == "" {
		s.logger.Warn("LLM_API_KEY not set, explanations will carry a static notice")
	}

	// Storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var progressStore progress.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		pgProgress := progress.NewPostgresStore(db)
		pgExplanations := explanations.NewPostgresStore(db)
		pgRisk := risk.NewPostgresStore(db)
		pgSessions := monitor.NewPostgresStore(db)
		for name, m := range map[string]interface{ Migrate(context.Context) error }{
			"progress":     pgProgress,
			"explanations": pgExplanations,
			"risk":         pgRisk,
			"sessions":     pgSessions,
		} {
			if err := m.Migrate(ctx); err != nil {
				s.logger.Warn("failed to migrate store", "store", name, "error", err)
			}
		}
		progressStore = pgProgress
		s.explanations = pgExplanations
		s.risks = pgRisk
		s.sessions = pgSessions
	} else {
		progressStore = progress.NewMemoryStore()
		s.explanations = explanations.NewMemoryStore()
		s.risks = risk.NewMemoryStore()
		s.sessions = monitor.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Event fan-out: websocket always, Kafka and Discord when configured.
	s.realtimeHub = realtime.NewHub(s.logger)
	s.bus = events.NewBus(s.logger, s.realtimeHub)
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		s.kafka = sink
		s.bus.Add(sink)
		s.logger.Info("kafka sink enabled", "topic", cfg.KafkaTopic)
	}
	if cfg.DiscordToken != "" {
		sender, closeFn, err := events.DialDiscord(cfg.DiscordToken, cfg.DiscordChannelID)
		if err != nil {
			return nil, err
		}
		s.closeDiscord = closeFn
		s.bus.Add(events.NewDiscordNotifier(sender, ""))
		s.logger.Info("discord alerts enabled", "channel", cfg.DiscordChannelID)
	}

	policy := retry.Policy{
		MaxAttempts: cfg.PersistAttempts,
		BaseDelay:   cfg.PersistBackoff,
		MaxDelay:    10 * cfg.PersistBackoff,
	}

	s.progress = progress.NewService(progressStore, policy, s.logger)
	s.progress.Observe(progress.PublishTo(s.bus))

	assessor := risk.NewAssessor(s.explorer, s.risks, s.logger)
	s.pipeline = analysis.NewPipeline(s.chain, assessor, expl, s.explanations, s.progress, s.logger).
		WithPublisher(s.bus).
		WithPersistPolicy(policy)

	pool := monitor.NewPool(cfg.AnalysisWorkers, cfg.AnalysisQueue, s.logger)
	s.manager = monitor.NewManager(s.chain, s.explorer, s.pipeline, pool, monitor.Config{
		PollInterval: cfg.PollInterval,
		Retention:    cfg.SessionRetention,
	}, s.logger).
		WithStore(s.sessions).
		WithPublisher(s.bus)
	s.reaper = monitor.NewReaper(s.manager, cfg.ReapInterval, s.logger)

	s.health = health.NewRegistry()
	s.health.Register("chain", s.chain.Ping)
	s.health.Register("explorer", s.explorer.Ping)
	if s.db != nil {
		s.health.Register("database", s.db.PingContext)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.APIKey == "" {
		s.logger.Warn("API_KEY not set, /v1 is unauthenticated")
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware([]string{"*"}))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	s.rateLimiter = ratelimit.New(ratelimit.DefaultConfig())
	s.router.Use(s.rateLimiter.Middleware())

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.New()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Debug("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	requireKey := auth.Middleware(s.cfg.APIKey)
	s.router.GET("/ws", requireKey, func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	v1 := s.router.Group("/v1", requireKey)
	v1.GET("/realtime/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.realtimeHub.Stats())
	})
	v1.GET("/info", s.infoHandler)

	monitor.NewHandler(s.manager).RegisterRoutes(v1)
	progress.NewHandler(s.progress).RegisterRoutes(v1)
	explanations.NewHandler(s.explanations).RegisterRoutes(v1)
	analysis.NewHandler(s.pipeline).RegisterRoutes(v1)
	risk.NewHandler(s.risks).RegisterRoutes(v1)
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.health.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   Version,
		Checks:    statuses,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":            "txbuddy",
		"description":     "Address monitoring and transaction analysis",
		"version":         Version,
		"chainId":         s.cfg.ChainID,
		"pollInterval":    s.cfg.PollInterval.String(),
		"activeSessions":  len(s.manager.ListActive()),
		"persistent":      s.db != nil,
		"eventSinks":      s.bus.Len(),
		"maxLevel":        progress.MaxLevel,
		"analysisWorkers": s.cfg.AnalysisWorkers,
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      90 * time.Second, // on-demand analysis waits on the LLM
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.realtimeHub.Run(runCtx)
	go s.reaper.Start(runCtx)
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	if n, err := s.manager.Restore(runCtx); err != nil {
		s.logger.Error("failed to restore monitoring sessions", "error", err)
	} else if n > 0 {
		s.logger.Info("monitoring sessions restored", "count", n)
	}

	s.ready.Store(true)
	s.logger.Info("server ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		_ = s.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown stops HTTP, then every session ticker and the reaper, then
// drains in-flight analyses before closing sinks and connections.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	var firstErr error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("http shutdown error", "error", err)
			firstErr = err
		}
	}

	s.reaper.Stop()
	if err := s.manager.Shutdown(ctx); err != nil {
		s.logger.Error("analysis drain incomplete", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	} else {
		s.logger.Info("analysis workers drained")
	}

	if err := s.bus.Close(ctx); err != nil {
		s.logger.Error("event delivery incomplete", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	// Hub, reaper loop and db stats collector.
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.kafka != nil {
		if err := s.kafka.Close(); err != nil {
			s.logger.Error("kafka close error", "error", err)
		}
	}
	if s.closeDiscord != nil {
		if err := s.closeDiscord(); err != nil {
			s.logger.Error("discord close error", "error", err)
		}
	}

	s.chain.Close()

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	if s.shutdownTracing != nil {
		if err := s.shutdownTracing(ctx); err != nil {
			s.logger.Error("tracer shutdown error", "error", err)
		}
	}

	s.logger.Info("server stopped")
	return firstErr
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
