// Package server wires the storefront HTTP API: the strategy registry, the
// per-route authentication gateways and role guards, and the handlers of
// the sessions, products, carts, users and chat routers.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/storefront-dev/storefront/internal/auth"
	"github.com/storefront-dev/storefront/internal/carts"
	"github.com/storefront-dev/storefront/internal/chat"
	"github.com/storefront-dev/storefront/internal/config"
	"github.com/storefront-dev/storefront/internal/database"
	"github.com/storefront-dev/storefront/internal/observability"
	"github.com/storefront-dev/storefront/internal/products"
	"github.com/storefront-dev/storefront/internal/tasks"
	"github.com/storefront-dev/storefront/internal/users"
)

const sessionSweepSchedule = "@every 1m"

// Server represents the HTTP server
type Server struct {
	router    *gin.Engine
	db        *gorm.DB
	config    *config.Config
	logger    zerolog.Logger
	validator *validator.Validate
	tasks     tasks.Enqueuer
	version   string

	registry        *auth.Registry
	sessions        auth.SessionStore
	sessionStrategy *auth.SessionStrategy
	cookies         *auth.CookieSigner
	tokens          *auth.TokenIssuer

	usersService    *users.Service
	productsService *products.Service
	cartsService    *carts.Service
	chatService     *chat.Service
	hub             *chat.Hub
	upgrader        *websocket.Upgrader

	cron    *cron.Cron
	stopHub context.CancelFunc
	closers []io.Closer
}

// Deps are the collaborators of a Server
type Deps struct {
	DB       *gorm.DB
	Config   *config.Config
	Logger   zerolog.Logger
	Sessions auth.SessionStore
	Tasks    tasks.Enqueuer
	// Policies override DefaultPolicies by route key
	Policies map[string]config.RoutePolicy
	Version  string
	// Closers are closed, in order, by Close
	Closers []io.Closer
}

// New creates a new server instance
func New(cfg *config.Config, zlog zerolog.Logger, version string) (*Server, error) {
	overrides, err := config.LoadRoutePolicies(cfg.Auth.PolicyFile)
	if err != nil {
		return nil, err
	}

	// Initialize database with production settings
	db, err := database.Open(cfg.Database.URL, zlog)
	if err != nil {
		return nil, err
	}

	var closers []io.Closer
	var sessions auth.SessionStore
	switch cfg.Auth.SessionStore {
	case config.SessionStoreMemory:
		zlog.Warn().Msg("Using in-memory session store - sessions are lost on restart")
		sessions = auth.NewMemorySessionStore(cfg.Auth.SessionTTL)
	default:
		redisStore, err := auth.NewRedisSessionStore(cfg.Redis.Address, cfg.Auth.SessionTTL)
		if err != nil {
			_ = database.Close(db)
			return nil, err
		}
		sessions = redisStore
		closers = append(closers, redisStore)
	}

	// Initialize Asynq client for enqueueing tasks
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr: cfg.Redis.Address,
	})
	closers = append(closers, asynqClient)

	srv, err := newServer(Deps{
		DB:       db,
		Config:   cfg,
		Logger:   zlog,
		Sessions: sessions,
		Tasks:    asynqClient,
		Policies: overrides,
		Version:  version,
		Closers:  closers,
	})
	if err != nil {
		for _, c := range closers {
			_ = c.Close()
		}
		_ = database.Close(db)
		return nil, err
	}
	return srv, nil
}

// newServer builds the services, the strategy registry and the routes
func newServer(d Deps) (*Server, error) {
	cfg := d.Config

	cookies, err := auth.NewCookieSigner(cfg.Auth.SessionSecret)
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}

	usersService := users.NewService(d.DB, d.Logger)
	sessionStrategy := auth.NewSessionStrategy(d.Sessions, cookies, usersService)
	tokenStrategy := auth.NewTokenStrategy(tokens, usersService)

	registry, err := auth.NewRegistry(
		auth.NewStrategy(auth.StrategyLocal, auth.NewLocalStrategy(usersService)),
		auth.NewStrategy(auth.StrategySession, sessionStrategy),
		auth.NewStrategy(auth.StrategyJWT, tokenStrategy),
		auth.NewStrategy(auth.StrategyCurrent, auth.FirstOf(sessionStrategy, tokenStrategy)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build strategy registry: %w", err)
	}

	policies, err := mergePolicies(DefaultPolicies(), d.Policies)
	if err != nil {
		return nil, err
	}

	s := &Server{
		db:              d.DB,
		config:          cfg,
		logger:          d.Logger,
		validator:       newValidator(),
		tasks:           d.Tasks,
		version:         d.Version,
		registry:        registry,
		sessions:        d.Sessions,
		sessionStrategy: sessionStrategy,
		cookies:         cookies,
		tokens:          tokens,
		usersService:    usersService,
		productsService: products.NewService(d.DB, d.Logger),
		cartsService:    carts.NewService(d.DB, d.Logger),
		chatService:     chat.NewService(d.DB, d.Logger),
		hub:             chat.NewHub(d.Logger, 0),
		upgrader:        chat.NewUpgrader(cfg.Server.CORSOrigins),
		cron:            cron.New(),
		closers:         d.Closers,
	}

	s.setupRouter()
	if err := s.registerRoutes(policies); err != nil {
		return nil, err
	}

	if memory, ok := d.Sessions.(*auth.MemorySessionStore); ok {
		if _, err := s.cron.AddFunc(sessionSweepSchedule, func() {
			if n := memory.Sweep(); n > 0 {
				s.logger.Debug().Int("expired", n).Msg("Swept expired sessions")
			}
		}); err != nil {
			return nil, fmt.Errorf("failed to schedule session sweep: %w", err)
		}
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	s.stopHub = stopHub
	go s.hub.Run(hubCtx)
	s.cron.Start()

	s.logger.Info().
		Strs("strategies", registry.Names()).
		Strs("routes", routeKeys(policies)).
		Msg("Routes registered")

	return s, nil
}

// newValidator returns a validator with the custom rules used by request bodies
func newValidator() *validator.Validate {
	validate := validator.New()

	// Register custom validators
	_ = validate.RegisterValidation("alphanumdash", func(fl validator.FieldLevel) bool {
		// Allow alphanumeric, hyphens, and underscores only
		value := fl.Field().String()
		for _, char := range value {
			if !((char >= 'a' && char <= 'z') ||
				(char >= 'A' && char <= 'Z') ||
				(char >= '0' && char <= '9') ||
				char == '-' ||
				char == '_') {
				return false
			}
		}
		return true
	})
	return validate
}

// setupRouter configures the Gin router with global middleware and the
// public endpoints
func (s *Server) setupRouter() {
	// Set Gin mode based on environment
	gin.SetMode(gin.ReleaseMode)

	s.router = gin.New()

	// Add middleware
	s.router.Use(gin.Recovery())
	s.router.Use(observability.Middleware())
	s.router.Use(s.loggingMiddleware())

	// CORS middleware
	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	s.router.Use(ErrorReporter(s.logger))

	// Health check endpoint (no auth required)
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Handler returns the HTTP handler serving the API
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "online",
		"timestamp": time.Now().UTC(),
		"service":   "storefront-api",
		"version":   s.version,
	})
}

// Start serves HTTP until SIGINT or SIGTERM, then shuts down gracefully
func (s *Server) Start() error {
	port := ":" + s.config.Server.Port

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	srv := &http.Server{
		Addr:              port,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info().Str("port", port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Wait for shutdown signal
	select {
	case <-sigChan:
		s.logger.Info().Msg("Received shutdown signal, shutting down gracefully...")
	case err := <-serveErr:
		s.logger.Error().Err(err).Msg("HTTP server error")
		s.Close()
		return err
	}

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	s.logger.Info().Msg("Shutting down HTTP server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down HTTP server")
		s.Close()
		return err
	}

	s.Close()
	s.logger.Info().Msg("Server shutdown complete")
	return nil
}

// Close stops background jobs and releases the session store, task client
// and database
func (s *Server) Close() {
	<-s.cron.Stop().Done()
	s.stopHub()

	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Error closing resource")
		}
	}

	// Close database connection to flush WAL writes
	if err := database.Close(s.db); err != nil {
		s.logger.Error().Err(err).Msg("Error closing database")
	} else {
		s.logger.Info().Msg("Database closed successfully")
	}
}
