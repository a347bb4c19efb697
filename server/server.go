package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Simlowker/solduel-gaming-platform/auth"
	"github.com/Simlowker/solduel-gaming-platform/config"
	"github.com/Simlowker/solduel-gaming-platform/events/kafka"
	"github.com/Simlowker/solduel-gaming-platform/game"
	"github.com/Simlowker/solduel-gaming-platform/middleware"
	"github.com/Simlowker/solduel-gaming-platform/pkg/lobby"
)

// App represents the wager session service application
type App struct {
	engine     *gin.Engine
	config     *config.Config
	logger     zerolog.Logger
	httpServer *http.Server
	onShutdown []func()

	registry     *game.Registry
	sessions     *SessionService
	lobbyService *lobby.Service

	sessionHandler *SessionHandler
	lobbyHandler   *LobbyHandler
	eventsHandler  *EventsHandler

	eventConsumer *kafka.Consumer

	backgroundCancel context.CancelFunc
}

// Options holds everything the application needs to run
type Options struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Registry *game.Registry
	Payout   *game.PayoutCalculator
	Ledger   LedgerProvider
	Archive  ArchiveProvider
	History  LogProvider
	Cache    Cache
	Producer EventPublisher
}

// Router is an alias for gin.Engine for convenience
type Router = gin.Engine

// New creates a new wager session application
func New(opts Options) *App {
	// Configure decimal.Decimal to marshal as JSON number instead of string
	// WARNING: This may cause precision loss for decimals with many digits when
	// unmarshaled by clients using IEEE 754 double-precision (e.g., JavaScript)
	decimal.MarshalJSONWithoutQuotes = true

	// Set Gin mode
	if opts.Config.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	app := &App{
		engine:   engine,
		config:   opts.Config,
		logger:   opts.Logger,
		registry: opts.Registry,
	}

	// Lobby service (buffered + broadcast interval)
	app.lobbyService = lobby.NewService(lobby.ServiceConfig{
		BroadcastInterval: lobby.DefaultBroadcastInterval,
		Logger:            opts.Logger,
	})

	app.sessions = NewSessionService(
		opts.Config,
		opts.Logger,
		opts.Registry,
		opts.Payout,
		opts.Ledger,
		opts.Archive,
		opts.History,
		opts.Cache,
		opts.Producer,
		app.lobbyService,
	)

	// Create handlers
	app.sessionHandler = NewSessionHandler(app)
	app.lobbyHandler = NewLobbyHandler(app, app.lobbyService)
	app.eventsHandler = NewEventsHandler(app)

	return app
}

// AttachEventConsumer enables cross-instance event streaming. Events
// published by any node reach clients connected to this one.
func (a *App) AttachEventConsumer(consumer *kafka.Consumer) {
	a.eventConsumer = consumer
}

// EventConsumer returns the attached event consumer, nil when streaming
// from the bus is disabled.
func (a *App) EventConsumer() *kafka.Consumer {
	return a.eventConsumer
}

// UseCommonMiddlewares adds common middlewares to the application
func (a *App) UseCommonMiddlewares() {
	// Recovery middleware (must be first)
	a.engine.Use(middleware.Recovery(a.logger))

	// Trace ID middleware
	a.engine.Use(middleware.TraceID())

	// Logging middleware
	a.engine.Use(middleware.Logging(a.logger))

	// CORS middleware if enabled
	if a.config.Server.EnableCORS {
		a.engine.Use(middleware.CORS())
	}
}

// UseMiddleware adds a custom middleware
func (a *App) UseMiddleware(m gin.HandlerFunc) {
	a.engine.Use(m)
}

// Sessions returns the session service
func (a *App) Sessions() *SessionService {
	return a.sessions
}

// Registry returns the session registry
func (a *App) Registry() *game.Registry {
	return a.registry
}

// LobbyService returns the lobby broadcast service
func (a *App) LobbyService() *lobby.Service {
	return a.lobbyService
}

// RegisterHealthCheck adds health check endpoints
func (a *App) RegisterHealthCheck() {
	a.engine.GET("/health", a.healthCheck)
	a.engine.GET("/api/health", a.healthCheck)
}

func (a *App) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"service":   a.config.Environment,
	})
}

// RegisterSessionRoutes registers the session API routes
//
// Flow: HTTP Request -> sessionRoutes -> SessionHandler -> SessionService -> game.Registry
//
// Routes registered:
//   - POST   /api/sessions                    -> SessionHandler.CreateSession
//   - GET    /api/sessions                    -> SessionHandler.ListSessions
//   - GET    /api/sessions/{id}               -> SessionHandler.GetSession
//   - DELETE /api/sessions/{id}               -> SessionHandler.CancelSession
//   - POST   /api/sessions/{id}/join          -> SessionHandler.JoinSession
//   - POST   /api/sessions/{id}/actions       -> SessionHandler.Act
//   - GET    /api/sessions/{id}/settlement    -> SessionHandler.GetSettlement
//   - GET    /api/sessions/{id}/events        -> EventsHandler.StreamSessionEvents (SSE)
//   - GET    /api/balance                     -> SessionHandler.GetBalance
//   - GET    /api/history                     -> SessionHandler.GetHistory
//   - GET    /api/lobby/updates               -> LobbyHandler.StreamUpdates (SSE)
//   - GET    /api/lobby/updates/ws            -> LobbyHandler.StreamUpdatesWebSocket (WebSocket)
func (a *App) RegisterSessionRoutes() {
	api := a.engine.Group("/api")
	api.Use(auth.JWTMiddleware(a.config.JWT.Secret, a.logger)) // JWT middleware sets player info
	{
		// REST routes carry a request timeout; streaming routes stay long-lived.
		timed := api.Group("")
		if a.config.Server.WriteTimeout > 0 {
			timed.Use(middleware.Timeout(a.config.Server.WriteTimeout))
		}

		sessions := timed.Group("/sessions")
		{
			sessions.POST("", a.sessionHandler.CreateSession)
			sessions.GET("", a.sessionHandler.ListSessions)
			sessions.GET("/:id", a.sessionHandler.GetSession)
			sessions.DELETE("/:id", a.sessionHandler.CancelSession)
			sessions.POST("/:id/join", a.sessionHandler.JoinSession)
			sessions.POST("/:id/actions", a.sessionHandler.Act)
			sessions.GET("/:id/settlement", a.sessionHandler.GetSettlement)
		}
		api.GET("/sessions/:id/events", a.eventsHandler.StreamSessionEvents)

		timed.GET("/balance", a.sessionHandler.GetBalance)
		timed.GET("/history", a.sessionHandler.GetHistory)

		// Lobby routes (SSE and WebSocket streams)
		lobbyRoutes := api.Group("/lobby")
		{
			lobbyRoutes.GET("/updates", a.lobbyHandler.StreamUpdates)
			lobbyRoutes.GET("/updates/ws", a.lobbyHandler.StreamUpdatesWebSocket)
		}
	}

	a.logger.Info().Msg("Session routes registered: /api/sessions")
}

// Router returns the Gin engine for custom route registration
func (a *App) Router() *gin.Engine {
	return a.engine
}

// Group creates a route group
func (a *App) Group(path string, handlers ...gin.HandlerFunc) *gin.RouterGroup {
	return a.engine.Group(path, handlers...)
}

// AuthGroup creates a route group with JWT authentication
func (a *App) AuthGroup(path string) *gin.RouterGroup {
	return a.engine.Group(path, auth.JWTMiddleware(a.config.JWT.Secret, a.logger))
}

// OnShutdown registers a function to be called on shutdown
func (a *App) OnShutdown(fn func()) {
	a.onShutdown = append(a.onShutdown, fn)
}

// Run starts the HTTP server and the session background loops
func (a *App) Run() error {
	a.startBackground()

	addr := fmt.Sprintf(":%d", a.config.Server.Port)
	a.httpServer = &http.Server{
		Addr:         addr,
		Handler:      a.engine,
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
		IdleTimeout:  a.config.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		a.logger.Info().
			Int("port", a.config.Server.Port).
			Str("environment", a.config.Environment).
			Msg("Starting HTTP server")

		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	return a.waitForShutdown()
}

// RunWithContext starts the HTTP server with context
func (a *App) RunWithContext(ctx context.Context) error {
	a.startBackground()

	addr := fmt.Sprintf(":%d", a.config.Server.Port)
	a.httpServer = &http.Server{
		Addr:         addr,
		Handler:      a.engine,
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
		IdleTimeout:  a.config.Server.IdleTimeout,
	}

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		a.logger.Info().
			Int("port", a.config.Server.Port).
			Str("environment", a.config.Environment).
			Msg("Starting HTTP server")

		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		return a.shutdown()
	case err := <-errChan:
		return err
	}
}

// startBackground launches the settle workers and sweep loop
func (a *App) startBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	a.backgroundCancel = cancel
	a.sessions.Start(ctx)
}

func (a *App) waitForShutdown() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	return a.shutdown()
}

func (a *App) shutdown() error {
	a.logger.Info().Msg("Shutting down server...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Call registered shutdown handlers
	for _, fn := range a.onShutdown {
		fn()
	}

	// Shutdown HTTP server first so no request can enqueue new settlements
	err := a.httpServer.Shutdown(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("Error during server shutdown")
	}

	// Stop background loops and drain in-flight settlements
	if a.backgroundCancel != nil {
		a.backgroundCancel()
	}
	a.sessions.Stop()
	a.sessions.Wait()
	a.lobbyService.Stop()

	if err == nil {
		a.logger.Info().Msg("Server shutdown complete")
	}
	return err
}

// Config returns the application configuration
func (a *App) Config() *config.Config {
	return a.config
}

// Logger returns the application logger
func (a *App) Logger() zerolog.Logger {
	return a.logger
}
