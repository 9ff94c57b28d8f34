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

	"scope-chat/config"
	"scope-chat/internal/auth"
	"scope-chat/internal/handler"
	"scope-chat/internal/metrics"
	"scope-chat/internal/middleware"
	"scope-chat/internal/redis"
	"scope-chat/internal/transport/httpdto"
	"scope-chat/internal/websocket"
	"scope-chat/pkg/logger"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Chats    *handler.ChatHandler
	Messages *handler.MessageHandler
	Events   *handler.EventsHandler
	Socket   *websocket.Handler
}

// HealthCheck is one dependency probed by /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type RouteDeps struct {
	Verifier *auth.Verifier
	Limiter  *redis.RateLimiter
	Metrics  *metrics.Metrics
	Health   []HealthCheck
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(middleware.Recovery(l))

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.AppPort),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

// Handler exposes the engine, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) SetupRoutes(handlers *Handlers, deps RouteDeps) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger, deps.Metrics))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		for _, hc := range deps.Health {
			if err := hc.Check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(hc.Name+": "+err.Error(), "UNHEALTHY"))
				return
			}
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
	})

	if deps.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	if handlers.Socket != nil {
		s.engine.GET("/v1/ws", handlers.Socket.Connect)
	}

	v1 := s.engine.Group("/v1", middleware.AuthMiddleware(deps.Verifier))

	chats := v1.Group("/chats")
	{
		chats.GET("", handlers.Chats.List)
		chats.POST("", handlers.Chats.Create)
		chats.POST("/direct", handlers.Chats.Direct)
		chats.GET("/:id", handlers.Chats.Get)
		chats.PATCH("/:id", handlers.Chats.Update)
		chats.DELETE("/:id", handlers.Chats.Delete)
		chats.GET("/:id/members", handlers.Chats.Members)
		chats.POST("/:id/members", handlers.Chats.AddMember)
		chats.DELETE("/:id/members/:userId", handlers.Chats.RemoveMember)
		chats.GET("/:id/messages", handlers.Messages.List)
		chats.POST("/:id/messages", middleware.MessageRateLimitMiddleware(deps.Limiter, s.logger), handlers.Messages.Send)
		chats.POST("/:id/read", handlers.Chats.MarkRead)
		chats.GET("/:id/unread", handlers.Chats.Unread)
		chats.GET("/:id/events", handlers.Events.Poll)
		chats.POST("/:id/typing", handlers.Events.Typing)
		chats.GET("/:id/typing", handlers.Events.TypingUsers)
	}

	messages := v1.Group("/messages")
	{
		messages.GET("/:id", handlers.Messages.GetByID)
		messages.PATCH("/:id", handlers.Messages.Edit)
		messages.DELETE("/:id", handlers.Messages.Delete)
		messages.POST("/:id/read", handlers.Messages.MarkRead)
		messages.GET("/:id/reactions", handlers.Messages.Reactions)
		messages.POST("/:id/reactions", handlers.Messages.AddReaction)
		messages.DELETE("/:id/reactions", handlers.Messages.RemoveReaction)
		messages.POST("/:id/task", handlers.Messages.CreateTask)
	}

	v1.GET("/mentions", handlers.Messages.Mentions)
	v1.GET("/projects/:id/chats", handlers.Chats.ProjectChats)
	v1.GET("/teams/:id/chats", handlers.Chats.TeamChats)
}

// Start serves until SIGINT/SIGTERM and then shuts down gracefully.
func (s *Server) Start() error {
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.Errorf("Error in starting the server: %s", err)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	if s.logger != nil {
		s.logger.Infof("Server is running on :%s", s.config.AppPort)
	}

	<-quit

	if s.logger != nil {
		s.logger.Infof("Quitting signal received.. Shutting down after 5 seconds")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		if s.logger != nil {
			s.logger.Infof("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}

	return nil
}
