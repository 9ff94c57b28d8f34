package main

import (
	"context"
	"log"
	"time"

	"go.uber.org/zap"

	"scope-chat/config"
	"scope-chat/internal/auth"
	"scope-chat/internal/events"
	"scope-chat/internal/handler"
	"scope-chat/internal/metrics"
	"scope-chat/internal/redis"
	"scope-chat/internal/repository"
	"scope-chat/internal/server"
	"scope-chat/internal/services"
	"scope-chat/internal/taskapi"
	"scope-chat/internal/websocket"
	"scope-chat/pkg/database"
	chatevents "scope-chat/pkg/events"
	"scope-chat/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	l := logger.New(cfg.AppMode)
	defer l.Sync()
	logger.SetGlobalLogger(l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	var health []server.HealthCheck

	// Store
	var store repository.Store
	switch cfg.StoreDriver {
	case "memory":
		l.Warnf("Using the in-memory store, data is lost on restart")
		store = repository.NewMemoryStore()
	default:
		db, err := database.Connect(ctx, cfg)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		store = repository.NewStore(db)
		health = append(health, server.HealthCheck{Name: "postgres", Check: db.PingContext})
	}

	// Fan-out provider and Redis backed helpers
	var (
		broker     chatevents.Broker
		limiter    *redis.RateLimiter
		memberSink services.MembershipCache
		memberRead *redis.MemberCache
		typingSink services.TypingTracker
		presence   websocket.ConnectionTracker
	)
	if cfg.RedisEnabled {
		client, err := redis.Connect(ctx, redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer client.Close()

		broker = chatevents.NewRedisBroker(client, cfg.EventLogMaxLen)
		limiter = redis.NewRateLimiter(client, redis.RateLimitConfig{
			MessageLimit:  cfg.MessageRateLimit,
			MessageWindow: time.Duration(cfg.MessageRateWindowSec) * time.Second,
		})
		memberRead = redis.NewMemberCache(client, time.Duration(cfg.MemberCacheTTLSec)*time.Second)
		memberSink = memberRead
		typingSink = redis.NewTypingTracker(client, time.Duration(cfg.TypingTTLSec)*time.Second)
		presence = redis.NewPresenceStore(client, 0)
		health = append(health, server.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
	} else {
		l.Warnf("Redis disabled, events fan out in-process only")
		broker = chatevents.NewMemoryBroker(int(cfg.EventLogMaxLen))
	}

	gateway := events.NewGateway(broker, l, events.Options{
		Workers:   cfg.FanoutWorkers,
		QueueSize: cfg.FanoutQueue,
		Timeout:   time.Duration(cfg.FanoutTimeoutMS) * time.Millisecond,
		Metrics:   m,
	})
	defer gateway.Close()

	var tasks services.TaskCreator
	if cfg.TaskAPIURL != "" {
		tasks = taskapi.NewClient(cfg.TaskAPIURL, cfg.TaskAPIToken, time.Duration(cfg.TaskAPITimeoutMS)*time.Millisecond)
	}

	// Services
	chatService := services.NewChatService(store, gateway, memberSink, l)
	messageService := services.NewMessageService(store, gateway, tasks, l)
	typingService := services.NewTypingService(store.Chats(), typingSink, gateway, l)

	// Live sockets
	verifier := auth.NewVerifier(cfg.JWTSecret)
	hub := websocket.NewHub(m)
	bridge := websocket.NewBridge(broker, hub, l)
	go func() {
		if err := bridge.Run(ctx); err != nil {
			l.Logger.Error("event bridge stopped", zap.Error(err))
		}
	}()
	socket := websocket.NewHandler(verifier, hub, websocket.NewChannelAuthorizer(chatService, memberRead), typingService, l.Named("ws"))
	if presence != nil {
		socket.WithPresence(presence)
	}

	srv := server.New(cfg, l)
	srv.SetupRoutes(&server.Handlers{
		Chats:    handler.NewChatHandler(chatService, messageService),
		Messages: handler.NewMessageHandler(messageService),
		Events:   handler.NewEventsHandler(chatService, typingService, broker),
		Socket:   socket,
	}, server.RouteDeps{
		Verifier: verifier,
		Limiter:  limiter,
		Metrics:  m,
		Health:   health,
	})

	if err := srv.Start(); err != nil {
		l.Logger.Error("server stopped with error", zap.Error(err))
	}
}
