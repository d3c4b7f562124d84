package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"consult-chat/internal/cache"
	"consult-chat/internal/chat"
	"consult-chat/internal/config"
	"consult-chat/internal/db"
	"consult-chat/internal/feed"
	grpcserver "consult-chat/internal/grpc"
	"consult-chat/internal/handlers"
	"consult-chat/internal/middleware"
	"consult-chat/internal/observability"
	"consult-chat/internal/rabbitmq"
	"consult-chat/internal/repositories"
	"consult-chat/internal/telemetry"
	"consult-chat/internal/users"
	"consult-chat/internal/ws"
)

func main() {
	if err := run(); err != nil {
		slog.Error("chat service stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})).
		With("service", cfg.ServiceName, "env", cfg.Environment)
	slog.SetDefault(logger)

	shutdownTracing, err := observability.InitTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Environment)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	database, err := db.Connect(ctx, cfg.DBDSN, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	conversationRepo := repositories.NewConversationRepo(database)
	participantRepo := repositories.NewParticipantRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	profileRepo := repositories.NewProfileRepo(database)

	var profileCache users.ProfileCache
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewProfileCache(ctx, cfg.RedisURL, cfg.ProfileCacheTTL)
		if err != nil {
			logger.Warn("profile cache disabled", "error", err)
		} else {
			defer redisCache.Close()
			profileCache = redisCache
			logger.Info("profile cache enabled", "ttl", cfg.ProfileCacheTTL)
		}
	}
	directory := users.NewDirectory(profileRepo, profileCache, logger)

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()
	logger.Info("event publisher ready", "mode", rabbitmq.PublisherMode(publisher), "noop_reason", rabbitmq.PublisherNoopReason(publisher))
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Environment, logger)
	events := observability.NewEventSink(publisher, logger)

	broker := feed.NewBroker(messageRepo, logger)
	opts := []chat.Option{
		chat.WithSubscriber(broker),
		chat.WithAuditor(audit),
		chat.WithLogger(logger),
	}
	var source feed.Source
	switch cfg.FeedTransport {
	case config.FeedTransportNATS:
		natsFeed, err := feed.NewNATSFeed(ctx, cfg.NATSURL, cfg.NATSStream, logger)
		if err != nil {
			return err
		}
		defer natsFeed.Close()
		source = natsFeed
		opts = append(opts, chat.WithNotifier(natsFeed))
	default:
		source = feed.NewPostgresSource(cfg.DBDSN, db.MessageInsertedChannel, logger)
	}
	service := chat.NewService(conversationRepo, participantRepo, messageRepo, directory, opts...)

	feedDone := make(chan error, 1)
	go func() { feedDone <- broker.Run(ctx, source) }()

	hub := ws.NewHub()
	router := newRouter(cfg, logger, service, broker, hub, audit, events, database)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	health := grpcserver.NewHealthServer(database, logger)
	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	go health.Watch(ctx, 15*time.Second)

	serveErr := make(chan error, 2)
	go func() {
		logger.Info("grpc health server listening", "port", cfg.GRPCPort)
		serveErr <- health.Serve(grpcLis)
	}()
	go func() {
		logger.Info("http server listening", "port", cfg.Port, "feed_transport", cfg.FeedTransport)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err = <-serveErr:
		logger.Error("server failed", "error", err)
	case err = <-feedDone:
		if ctx.Err() != nil {
			err = nil
		} else if err != nil {
			logger.Error("live feed stopped", "error", err)
			err = fmt.Errorf("live feed: %w", err)
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("http shutdown", "error", shutdownErr)
	}
	hub.CloseAll()
	health.Shutdown()
	return err
}

func newRouter(
	cfg config.Config,
	logger *slog.Logger,
	service *chat.Service,
	broker *feed.Broker,
	hub *ws.Hub,
	audit *telemetry.AuditEmitter,
	events *observability.EventSink,
	database interface{ PingContext(context.Context) error },
) *gin.Engine {
	if cfg.Environment != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(cfg.ServiceName),
		observability.HTTPMetricsMiddleware(),
		handlers.RequestID(),
	)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := middleware.AuthMiddleware(middleware.NewVerifier(cfg.JWTSecret))

	conversations := handlers.NewConversationHandler(service, logger)
	channels := handlers.NewChannelHandler(service, logger)
	api := router.Group("/", auth, middleware.RequestTimeout(cfg.RequestTimeout))
	api.GET("/conversations", conversations.ListConversations)
	api.POST("/conversations/direct", conversations.StartDirect)
	api.GET("/conversations/:id/messages", conversations.GetMessages)
	api.POST("/conversations/:id/messages", conversations.PostMessage)
	api.POST("/conversations/:id/read", conversations.MarkRead)
	api.POST("/channels/:tag/join", channels.JoinChannel)
	handlers.RegisterDebugRoutes(api, audit, broker, cfg.DebugRoutes)

	conversationWS := ws.NewConversationWebSocketHandler(service, hub, events, logger)
	router.GET("/ws/conversations/:id", auth, conversationWS.Handle)

	return router
}
