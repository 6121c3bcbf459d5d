package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"support-chat/internal/cache"
	"support-chat/internal/chat"
	"support-chat/internal/config"
	"support-chat/internal/db"
	"support-chat/internal/grpcserver"
	"support-chat/internal/handlers"
	"support-chat/internal/identity"
	"support-chat/internal/middleware"
	"support-chat/internal/observability"
	"support-chat/internal/rabbitmq"
	"support-chat/internal/registry"
	"support-chat/internal/repositories"
	"support-chat/internal/telemetry"
	"support-chat/internal/ws"
)

const serviceName = "support-chat"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}

	database, err := db.Connect(ctx, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("redis unavailable, user cache disabled addr=%s: %v", cfg.RedisAddr, err)
			_ = redisClient.Close()
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	publisher := rabbitmq.NewPublisher(rabbitmq.Options{URL: cfg.AMQPURL, Exchange: cfg.AMQPExchange, AppID: serviceName})
	defer publisher.Close()
	log.Printf("event publisher mode=%s reason=%q", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, observability.RoutingKeyAudit, serviceName, cfg.Environment)

	roomRepo := repositories.NewRoomRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	users := cache.NewUserDirectory(repositories.NewUserRepo(database), redisClient, cfg.UserCacheTTL)

	hub := ws.NewHub()
	presence := registry.New()
	verifier := identity.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	svc := chat.NewService(roomRepo, messageRepo, users, verifier, hub, audit)

	gateway := ws.NewGateway(svc, hub, presence, cfg.AllowedOrigins)
	roomHandler := handlers.NewRoomHandler(svc, presence)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(middleware.RequestID())

	router.GET("/healthz", handlers.Health(database))
	router.GET("/metrics", observability.MetricsHandler())
	router.GET("/ws/support", gateway.Handle)

	authMiddleware := middleware.AuthMiddleware(svc)
	router.GET("/rooms", authMiddleware, roomHandler.ListRooms)
	router.GET("/rooms/:room_id/messages", authMiddleware, roomHandler.GetRoomMessages)
	router.GET("/presence/:user_id", authMiddleware, roomHandler.Presence)
	handlers.RegisterDebugRoutes(router, audit, cfg.IsDev())

	grpcServer, err := grpcserver.New(net.JoinHostPort("", cfg.GRPCPort))
	if err != nil {
		log.Fatalf("failed to start grpc: %v", err)
	}
	go func() {
		if err := grpcServer.Serve(); err != nil {
			log.Printf("grpc server error: %v", err)
			stop()
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("http server listening port=%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
			stop()
		}
	}()
	grpcServer.SetServing(true)

	<-ctx.Done()
	log.Println("shutting down")
	grpcServer.SetServing(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	hub.CloseAll()
	grpcServer.Stop()
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Printf("tracer shutdown error: %v", err)
	}
}
