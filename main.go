package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messaging-service/internal/auth"
	"messaging-service/internal/config"
	"messaging-service/internal/db"
	"messaging-service/internal/handlers"
	"messaging-service/internal/logging"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/presence"
	"messaging-service/internal/repositories"
	"messaging-service/internal/status"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

const serviceName = "messaging-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("info", false, serviceName)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := logging.New(cfg.LogLevel, cfg.LogPretty, serviceName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, serviceName, cfg.Tracing.OTLPEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init tracing")
	}
	if shutdownTracing != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(shutdownCtx)
		}()
	}

	database, err := db.Connect(cfg.DBDSN, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to db")
	}
	defer database.Close()

	publisher := observability.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
	observability.SetPublisher(publisher)
	defer publisher.Close()

	presenceStore := newPresenceStore(ctx, cfg, log)

	messageRepo := repositories.NewMessageRepo(database)
	roomRepo := repositories.NewRoomRepo(database)

	registry := ws.NewRegistry(log)
	tracker := status.NewTracker(messageRepo, registry, log)
	verifier := auth.NewVerifier(cfg.JWTSecret)
	audit := telemetry.NewAuditEmitter(publisher, "audit.messaging", serviceName, cfg.Environment, log)

	wsHandler := ws.NewHandler(registry, presenceStore, messageRepo, roomRepo, tracker, verifier, audit, ws.HandlerConfig{
		HeartbeatInterval: cfg.WS.HeartbeatInterval,
		SendBuffer:        cfg.WS.SendBuffer,
	}, log)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/rooms/conversations/:conversation_id", wsHandler.HandleConversation)
	router.GET("/rooms/groups/:group_id", wsHandler.HandleGroup)

	handlers.RegisterDebugRoutes(router, middleware.AuthMiddleware(verifier), audit, presenceStore, cfg.DebugRoutes)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		log.Info().Str("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}

// newPresenceStore prefers Redis so every instance shares presence; without a
// configured address it falls back to the process-local store.
func newPresenceStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) presence.Store {
	if cfg.Redis.Addr == "" {
		log.Info().Msg("redis not configured, using in-memory presence store")
		return presence.NewMemoryStore(cfg.WS.PresenceTTL)
	}

	store, err := presence.NewRedisStore(ctx, presence.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
		TTL:      cfg.WS.PresenceTTL,
	})
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, using in-memory presence store")
		return presence.NewMemoryStore(cfg.WS.PresenceTTL)
	}
	log.Info().Str("addr", cfg.Redis.Addr).Msg("redis presence store connected")
	return store
}
