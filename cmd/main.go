package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arefin-aareef/talksy/internal/app/registry"
	"github.com/arefin-aareef/talksy/internal/app/server"
	"github.com/arefin-aareef/talksy/internal/app/worker"
	"github.com/arefin-aareef/talksy/internal/config"
	"github.com/arefin-aareef/talksy/internal/core/contracts"
	"github.com/arefin-aareef/talksy/internal/core/services"
	"github.com/arefin-aareef/talksy/internal/platform/logger"
	"github.com/arefin-aareef/talksy/internal/platform/metrics"
	"github.com/arefin-aareef/talksy/internal/platform/telemetry"
	kafkaPlugin "github.com/arefin-aareef/talksy/internal/plugins/kafka"
	"github.com/arefin-aareef/talksy/internal/plugins/postgres"
	redisPlugin "github.com/arefin-aareef/talksy/internal/plugins/redis"
	"github.com/arefin-aareef/talksy/pkg/logging"

	"github.com/redis/go-redis/v9"
)

func main() {
	// Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Config
	cfg := config.Load()

	// Logger
	log := logger.NewLogger(*cfg)
	log.Info("starting application")

	otelShutdown, err := telemetry.InitTelemetry(ctx, *cfg)
	if err != nil {
		log.Error("failed to initialize telemetry", logging.Err(err))
		otelShutdown = func(context.Context) error { return nil }
	}
	defer func() {
		log.Info("flushing telemetry...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Error("telemetry shutdown failed", logging.Err(err))
		}
	}()
	metrics.MustRegister()

	// Infra
	var pdb *sql.DB
	if pdb, err = postgres.New(ctx, *cfg.Postgres); err != nil {
		log.Error("postgres connection failed", logging.Err(err))
		return
	}
	defer pdb.Close()
	log.Info("postgres connected", "auto_migrate", cfg.Postgres.AutoMigrate)
	var rdb *redis.Client
	if rdb, err = redisPlugin.NewRedisClient(ctx, *cfg.Redis); err != nil {
		log.Error("redis connection failed", "url", cfg.Redis.URL, logging.Err(err))
		return
	}
	defer rdb.Close()
	log.Info("redis connected")

	var events contracts.EventPublisher
	if cfg.Kafka.Enabled {
		producer := kafkaPlugin.NewProducer(log, *cfg.Kafka)
		defer producer.Close()
		events = producer
		log.Info("kafka producer ready", "brokers", cfg.Kafka.Brokers)
	}

	// Adapters
	userRepo := postgres.NewUserRepository(pdb)
	msgRepo := postgres.NewMessageRepo(pdb)
	presStore := redisPlugin.NewRedisPresenceStore(rdb)
	txManager := postgres.NewTxManager(pdb)

	// Core Services
	hub := registry.NewRegistry()
	rt := cfg.Realtime
	userSvc := services.NewUserService(log, userRepo, txManager)
	tokenSvc := services.NewTokenService(cfg.Auth.SecretToken, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	msgSvc := services.NewMessageService(log, hub, msgRepo, events, rt.PushTimeout)
	presenceSvc := services.NewPresenceService(log, hub, rt.PushTimeout)
	managerSvc := services.NewManagerService(log, hub, userRepo, tokenSvc, msgSvc, presenceSvc,
		rt.TypingTTL, presStore, events, rt.PresenceTTL)

	// Workers
	heartbeat := worker.NewPresenceHeartbeat(log, hub, presStore, rt.HeartbeatInterval, rt.PresenceTTL)
	go func() {
		if err := heartbeat.Run(ctx); err != nil {
			log.Error("presence heartbeat stopped", logging.Err(err))
		}
	}()

	// Server
	srv := server.NewServer(cfg, log, userSvc, tokenSvc, msgSvc, managerSvc)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("server failed", logging.Err(err))
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown incomplete", logging.Err(err))
	}
	log.Info("server stopped")
}
