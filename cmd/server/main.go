package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/bidlyapplaunch/bidly-sub001/internal/config"
	"github.com/bidlyapplaunch/bidly-sub001/internal/events"
	"github.com/bidlyapplaunch/bidly-sub001/internal/handlers"
	redisclient "github.com/bidlyapplaunch/bidly-sub001/internal/redis"
	"github.com/bidlyapplaunch/bidly-sub001/internal/service"
	"github.com/bidlyapplaunch/bidly-sub001/internal/shopify"
	"github.com/bidlyapplaunch/bidly-sub001/internal/storage"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.Load()
	ctx := context.Background()

	logger.Info("connecting to PostgreSQL")
	db, err := storage.Open(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		logger.Fatal("failed to initialize schema", zap.Error(err))
	}

	logger.Info("connecting to Redis", zap.String("addr", cfg.Redis.Addr))
	redis, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer redis.Close()

	logger.Info("connecting to NATS", zap.String("url", cfg.NATS.URL))
	natsConn, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		logger.Fatal("failed to connect to NATS", zap.Error(err))
	}
	defer natsConn.Close()

	publisher, err := events.NewPublisher(redis, natsConn)
	if err != nil {
		logger.Fatal("failed to create publisher", zap.Error(err))
	}

	products := shopify.NewClient(cfg.Shopify.APIVersion, cfg.Shopify.Timeout)
	svc := service.NewService(db, db, redis, publisher, products, logger)
	handler := handlers.NewHandler(svc, db, logger)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("API server listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped gracefully")
}
