package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/bidlyapplaunch/bidly-sub001/internal/config"
	redisclient "github.com/bidlyapplaunch/bidly-sub001/internal/redis"
	"github.com/bidlyapplaunch/bidly-sub001/internal/ws"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.Load()

	logger.Info("connecting to Redis", zap.String("addr", cfg.Redis.Addr))
	subscriber, err := redisclient.NewSubscriber(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer subscriber.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := subscriber.SubscribeAll(ctx); err != nil {
		logger.Fatal("failed to subscribe to auction updates", zap.Error(err))
	}

	manager := ws.NewManager(logger)
	go manager.Run()

	messageChan := make(chan *redisclient.Message, 256)

	go func() {
		logger.Info("listening for auction updates")
		if err := subscriber.Listen(ctx, messageChan); err != nil && ctx.Err() == nil {
			logger.Error("redis listener error", zap.Error(err))
		}
	}()

	// Forward Redis pub/sub payloads to WebSocket subscribers verbatim.
	go func() {
		for msg := range messageChan {
			manager.Broadcast(msg.AuctionID, []byte(msg.Payload))
		}
	}()

	handler := ws.NewHandler(manager, logger)
	server := &http.Server{
		Addr:         cfg.Server.BroadcastAddr,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("broadcast service listening", zap.String("addr", cfg.Server.BroadcastAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down broadcast service")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("broadcast service stopped gracefully")
}
