package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fleet-backend/internal/auth"
	"fleet-backend/internal/config"
	"fleet-backend/internal/domain"
	"fleet-backend/internal/fusion"
	"fleet-backend/internal/hub"
	"fleet-backend/internal/logging"
	"fleet-backend/internal/ml"
	"fleet-backend/internal/pipeline"
	"fleet-backend/internal/store"
	transport "fleet-backend/internal/transport/http"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found — using system environment variables")
	}

	cfg := config.Load()
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	logger.Info("starting fleet backend",
		slog.String("http_port", cfg.HTTPPort),
		slog.String("model_dir", cfg.ModelDir),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.NewPostgresStore(ctx, cfg)
	if err != nil {
		logger.Error("database unavailable", logging.Err(err))
		os.Exit(1)
	}
	defer db.Close()

	cache, err := store.NewRedisStore(ctx, cfg)
	if err != nil {
		logger.Error("redis unavailable", logging.Err(err))
		os.Exit(1)
	}
	defer cache.Close()

	registry := ml.Load(logger, ml.Config{
		ModelDir:    cfg.ModelDir,
		LibraryPath: cfg.ORTLibraryPath,
		Timeout:     cfg.InferTimeout,
	})
	defer registry.Close()

	broadcastHub := hub.New(logger, cfg.HubEventBuffer, cfg.SubscriberBuffer)

	stateCh := make(chan *domain.Event, cfg.StateChannelSize)
	stateWriter := pipeline.NewStateWriter(logger, stateCh, cache)
	go stateWriter.Run(ctx)

	engine := fusion.NewEngine(registry)
	pipe := pipeline.New(logger, db, engine, broadcastHub, stateCh)

	authn := auth.NewAuthenticator(cfg, cache)
	handler := transport.NewHandler(logger, pipe, db, broadcastHub, db.Ping, cache.Ping, registry.Ready)

	srv := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     handler.Routes(transport.NewAuthMiddleware(authn)),
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: observer sockets are long-lived.
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", logging.Err(err))
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", slog.String("signal", sig.String()))
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", logging.Err(err))
	}

	broadcastHub.Close()
	cancel()

	logger.Info("fleet backend stopped")
}
