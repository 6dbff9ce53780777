package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/taskflow/taskflow/internal/api"
	"github.com/taskflow/taskflow/internal/auth"
	authstore "github.com/taskflow/taskflow/internal/auth/store"
	boardstore "github.com/taskflow/taskflow/internal/board/store"
	"github.com/taskflow/taskflow/internal/common/config"
	"github.com/taskflow/taskflow/internal/common/ids"
	"github.com/taskflow/taskflow/internal/common/logger"
	"github.com/taskflow/taskflow/internal/dispatch"
	"github.com/taskflow/taskflow/internal/events/bus"
	"github.com/taskflow/taskflow/internal/storage"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting TaskFlow service...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Open the record store and persistence gateway
	store, err := storage.NewStoreFromConfig(ctx, cfg.Storage)
	if err != nil {
		log.Fatal("Failed to open record store", zap.Error(err))
	}
	defer store.Close()
	gateway := storage.NewGateway(store)
	log.Info("Opened record store", zap.String("driver", cfg.Storage.Driver))

	// 4. Connect the event bus: NATS when configured, in-memory otherwise
	var eventBus bus.EventBus
	if cfg.NATS.URL != "" {
		eventBus, err = bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		log.Info("Connected to NATS event bus", zap.String("url", cfg.NATS.URL))
	} else {
		eventBus = bus.NewMemoryEventBus(log)
		log.Info("Using in-memory event bus")
	}
	defer eventBus.Close()

	// 5. Create the stores and the simulated authenticator
	boards := boardstore.NewStore()
	sessions := authstore.NewStore()
	authn := auth.NewAuthenticator(auth.Policy{
		MinPasswordLength: cfg.Auth.MinPasswordLength,
		AccessTokenTTL:    cfg.Auth.AccessTokenTTLDuration(),
		RefreshTokenTTL:   cfg.Auth.RefreshTokenTTLDuration(),
	}, ids.NewUUIDGenerator(), time.Now)

	// 6. Create the effect sequencer
	dispatcher := dispatch.NewDispatcher(
		boards,
		sessions,
		gateway,
		authn,
		eventBus,
		ids.NewUUIDGenerator(),
		dispatch.Config{
			SaveDelay:    cfg.Board.SaveDelayDuration(),
			ReorderDelay: cfg.Board.ReorderDelayDuration(),
		},
		log,
	)

	// 7. Restore a persisted session, if any
	if session, err := gateway.LoadSession(ctx); err == nil {
		user, _ := gateway.LoadUser(ctx)
		sessions.Restore(user, session)
		log.Info("Restored persisted session")
	} else if err != storage.ErrNotFound {
		log.Warn("Failed to restore session", zap.Error(err))
	}

	// 8. Setup HTTP server with Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(api.Recovery(log))
	router.Use(api.RequestLogger(log))
	router.Use(api.CORS())

	v1 := router.Group("/api/v1")
	api.SetupRoutes(v1, dispatcher, boards, sessions, log)

	handler := api.NewHandler(dispatcher, boards, sessions, log)
	router.GET("/health", handler.HealthCheck)

	stream := api.NewStreamHandler(eventBus, log)
	router.GET("/ws", stream.Stream)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	// 9. Run the server and the refresh monitor
	monitor := auth.NewMonitor(
		sessions,
		dispatcher,
		cfg.Auth.RefreshIntervalDuration(),
		cfg.Auth.RefreshThresholdDuration(),
		log,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := monitor.Run(gctx); err != nil && err != context.Canceled {
			return err
		}
		return nil
	})

	// 10. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case <-gctx.Done():
	}

	log.Info("Shutting down TaskFlow service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := g.Wait(); err != nil {
		log.Error("Service error", zap.Error(err))
	}

	log.Info("TaskFlow service stopped")
}
