package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/renloop/chat-service/internal/auth"
	"github.com/renloop/chat-service/internal/bus"
	"github.com/renloop/chat-service/internal/cache"
	"github.com/renloop/chat-service/internal/config"
	"github.com/renloop/chat-service/internal/domain"
	"github.com/renloop/chat-service/internal/handler"
	"github.com/renloop/chat-service/internal/repository"
	"github.com/renloop/chat-service/internal/service"
	"github.com/renloop/chat-service/pkg/database"
	pkglog "github.com/renloop/chat-service/pkg/log"
	"github.com/renloop/chat-service/pkg/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		pkglog.L().Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(cfg.Log)
	logger := pkglog.L()

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal().Msg("auth.jwt_secret must be configured")
	}

	// Connect to database using GORM
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Auto-migrate
	if err := database.AutoMigrate(db, &domain.RoomModel{}, &domain.MessageModel{}, &domain.AttachmentModel{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Msg("database migration completed")

	// Initialize repositories
	roomRepo := repository.NewGormRoomRepository(db)
	messageRepo := repository.NewGormMessageRepository(db)

	// Initialize blob storage
	blobs, err := newStorage(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize blob storage")
	}
	logger.Info().Str("driver", cfg.Storage.Driver).Msg("blob storage ready")

	// Initialize broadcast bus
	eventBus, err := bus.New(cfg.Bus)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to event bus")
	}
	defer eventBus.Close()
	logger.Info().Str("driver", cfg.Bus.Driver).Msg("event bus connected")

	// Initialize history cache
	var historyCache cache.HistoryCache
	if cfg.Cache.Enabled {
		historyCache, err = cache.NewRedisHistoryCache(cfg.Cache.Redis, cfg.Cache.Prefix)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis cache")
		}
		defer historyCache.Close()
		logger.Info().Msg("history cache connected")
	}

	// Initialize service
	chatService := service.New(roomRepo, messageRepo, eventBus, blobs, historyCache, service.Options{
		HistoryCacheTTL: cfg.Cache.TTL,
		URLTTL:          cfg.Storage.URLTTL,
	})

	// Initialize token verifier
	verifier := auth.NewJWTVerifier(cfg.Auth.JWTSecret)

	// Initialize handlers
	httpHandler := handler.NewHTTPHandler(chatService, verifier)
	wsHandler := handler.NewWSHandler(chatService, eventBus, verifier, cfg.WebSocket)

	// Setup Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(*logger))

	httpHandler.RegisterRoutes(r)
	wsHandler.RegisterRoutes(r)

	// Start server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", addr).Str("db_driver", cfg.Database.Driver).Msg("chat-service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
}

func newStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.Storage.Driver {
	case "s3":
		return storage.NewS3Storage(context.Background(), cfg.Storage.S3)
	case "local", "":
		return storage.NewLocalStorage(cfg.Storage.Local)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Storage.Driver)
	}
}
