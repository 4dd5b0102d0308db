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
	"github.com/redis/go-redis/v9"

	"github.com/dllu1/go-chatroom/internal/cache"
	"github.com/dllu1/go-chatroom/internal/config"
	"github.com/dllu1/go-chatroom/internal/domain"
	"github.com/dllu1/go-chatroom/internal/handler"
	"github.com/dllu1/go-chatroom/internal/hub"
	"github.com/dllu1/go-chatroom/internal/registry"
	"github.com/dllu1/go-chatroom/internal/repository"
	"github.com/dllu1/go-chatroom/internal/service"
	"github.com/dllu1/go-chatroom/pkg/database"
	"github.com/dllu1/go-chatroom/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log)
	l := log.L()
	l.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting chatroom server")

	// Database
	db, err := database.New(&cfg.Database)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.AutoMigrate(db, &domain.UserModel{}, &domain.MessageModel{}); err != nil {
		l.Fatal().Err(err).Msg("failed to migrate database")
	}
	l.Info().Str("driver", cfg.Database.Driver).Msg("database ready")

	// Optional history cache
	var historyCache cache.HistoryCache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			l.Warn().Err(err).Msg("redis unreachable, history cache disabled")
		} else {
			historyCache = cache.NewRedisHistoryCache(rdb)
			l.Info().Str("address", cfg.Redis.Address).Msg("history cache enabled")
		}
	}

	// Core wiring
	reg := registry.New()
	wsHub := hub.NewHub(reg)

	userRepo := repository.NewGormUserRepository(db)
	msgRepo := repository.NewGormMessageRepository(db)

	userSvc := service.NewUserService(userRepo)
	chatSvc := service.NewChatService(wsHub, reg, msgRepo, historyCache, cfg.Redis.CacheTTL, cfg.Chat.HistoryLimit)

	httpHandler := handler.NewHandler(userSvc, reg, db)
	wsHandler := handler.NewWSHandler(wsHub, chatSvc, cfg.WebSocket)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(log.GinMiddleware(*l), gin.Recovery())

	httpHandler.RegisterRoutes(r)
	wsHandler.RegisterRoutes(r)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		l.Info().Str("addr", server.Addr).Msg("chatroom server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info().Msg("shutting down chatroom server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("server forced to shutdown")
	}

	l.Info().Msg("chatroom server stopped")
}
