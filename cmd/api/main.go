package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-feed/internal/bus"
	"chat-feed/internal/config"
	"chat-feed/internal/db"
	"chat-feed/internal/history"
	apihttp "chat-feed/internal/http"
	"chat-feed/internal/metrics"
	"chat-feed/internal/presence"
	"chat-feed/internal/repository"
	"chat-feed/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	var messageRepo repository.MessageRepository
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()
		if err := db.Ping(ctx, pool); err != nil {
			logger.Fatal("db ping", zap.Error(err))
		}
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
		messageRepo = repository.NewPgMessageRepository(pool)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory message store")
		messageRepo = repository.NewMemoryMessageRepository()
	}

	collector := metrics.New()
	events := bus.New(logger, cfg.BusInboxSize).WithObserver(collector)
	defer events.Shutdown()

	typing := presence.NewBroadcaster(logger, events, cfg.TypingTimeout)
	go typing.Run(ctx, cfg.TypingSweepInterval)

	pages := history.NewStorePaginator(logger, messageRepo, cfg.PageSizeDefault, cfg.PageSizeMax)

	opts := []service.ChatServiceOption{
		service.WithPostObserver(collector),
		service.WithMessageMaxLength(cfg.MessageMaxLength),
	}
	var postLimiter service.PostRateLimiter
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, running single instance", zap.Error(err))
		} else {
			bridge := bus.NewRedisBridge(logger, redisClient, cfg.RedisChannel, events, typing)
			go func() {
				if err := bridge.Run(ctx); err != nil {
					logger.Error("redis bridge stopped", zap.Error(err))
				}
			}()
			opts = append(opts, service.WithRelay(bridge))
			postLimiter = service.NewRedisPostRateLimiter(redisClient, cfg.PostRateWindow, cfg.PostRateLimit)
		}
		cancel()
	}
	if postLimiter == nil {
		postLimiter = service.NewPostRateLimiter(cfg.PostRateWindow, cfg.PostRateLimit)
	}
	opts = append(opts, service.WithPostRateLimiter(postLimiter))

	chatSvc := service.NewChatService(logger, messageRepo, pages, events, typing, opts...)

	jwtSvc := service.NewJWTService(cfg.JWTSecret, time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute)
	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured")
	}

	chatHandler := apihttp.NewChatHandler(logger, chatSvc)
	streamHandler := apihttp.NewStreamHandler(logger, chatSvc)
	router := apihttp.NewRouter(logger, jwtSvc, chatHandler, streamHandler, collector.Handler())

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		events.Shutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
