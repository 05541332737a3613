// Package main runs the fingerprint API server: REST surface for channels,
// videos and jobs plus the live-audio matching WebSocket.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/echotrace/backend/config"
	"github.com/echotrace/backend/internal/channels"
	"github.com/echotrace/backend/internal/ingest"
	"github.com/echotrace/backend/internal/jobs"
	"github.com/echotrace/backend/internal/media"
	"github.com/echotrace/backend/internal/middleware"
	"github.com/echotrace/backend/internal/realtime"
	"github.com/echotrace/backend/internal/videos"
	"github.com/echotrace/backend/pkg/database"
	"github.com/echotrace/backend/pkg/queue"
	"github.com/echotrace/backend/pkg/redis"
	"github.com/echotrace/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	provider, err := media.NewProvider(cfg.Processing.WorkDir, cfg.Processing.SegmentSeconds, cfg.Processing.SampleRate, logger)
	if err != nil {
		logger.Fatal("media provider", zap.Error(err))
	}

	channelRepo := channels.NewRepository(pool)
	videoRepo := videos.NewRepository(pool)
	fingerprintRepo := videos.NewFingerprintRepository(pool)
	jobRepo := jobs.NewRepository(pool)
	notifier := queue.NewNotifier(rdb.Client, logger)

	ingester := ingest.New(provider, channelRepo, videoRepo, jobRepo, notifier, ingest.Config{
		MaxConcurrentChannels: cfg.Ingest.MaxConcurrentChannels,
		MaxRetries:            cfg.Ingest.MaxRetries,
		RetryDelay:            cfg.Ingest.RetryDelay,
	}, logger)

	channelHandler := channels.NewHandler(channelRepo, ingester, logger)
	videoHandler := videos.NewHandler(videoRepo, fingerprintRepo, logger)
	jobHandler := jobs.NewHandler(jobRepo, logger)

	registry := realtime.NewRegistry(cfg.Streaming.SampleRate, cfg.Streaming.BufferDuration, cfg.Streaming.HopDuration, logger)
	matcher := realtime.NewMatcher(fingerprintRepo, cfg.Streaming.MinMatchScore, logger)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Channels and ingestion
	router.GET("/channels", channelHandler.List)
	router.POST("/channels/ingest", channelHandler.Ingest)
	router.POST("/channels/:external_id/ingest", channelHandler.IngestOne)

	// Videos and fingerprints
	router.GET("/videos", videoHandler.ListByChannel)
	router.GET("/videos/:id", videoHandler.Get)
	router.GET("/videos/:id/fingerprints", videoHandler.ListFingerprints)

	// Jobs
	router.GET("/jobs", jobHandler.List)
	router.GET("/jobs/:id", jobHandler.Get)

	// Live audio matching (binary float32 PCM in, match events out) and
	// read-only observers following a session's matches via pub/sub
	router.GET("/ws/listen", realtime.ServeWs(registry, matcher, redisPubSub, logger))
	router.GET("/ws/follow/:session_id", realtime.ServeFollow(redisPubSub, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
