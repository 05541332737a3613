// Package main runs the background worker: drains pending video_process jobs
// and fingerprints their audio. Sleeps on the Redis wake signal between
// drains, with a poll interval as a safety net.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/echotrace/backend/config"
	"github.com/echotrace/backend/internal/jobs"
	"github.com/echotrace/backend/internal/media"
	"github.com/echotrace/backend/internal/processor"
	"github.com/echotrace/backend/internal/videos"
	"github.com/echotrace/backend/pkg/database"
	"github.com/echotrace/backend/pkg/queue"
	"github.com/echotrace/backend/pkg/redis"
	"github.com/echotrace/backend/pkg/storage"
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

	var archiver processor.Archiver
	if cfg.AWS.SegmentsBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			SegmentsBucket:  cfg.AWS.SegmentsBucket,
		}, logger)
		if err != nil {
			logger.Warn("segment archival disabled", zap.Error(err))
		} else {
			archiver = s3Client
		}
	}

	jobRepo := jobs.NewRepository(pool)
	videoRepo := videos.NewRepository(pool)
	fingerprintRepo := videos.NewFingerprintRepository(pool)
	notifier := queue.NewNotifier(rdb.Client, logger)

	proc := processor.New(jobRepo, videoRepo, fingerprintRepo, provider, archiver, processor.Config{
		BatchSize:         cfg.Processing.BatchSize,
		MaxConcurrentJobs: cfg.Processing.MaxConcurrentJobs,
		CleanupTempFiles:  cfg.Processing.CleanupTempFiles,
	}, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		cancel()
	}()

	logger.Info("worker started")
	for {
		processed, err := proc.Drain(workerCtx)
		if err != nil {
			if workerCtx.Err() != nil {
				break
			}
			logger.Error("drain failed", zap.Error(err))
		} else if processed > 0 {
			logger.Info("drain finished", zap.Int("jobs", processed))
		}

		// Block on the wake signal; the poll interval catches jobs whose
		// notification was lost.
		if _, err := notifier.WaitForJob(workerCtx, cfg.Processing.PollInterval); err != nil {
			if workerCtx.Err() != nil {
				break
			}
			logger.Warn("wake wait failed", zap.Error(err))
		}
		if workerCtx.Err() != nil {
			break
		}
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
