// Package main is the one-shot channel ingestion CLI. It lists the configured
// channels, records new videos, enqueues processing jobs and prints a report.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/echotrace/backend/config"
	"github.com/echotrace/backend/internal/channels"
	"github.com/echotrace/backend/internal/ingest"
	"github.com/echotrace/backend/internal/jobs"
	"github.com/echotrace/backend/internal/media"
	"github.com/echotrace/backend/internal/videos"
	"github.com/echotrace/backend/pkg/database"
	"github.com/echotrace/backend/pkg/queue"
	"github.com/echotrace/backend/pkg/redis"
)

func main() {
	channelsArg := flag.String("channels", "", "comma-separated channel ids (default: CHANNEL_IDS env)")
	maxVideos := flag.Int("max-videos", 0, "max videos per channel (0 uses MAX_VIDEOS_PER_CHANNEL env)")
	dryRun := flag.Bool("dry-run", false, "report what would happen without writing")
	noNotify := flag.Bool("no-notify", false, "skip the Redis worker wake signal")
	flag.Parse()

	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	channelIDs := cfg.Ingest.ChannelIDs
	if *channelsArg != "" {
		channelIDs = splitTrim(*channelsArg)
	}
	if len(channelIDs) == 0 {
		fmt.Fprintln(os.Stderr, "no channels given: set -channels or CHANNEL_IDS")
		os.Exit(2)
	}
	limit := *maxVideos
	if limit <= 0 {
		limit = cfg.Ingest.MaxVideosPerChannel
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	var notifier ingest.JobNotifier
	if !*noNotify && !*dryRun {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Warn("worker wake signal disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			notifier = queue.NewNotifier(rdb.Client, logger)
		}
	}

	provider, err := media.NewProvider(cfg.Processing.WorkDir, cfg.Processing.SegmentSeconds, cfg.Processing.SampleRate, logger)
	if err != nil {
		logger.Fatal("media provider", zap.Error(err))
	}

	ingester := ingest.New(provider,
		channels.NewRepository(pool),
		videos.NewRepository(pool),
		jobs.NewRepository(pool),
		notifier,
		ingest.Config{
			MaxConcurrentChannels: cfg.Ingest.MaxConcurrentChannels,
			MaxRetries:            cfg.Ingest.MaxRetries,
			RetryDelay:            cfg.Ingest.RetryDelay,
		}, logger)

	p := mpb.New(mpb.WithWidth(64))
	bar := p.AddBar(int64(len(channelIDs)),
		mpb.PrependDecorators(
			decor.Name("Ingesting: "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
		),
	)
	ingester.SetProgressFunc(func(ingest.ChannelOutcome) { bar.Increment() })

	report := ingester.IngestAll(ctx, channelIDs, limit, *dryRun)
	p.Wait()

	printReport(report)
	if report.FailedCount() > 0 {
		os.Exit(1)
	}
}

func printReport(report *ingest.Report) {
	fmt.Printf("\ningestion finished in %s\n", report.FinishedAt.Sub(report.StartedAt).Round(1e8))
	for _, c := range report.Channels {
		if c.Error != "" {
			fmt.Printf("  %-24s FAILED after %d attempts: %s\n", c.ChannelID, c.Attempts, c.Error)
			continue
		}
		r := c.Report
		fmt.Printf("  %-24s fetched %d, created %d, updated %d, jobs %d\n",
			c.ChannelID, r.Fetched, r.Created, r.Updated, r.JobsCreated)
		for _, item := range r.Items {
			if item.Action == ingest.ActionFailed {
				fmt.Printf("      %s: %s\n", item.VideoID, item.Error)
			}
		}
	}
}

func splitTrim(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
