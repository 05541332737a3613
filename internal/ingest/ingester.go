// Package ingest pulls channel video listings, records new videos and
// enqueues one processing job per unseen video. Channels are ingested under a
// concurrency gate with bounded per-channel retry; one failed channel never
// aborts the others.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/echotrace/backend/internal/media"
	"github.com/echotrace/backend/internal/models"
)

// viewCountDeltaThreshold is the fraction of the previous view count a delta
// must exceed before a metadata update is worth the write.
const viewCountDeltaThreshold = 0.1

// ChannelFetchError marks a failed channel listing. It is retried up to the
// configured limit, then the channel is reported failed and ingestion moves on.
type ChannelFetchError struct {
	ChannelID string
	Err       error
}

func (e *ChannelFetchError) Error() string {
	return fmt.Sprintf("fetch channel %s: %v", e.ChannelID, e.Err)
}

func (e *ChannelFetchError) Unwrap() error { return e.Err }

// VideoSource lists a channel's videos.
type VideoSource interface {
	ListVideos(ctx context.Context, channelID string, max int) ([]media.VideoInfo, error)
}

// ChannelStore persists channel records.
type ChannelStore interface {
	Upsert(ctx context.Context, externalID, displayName string, processedAt time.Time) (*models.Channel, error)
}

// VideoStore persists video records.
type VideoStore interface {
	GetByExternalID(ctx context.Context, externalID string) (*models.Video, error)
	Create(ctx context.Context, v *models.Video) error
	UpdateMetadata(ctx context.Context, id uuid.UUID, title, description string, duration float64, viewCount, likeCount int64) error
}

// JobStore creates processing jobs and answers idempotency checks.
type JobStore interface {
	Exists(ctx context.Context, jobType, targetID string, statuses []models.JobStatus) (bool, error)
	Create(ctx context.Context, j *models.ProcessingJob) error
}

// JobNotifier nudges the worker after a job is created. Optional.
type JobNotifier interface {
	NotifyJobCreated(ctx context.Context) error
}

// Config bounds the channel ingestion run.
type Config struct {
	MaxConcurrentChannels int
	MaxRetries            int
	RetryDelay            time.Duration
}

// Ingester drives channel ingestion against the repositories.
type Ingester struct {
	source   VideoSource
	channels ChannelStore
	videos   VideoStore
	jobs     JobStore
	notifier JobNotifier
	cfg      Config
	logger   *zap.Logger

	// onChannelDone, when set, observes every finished channel outcome.
	// Called from ingestion goroutines; must be safe for concurrent use.
	onChannelDone func(ChannelOutcome)
}

// SetProgressFunc registers a per-channel completion observer, e.g. a CLI
// progress bar. Must be called before IngestAll.
func (i *Ingester) SetProgressFunc(fn func(ChannelOutcome)) {
	i.onChannelDone = fn
}

// New creates an ingester. notifier may be nil.
func New(source VideoSource, channels ChannelStore, videos VideoStore, jobs JobStore, notifier JobNotifier, cfg Config, logger *zap.Logger) *Ingester {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConcurrentChannels < 1 {
		cfg.MaxConcurrentChannels = 1
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return &Ingester{
		source:   source,
		channels: channels,
		videos:   videos,
		jobs:     jobs,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// IngestChannel fetches up to maxVideos videos of one channel (maxVideos <= 0
// means unbounded, which is logged because it may run for a long time) and
// reconciles them against the video store. In dry-run mode nothing is written;
// the report shows what would have happened.
func (i *Ingester) IngestChannel(ctx context.Context, channelID string, maxVideos int, dryRun bool) (*ChannelReport, error) {
	channelID = strings.TrimSpace(channelID)
	report := &ChannelReport{ChannelID: channelID, DryRun: dryRun}
	if channelID == "" {
		return report, nil
	}
	if maxVideos <= 0 {
		i.logger.Warn("ingesting channel without a video limit", zap.String("channel_id", channelID))
	}

	listing, err := i.source.ListVideos(ctx, channelID, maxVideos)
	if err != nil {
		return nil, &ChannelFetchError{ChannelID: channelID, Err: err}
	}
	report.Fetched = len(listing)

	displayName := channelID
	for _, info := range listing {
		if info.ChannelName != "" {
			displayName = info.ChannelName
			break
		}
	}

	var channel *models.Channel
	if !dryRun {
		channel, err = i.channels.Upsert(ctx, channelID, displayName, time.Now())
		if err != nil {
			return nil, fmt.Errorf("upsert channel %s: %w", channelID, err)
		}
	}

	for _, info := range listing {
		item := i.reconcileVideo(ctx, channel, channelID, info, dryRun)
		report.add(item)
	}

	i.logger.Info("channel ingested",
		zap.String("channel_id", channelID),
		zap.Bool("dry_run", dryRun),
		zap.Int("fetched", report.Fetched),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("jobs_created", report.JobsCreated))
	return report, nil
}

func (i *Ingester) reconcileVideo(ctx context.Context, channel *models.Channel, channelID string, info media.VideoInfo, dryRun bool) ItemOutcome {
	existing, err := i.videos.GetByExternalID(ctx, info.ID)
	if err != nil {
		return ItemOutcome{VideoID: info.ID, Action: ActionFailed, Error: err.Error()}
	}

	if existing != nil {
		if !significantChange(existing, info) {
			return ItemOutcome{VideoID: info.ID, Action: ActionUnchanged}
		}
		if dryRun {
			i.logger.Info("dry run: would update video", zap.String("video_id", info.ID))
			return ItemOutcome{VideoID: info.ID, Action: ActionUpdated}
		}
		if err := i.videos.UpdateMetadata(ctx, existing.ID, info.Title, info.Description, info.Duration, info.ViewCount, info.LikeCount); err != nil {
			return ItemOutcome{VideoID: info.ID, Action: ActionFailed, Error: err.Error()}
		}
		return ItemOutcome{VideoID: info.ID, Action: ActionUpdated}
	}

	if dryRun {
		i.logger.Info("dry run: would create video and enqueue job", zap.String("video_id", info.ID))
		return ItemOutcome{VideoID: info.ID, Action: ActionCreated, JobCreated: true}
	}

	video := &models.Video{
		ExternalID:      info.ID,
		ChannelID:       channel.ID,
		Title:           info.Title,
		Description:     info.Description,
		DurationSeconds: info.Duration,
		ViewCount:       info.ViewCount,
		LikeCount:       info.LikeCount,
		UploadDate:      info.UploadDate,
		SourceURL:       info.URL,
		ThumbnailURL:    info.Thumbnail,
	}
	if err := i.videos.Create(ctx, video); err != nil {
		return ItemOutcome{VideoID: info.ID, Action: ActionFailed, Error: err.Error()}
	}

	jobCreated, err := i.enqueueJob(ctx, channelID, info)
	if err != nil {
		// The video record exists; a later ingestion run will enqueue the job.
		i.logger.Warn("video created but job enqueue failed",
			zap.String("video_id", info.ID), zap.Error(err))
		return ItemOutcome{VideoID: info.ID, Action: ActionCreated, Error: err.Error()}
	}
	return ItemOutcome{VideoID: info.ID, Action: ActionCreated, JobCreated: jobCreated}
}

// enqueueJob creates a video_process job unless one is already outstanding
// for this video. The repository check (backed by a partial unique index)
// guarantees at most one pending-or-running job per video.
func (i *Ingester) enqueueJob(ctx context.Context, channelID string, info media.VideoInfo) (bool, error) {
	outstanding, err := i.jobs.Exists(ctx, models.JobTypeVideoProcess, info.ID,
		[]models.JobStatus{models.JobStatusPending, models.JobStatusRunning})
	if err != nil {
		return false, fmt.Errorf("job existence check: %w", err)
	}
	if outstanding {
		return false, nil
	}

	params, err := models.VideoProcessParams{SourceURL: info.URL, ChannelID: channelID}.Encode()
	if err != nil {
		return false, err
	}
	job := &models.ProcessingJob{
		JobType:  models.JobTypeVideoProcess,
		TargetID: info.ID,
		Params:   params,
	}
	if err := i.jobs.Create(ctx, job); err != nil {
		return false, fmt.Errorf("create job: %w", err)
	}
	if i.notifier != nil {
		if err := i.notifier.NotifyJobCreated(ctx); err != nil {
			i.logger.Warn("job wake notification failed", zap.Error(err))
		}
	}
	return true, nil
}

// IngestAll ingests every channel under the concurrency gate. Each channel is
// attempted up to MaxRetries times with a fixed delay between attempts; a
// channel that exhausts its retries is reported failed without affecting the
// rest. Blank channel ids are skipped silently.
func (i *Ingester) IngestAll(ctx context.Context, channelIDs []string, maxVideos int, dryRun bool) *Report {
	report := &Report{StartedAt: time.Now()}

	sem := make(chan struct{}, i.cfg.MaxConcurrentChannels)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, raw := range channelIDs {
		channelID := strings.TrimSpace(raw)
		if channelID == "" {
			continue
		}
		wg.Add(1)
		go func(channelID string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				outcome := ChannelOutcome{ChannelID: channelID, Error: ctx.Err().Error()}
				mu.Lock()
				report.Channels = append(report.Channels, outcome)
				mu.Unlock()
				if i.onChannelDone != nil {
					i.onChannelDone(outcome)
				}
				return
			}

			outcome := i.ingestWithRetry(ctx, channelID, maxVideos, dryRun)
			mu.Lock()
			report.Channels = append(report.Channels, outcome)
			mu.Unlock()
			if i.onChannelDone != nil {
				i.onChannelDone(outcome)
			}
		}(channelID)
	}
	wg.Wait()

	report.FinishedAt = time.Now()
	i.logger.Info("ingestion run finished",
		zap.Int("channels", len(report.Channels)),
		zap.Int("failed", report.FailedCount()),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))
	return report
}

func (i *Ingester) ingestWithRetry(ctx context.Context, channelID string, maxVideos int, dryRun bool) ChannelOutcome {
	outcome := ChannelOutcome{ChannelID: channelID}
	for attempt := 1; attempt <= i.cfg.MaxRetries; attempt++ {
		outcome.Attempts = attempt
		report, err := i.IngestChannel(ctx, channelID, maxVideos, dryRun)
		if err == nil {
			outcome.Report = report
			outcome.Error = ""
			return outcome
		}
		outcome.Error = err.Error()
		i.logger.Warn("channel ingestion attempt failed",
			zap.String("channel_id", channelID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt == i.cfg.MaxRetries {
			break
		}
		select {
		case <-time.After(i.cfg.RetryDelay):
		case <-ctx.Done():
			outcome.Error = ctx.Err().Error()
			return outcome
		}
	}
	i.logger.Error("channel ingestion failed after retries",
		zap.String("channel_id", channelID),
		zap.Int("attempts", outcome.Attempts))
	return outcome
}

// significantChange applies the update policy: refresh metadata only when the
// view count moved by more than 10% of its previous value, or when the
// duration was unknown and is now known. Everything else is ignored to avoid
// write amplification.
func significantChange(existing *models.Video, info media.VideoInfo) bool {
	delta := info.ViewCount - existing.ViewCount
	if delta < 0 {
		delta = -delta
	}
	if float64(delta) > viewCountDeltaThreshold*float64(existing.ViewCount) {
		return true
	}
	if existing.DurationSeconds == 0 && info.Duration > 0 {
		return true
	}
	return false
}
