// Package processor drains pending video_process jobs and turns each video
// into a set of persisted audio fingerprints. Every claimed job reaches
// exactly one terminal status; a failure inside one job never takes down the
// drain loop or other jobs.
package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/echotrace/backend/internal/fingerprint"
	"github.com/echotrace/backend/internal/media"
	"github.com/echotrace/backend/internal/models"
)

var (
	// ErrVideoNotFound means the job targets a video record that does not
	// exist. Job-fatal.
	ErrVideoNotFound = errors.New("video not found")
)

// JobStore claims and transitions processing jobs.
type JobStore interface {
	ClaimPending(ctx context.Context, jobType string, limit int) ([]models.ProcessingJob, error)
	UpdateProgress(ctx context.Context, id uuid.UUID, progress float64, message string) error
	Complete(ctx context.Context, id uuid.UUID, message string) error
	Fail(ctx context.Context, id uuid.UUID, message string) error
}

// VideoStore resolves and flags target videos.
type VideoStore interface {
	GetByExternalID(ctx context.Context, externalID string) (*models.Video, error)
	MarkProcessingStarted(ctx context.Context, id uuid.UUID) error
	MarkProcessed(ctx context.Context, id uuid.UUID, success bool, errMsg string) error
}

// FingerprintStore persists extracted fingerprints.
type FingerprintStore interface {
	Create(ctx context.Context, fp *models.AudioFingerprint) error
}

// MediaProvider downloads a video's audio and splits it into fixed-length
// segments on disk.
type MediaProvider interface {
	DownloadAndSegment(ctx context.Context, url string) ([]media.Segment, error)
	SampleRate() int
}

// Archiver copies a segment file to durable storage before cleanup. Optional.
type Archiver interface {
	ArchiveSegment(ctx context.Context, key string, path string) error
}

// Config bounds a drain run.
type Config struct {
	BatchSize         int
	MaxConcurrentJobs int
	CleanupTempFiles  bool
}

// Processor runs the per-job fingerprinting pipeline.
type Processor struct {
	jobs         JobStore
	videos       VideoStore
	fingerprints FingerprintStore
	provider     MediaProvider
	archiver     Archiver
	cfg          Config
	logger       *zap.Logger

	// decode is swappable for tests; defaults to media.DecodePCM.
	decode func(ctx context.Context, path string, sampleRate int) ([]float64, error)
}

// New creates a processor. archiver may be nil.
func New(jobs JobStore, videos VideoStore, fingerprints FingerprintStore, provider MediaProvider, archiver Archiver, cfg Config, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 5
	}
	if cfg.MaxConcurrentJobs < 1 {
		cfg.MaxConcurrentJobs = 1
	}
	return &Processor{
		jobs:         jobs,
		videos:       videos,
		fingerprints: fingerprints,
		provider:     provider,
		archiver:     archiver,
		cfg:          cfg,
		logger:       logger,
		decode:       media.DecodePCM,
	}
}

// Drain claims and processes pending jobs in batches until none remain or the
// context is cancelled. Returns the number of jobs processed.
func (p *Processor) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		claimed, err := p.jobs.ClaimPending(ctx, models.JobTypeVideoProcess, p.cfg.BatchSize)
		if err != nil {
			return total, fmt.Errorf("claim pending jobs: %w", err)
		}
		if len(claimed) == 0 {
			return total, nil
		}

		sem := make(chan struct{}, p.cfg.MaxConcurrentJobs)
		var wg sync.WaitGroup
		for idx := range claimed {
			job := claimed[idx]
			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				p.ProcessJob(ctx, &job)
			}()
		}
		wg.Wait()
		total += len(claimed)
	}
}

// ProcessJob runs one claimed job to a terminal status. The job must already
// be in running state (ClaimPending does that); this method only ever ends it
// as completed or failed.
func (p *Processor) ProcessJob(ctx context.Context, job *models.ProcessingJob) {
	start := time.Now()
	logger := p.logger.With(
		zap.String("job_id", job.ID.String()),
		zap.String("video_external_id", job.TargetID))

	created, video, err := p.runPipeline(ctx, job, logger)
	if err != nil {
		logger.Error("job failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		if video != nil {
			if markErr := p.videos.MarkProcessed(ctx, video.ID, false, err.Error()); markErr != nil {
				logger.Error("mark video failed", zap.Error(markErr))
			}
		}
		if failErr := p.jobs.Fail(ctx, job.ID, err.Error()); failErr != nil {
			logger.Error("mark job failed", zap.Error(failErr))
		}
		return
	}

	if markErr := p.videos.MarkProcessed(ctx, video.ID, true, ""); markErr != nil {
		logger.Error("mark video processed", zap.Error(markErr))
	}
	msg := fmt.Sprintf("created %d fingerprints", created)
	if completeErr := p.jobs.Complete(ctx, job.ID, msg); completeErr != nil {
		logger.Error("mark job completed", zap.Error(completeErr))
	}
	logger.Info("job completed",
		zap.Int("fingerprints", created),
		zap.Duration("elapsed", time.Since(start)))
}

// runPipeline returns the fingerprint count on success. The returned video is
// non-nil as soon as the record was resolved, so the caller can flag it on
// failure paths too.
func (p *Processor) runPipeline(ctx context.Context, job *models.ProcessingJob, logger *zap.Logger) (int, *models.Video, error) {
	params, err := models.ParseVideoProcessParams(job.Params)
	if err != nil {
		return 0, nil, fmt.Errorf("job parameters: %w", err)
	}

	video, err := p.videos.GetByExternalID(ctx, job.TargetID)
	if err != nil {
		return 0, nil, fmt.Errorf("resolve video %s: %w", job.TargetID, err)
	}
	if video == nil {
		return 0, nil, fmt.Errorf("%w: %s", ErrVideoNotFound, job.TargetID)
	}

	if err := p.videos.MarkProcessingStarted(ctx, video.ID); err != nil {
		return 0, video, fmt.Errorf("mark processing started: %w", err)
	}
	p.progress(ctx, job.ID, 0.2, "downloading audio", logger)

	segments, err := p.provider.DownloadAndSegment(ctx, params.SourceURL)
	if err != nil {
		return 0, video, err
	}
	p.progress(ctx, job.ID, 0.5, fmt.Sprintf("fingerprinting %d segments", len(segments)), logger)

	created := 0
	for idx, seg := range segments {
		if err := ctx.Err(); err != nil {
			return created, video, err
		}
		if err := p.processSegment(ctx, video, seg); err != nil {
			// Partial fingerprinting is fine; one bad segment is
			// skipped and the rest still index.
			logger.Warn("segment skipped",
				zap.String("segment", seg.FilePath),
				zap.Float64("start_time", seg.StartTime),
				zap.Error(err))
		} else {
			created++
		}
		frac := 0.5 + 0.4*float64(idx+1)/float64(len(segments))
		p.progress(ctx, job.ID, frac, fmt.Sprintf("segment %d/%d", idx+1, len(segments)), logger)
	}
	return created, video, nil
}

func (p *Processor) processSegment(ctx context.Context, video *models.Video, seg media.Segment) error {
	if p.cfg.CleanupTempFiles {
		defer func() {
			if err := os.Remove(seg.FilePath); err != nil && !os.IsNotExist(err) {
				p.logger.Warn("segment cleanup failed",
					zap.String("segment", seg.FilePath), zap.Error(err))
			}
		}()
	}

	samples, err := p.decode(ctx, seg.FilePath, p.provider.SampleRate())
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	desc, err := fingerprint.Extract(samples, p.provider.SampleRate())
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	fp := &models.AudioFingerprint{
		VideoID:         video.ID,
		StartTime:       seg.StartTime,
		EndTime:         seg.EndTime,
		FingerprintHash: desc.Hash,
		Payload:         fingerprint.Serialize(desc),
		ConfidenceScore: desc.Confidence,
		PeakCount:       desc.PeakCount,
		SampleRate:      desc.SampleRate,
		SegmentLength:   seg.EndTime - seg.StartTime,
	}
	if err := p.fingerprints.Create(ctx, fp); err != nil {
		return fmt.Errorf("persist fingerprint: %w", err)
	}

	if p.archiver != nil {
		key := video.ExternalID + "/" + filepath.Base(seg.FilePath)
		if err := p.archiver.ArchiveSegment(ctx, key, seg.FilePath); err != nil {
			p.logger.Warn("segment archive failed",
				zap.String("segment", seg.FilePath), zap.Error(err))
		}
	}
	return nil
}

// progress failures are logged and ignored; they never fail a job.
func (p *Processor) progress(ctx context.Context, jobID uuid.UUID, frac float64, message string, logger *zap.Logger) {
	if err := p.jobs.UpdateProgress(ctx, jobID, frac, message); err != nil {
		logger.Warn("progress update failed", zap.Float64("progress", frac), zap.Error(err))
	}
}
