// Package storage archives processed segment audio to S3 so fingerprints can
// be re-extracted later without re-downloading the source video.
package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// FolderSegments is the S3 prefix for segment audio objects.
const FolderSegments = "segments"

// S3Config holds S3 client configuration.
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SegmentsBucket  string
}

// S3 provides segment archival against one bucket.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      S3Config
	logger   *zap.Logger
}

// NewS3 creates an S3 client using credentials from config or the default
// AWS credential chain.
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
	} else {
		logger.Warn("S3 client using default credential chain (AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY not set)")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
	})
	return &S3{client: client, uploader: uploader, cfg: cfg, logger: logger}, nil
}

// SegmentKey returns the object key: segments/{key}.
func SegmentKey(key string) string {
	return path.Join(FolderSegments, key)
}

// ArchiveSegment uploads a local segment file under segments/{key}. The local
// file is left in place; cleanup is the caller's policy.
func (s *S3) ArchiveSegment(ctx context.Context, key string, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open segment: %w", err)
	}
	defer f.Close()

	start := time.Now()
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.SegmentsBucket),
		Key:         aws.String(SegmentKey(key)),
		Body:        f,
		ContentType: aws.String("audio/mp4"),
	})
	if err != nil {
		return fmt.Errorf("upload segment: %w", err)
	}
	s.logger.Debug("segment archived",
		zap.String("key", SegmentKey(key)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// DeleteSegment removes an archived segment object.
func (s *S3) DeleteSegment(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.SegmentsBucket),
		Key:    aws.String(SegmentKey(key)),
	})
	if err != nil {
		return fmt.Errorf("delete segment: %w", err)
	}
	return nil
}

// ObjectURL returns the object's non-signed URL.
func (s *S3) ObjectURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.SegmentsBucket, s.cfg.Region, SegmentKey(key))
}
