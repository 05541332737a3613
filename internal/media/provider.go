// Package media shells out to yt-dlp and ffmpeg to list channel videos and to
// turn a video URL into fixed-length mono audio segments.
package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VideoInfo is one entry of a channel listing.
type VideoInfo struct {
	ID          string
	ChannelName string
	Title       string
	Description string
	Duration    float64
	ViewCount   int64
	LikeCount   int64
	UploadDate  *time.Time
	URL         string
	Thumbnail   string
}

// Segment is a fixed-length, non-overlapping slice of a video's audio track,
// written to a temporary file. [StartTime, EndTime) is in seconds.
type Segment struct {
	FilePath  string
	StartTime float64
	EndTime   float64
}

// Provider lists channel videos and downloads/segments their audio.
type Provider struct {
	workDir        string
	segmentSeconds float64
	sampleRate     int
	logger         *zap.Logger
}

// NewProvider creates a media provider. workDir holds temporary downloads and
// segment files and is created if missing.
func NewProvider(workDir string, segmentSeconds float64, sampleRate int, logger *zap.Logger) (*Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	return &Provider{
		workDir:        workDir,
		segmentSeconds: segmentSeconds,
		sampleRate:     sampleRate,
		logger:         logger,
	}, nil
}

// ytdlpEntry is the subset of yt-dlp's per-video JSON this provider reads.
type ytdlpEntry struct {
	ID          string  `json:"id"`
	Channel     string  `json:"channel"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Duration    float64 `json:"duration"`
	ViewCount   int64   `json:"view_count"`
	LikeCount   int64   `json:"like_count"`
	UploadDate  string  `json:"upload_date"` // YYYYMMDD
	WebpageURL  string  `json:"webpage_url"`
	Thumbnail   string  `json:"thumbnail"`
}

// ListVideos fetches up to max videos of a channel (max <= 0 means all).
func (p *Provider) ListVideos(ctx context.Context, channelID string, max int) ([]VideoInfo, error) {
	args := []string{
		"--dump-json",
		"--ignore-errors",
		"--no-download",
	}
	if max > 0 {
		args = append(args, "--playlist-end", strconv.Itoa(max))
	}
	args = append(args, channelURL(channelID))

	cmd := exec.CommandContext(ctx, "yt-dlp", args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil && out.Len() == 0 {
		return nil, fmt.Errorf("yt-dlp list %s: %w (%s)", channelID, err, firstLine(stderr.Bytes()))
	}

	var videos []VideoInfo
	sc := bufio.NewScanner(&out)
	sc.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	for sc.Scan() {
		var e ytdlpEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil || e.ID == "" {
			continue
		}
		videos = append(videos, VideoInfo{
			ID:          e.ID,
			ChannelName: e.Channel,
			Title:       e.Title,
			Description: e.Description,
			Duration:    e.Duration,
			ViewCount:   e.ViewCount,
			LikeCount:   e.LikeCount,
			UploadDate:  parseUploadDate(e.UploadDate),
			URL:         e.WebpageURL,
			Thumbnail:   e.Thumbnail,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan yt-dlp output: %w", err)
	}
	return videos, nil
}

// DownloadAndSegment downloads a video's audio track and splits it into
// sequential, non-overlapping segments of segmentSeconds each. The caller owns
// the returned temp files; the intermediate download is always removed.
func (p *Provider) DownloadAndSegment(ctx context.Context, url string) ([]Segment, error) {
	base := uuid.New().String()
	audioPath := filepath.Join(p.workDir, base+".m4a")
	defer os.Remove(audioPath)

	cmd := exec.CommandContext(ctx, "yt-dlp",
		"-x", "--audio-format", "m4a",
		"--no-playlist",
		"-o", audioPath,
		url)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &DownloadError{URL: url, Err: fmt.Errorf("%w (%s)", err, firstLine(stderr.Bytes()))}
	}

	duration, err := ProbeDuration(ctx, audioPath)
	if err != nil {
		return nil, &SegmentationError{Path: audioPath, Err: err}
	}

	pattern := filepath.Join(p.workDir, base+"-%04d.wav")
	seg := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-i", audioPath,
		"-ac", "1",
		"-ar", strconv.Itoa(p.sampleRate),
		"-f", "segment",
		"-segment_time", strconv.FormatFloat(p.segmentSeconds, 'f', -1, 64),
		pattern)
	stderr.Reset()
	seg.Stderr = &stderr
	if err := seg.Run(); err != nil {
		return nil, &SegmentationError{Path: audioPath, Err: fmt.Errorf("%w (%s)", err, firstLine(stderr.Bytes()))}
	}

	paths, err := filepath.Glob(filepath.Join(p.workDir, base+"-*.wav"))
	if err != nil || len(paths) == 0 {
		return nil, &SegmentationError{Path: audioPath, Err: fmt.Errorf("no segments produced")}
	}
	sort.Strings(paths)

	segments := make([]Segment, 0, len(paths))
	for i, path := range paths {
		start := float64(i) * p.segmentSeconds
		end := start + p.segmentSeconds
		if end > duration {
			end = duration
		}
		segments = append(segments, Segment{FilePath: path, StartTime: start, EndTime: end})
	}
	p.logger.Debug("audio segmented",
		zap.String("url", url),
		zap.Int("segments", len(segments)),
		zap.Float64("duration", duration))
	return segments, nil
}

// SampleRate the provider segments and decodes at.
func (p *Provider) SampleRate() int { return p.sampleRate }

func channelURL(channelID string) string {
	return "https://www.youtube.com/channel/" + channelID + "/videos"
}

func parseUploadDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return nil
	}
	return &t
}

func firstLine(b []byte) string {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		b = b[:i]
	}
	return string(bytes.TrimSpace(b))
}
