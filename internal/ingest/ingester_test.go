package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/echotrace/backend/internal/media"
	"github.com/echotrace/backend/internal/models"
)

type fakeSource struct {
	mu       sync.Mutex
	listings map[string][]media.VideoInfo
	failures map[string]int // remaining failures per channel
	calls    int
	active   int
	maxSeen  int
	delay    time.Duration
}

func (s *fakeSource) ListVideos(ctx context.Context, channelID string, max int) ([]media.VideoInfo, error) {
	s.mu.Lock()
	s.calls++
	s.active++
	if s.active > s.maxSeen {
		s.maxSeen = s.active
	}
	remaining := s.failures[channelID]
	if remaining > 0 {
		s.failures[channelID] = remaining - 1
	}
	listing := s.listings[channelID]
	s.mu.Unlock()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	s.active--
	s.mu.Unlock()

	if remaining > 0 {
		return nil, fmt.Errorf("listing unavailable for %s", channelID)
	}
	return listing, nil
}

type fakeChannels struct {
	mu      sync.Mutex
	upserts int
}

func (c *fakeChannels) Upsert(ctx context.Context, externalID, displayName string, processedAt time.Time) (*models.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upserts++
	return &models.Channel{ID: uuid.New(), ExternalID: externalID, DisplayName: displayName}, nil
}

type fakeVideos struct {
	mu      sync.Mutex
	byExtID map[string]*models.Video
	created []string
	updated []string
}

func newFakeVideos() *fakeVideos {
	return &fakeVideos{byExtID: make(map[string]*models.Video)}
}

func (v *fakeVideos) GetByExternalID(ctx context.Context, externalID string) (*models.Video, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.byExtID[externalID], nil
}

func (v *fakeVideos) Create(ctx context.Context, video *models.Video) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	video.ID = uuid.New()
	v.byExtID[video.ExternalID] = video
	v.created = append(v.created, video.ExternalID)
	return nil
}

func (v *fakeVideos) UpdateMetadata(ctx context.Context, id uuid.UUID, title, description string, duration float64, viewCount, likeCount int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, video := range v.byExtID {
		if video.ID == id {
			video.Title = title
			video.Description = description
			video.DurationSeconds = duration
			video.ViewCount = viewCount
			video.LikeCount = likeCount
			v.updated = append(v.updated, video.ExternalID)
			return nil
		}
	}
	return errors.New("video not found")
}

type fakeJobs struct {
	mu   sync.Mutex
	jobs []*models.ProcessingJob
}

func (j *fakeJobs) Exists(ctx context.Context, jobType, targetID string, statuses []models.JobStatus) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, job := range j.jobs {
		if job.JobType != jobType || job.TargetID != targetID {
			continue
		}
		for _, s := range statuses {
			if job.Status == s {
				return true, nil
			}
		}
	}
	return false, nil
}

func (j *fakeJobs) Create(ctx context.Context, job *models.ProcessingJob) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	job.ID = uuid.New()
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	j.jobs = append(j.jobs, job)
	return nil
}

func (j *fakeJobs) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.jobs)
}

func video(id string, views int64, duration float64) media.VideoInfo {
	return media.VideoInfo{
		ID:          id,
		ChannelName: "Test Channel",
		Title:       "title " + id,
		Duration:    duration,
		ViewCount:   views,
		URL:         "https://example.com/watch?v=" + id,
	}
}

func newTestIngester(src *fakeSource, videos *fakeVideos, jobs *fakeJobs, cfg Config) *Ingester {
	return New(src, &fakeChannels{}, videos, jobs, nil, cfg, nil)
}

func TestIngestChannelCreatesVideosAndJobs(t *testing.T) {
	src := &fakeSource{listings: map[string][]media.VideoInfo{
		"CH1": {video("v1", 100, 60), video("v2", 200, 120)},
	}}
	videos := newFakeVideos()
	jobs := &fakeJobs{}
	ing := newTestIngester(src, videos, jobs, Config{})

	report, err := ing.IngestChannel(context.Background(), "CH1", 10, false)
	if err != nil {
		t.Fatalf("IngestChannel: %v", err)
	}
	if report.Fetched != 2 || report.Created != 2 || report.JobsCreated != 2 {
		t.Fatalf("report = %+v, want 2 fetched/created/jobs", report)
	}
	if jobs.count() != 2 {
		t.Fatalf("jobs created = %d, want 2", jobs.count())
	}
	for _, job := range jobs.jobs {
		params, err := models.ParseVideoProcessParams(job.Params)
		if err != nil {
			t.Fatalf("job params: %v", err)
		}
		if params.ChannelID != "CH1" || params.SourceURL == "" {
			t.Fatalf("params = %+v", params)
		}
	}
}

func TestIngestChannelIdempotentJobs(t *testing.T) {
	src := &fakeSource{listings: map[string][]media.VideoInfo{
		"CH1": {video("v1", 100, 60)},
	}}
	videos := newFakeVideos()
	jobs := &fakeJobs{}
	ing := newTestIngester(src, videos, jobs, Config{})

	ctx := context.Background()
	if _, err := ing.IngestChannel(ctx, "CH1", 10, false); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	// Bump view count past the significance threshold so the second run
	// takes the update path, which must not enqueue another job while one
	// is still pending.
	src.listings["CH1"] = []media.VideoInfo{video("v1", 200, 60)}
	report, err := ing.IngestChannel(ctx, "CH1", 10, false)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if report.Updated != 1 || report.Created != 0 {
		t.Fatalf("second report = %+v, want one update", report)
	}
	if jobs.count() != 1 {
		t.Fatalf("jobs = %d, want 1", jobs.count())
	}
}

func TestIngestChannelMixedListing(t *testing.T) {
	src := &fakeSource{listings: map[string][]media.VideoInfo{
		"CH1": {video("old", 1000, 60)},
	}}
	videos := newFakeVideos()
	jobs := &fakeJobs{}
	ing := newTestIngester(src, videos, jobs, Config{})

	ctx := context.Background()
	if _, err := ing.IngestChannel(ctx, "CH1", 10, false); err != nil {
		t.Fatalf("seed ingest: %v", err)
	}
	if jobs.count() != 1 {
		t.Fatalf("seed jobs = %d, want 1", jobs.count())
	}
	seed := jobs.jobs[0]
	seedID, seedStatus := seed.ID, seed.Status

	// Re-list with the known video drifted below the significance threshold
	// alongside one unseen video: only the unseen one should produce a video
	// record and a job, and the outstanding seed job must not be touched.
	src.listings["CH1"] = []media.VideoInfo{video("old", 1050, 60), video("new", 10, 30)}
	report, err := ing.IngestChannel(ctx, "CH1", 10, false)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if report.Fetched != 2 || report.Created != 1 || report.Updated != 0 || report.JobsCreated != 1 {
		t.Fatalf("report = %+v, want 1 created, 0 updated, 1 job", report)
	}
	if jobs.count() != 2 {
		t.Fatalf("jobs = %d, want 2", jobs.count())
	}
	if seed.ID != seedID || seed.Status != seedStatus {
		t.Fatalf("pre-existing job changed: id=%s status=%s", seed.ID, seed.Status)
	}
	found := false
	for _, job := range jobs.jobs {
		if job.ID != seedID {
			found = true
			if job.TargetID != "new" {
				t.Fatalf("new job targets %q, want %q", job.TargetID, "new")
			}
		}
	}
	if !found {
		t.Fatal("no job created for the unseen video")
	}
}

func TestSignificantChangeBoundary(t *testing.T) {
	existing := &models.Video{ViewCount: 1000, DurationSeconds: 60}

	cases := []struct {
		name string
		info media.VideoInfo
		want bool
	}{
		{"nine percent delta", video("v", 1090, 60), false},
		{"exactly ten percent", video("v", 1100, 60), false},
		{"eleven percent delta", video("v", 1110, 60), true},
		{"eleven percent drop", video("v", 890, 60), true},
		{"unchanged", video("v", 1000, 60), false},
	}
	for _, tc := range cases {
		if got := significantChange(existing, tc.info); got != tc.want {
			t.Errorf("%s: significantChange = %v, want %v", tc.name, got, tc.want)
		}
	}

	noDuration := &models.Video{ViewCount: 1000, DurationSeconds: 0}
	if !significantChange(noDuration, video("v", 1000, 60)) {
		t.Error("duration becoming known should be significant")
	}
	if significantChange(noDuration, video("v", 1000, 0)) {
		t.Error("duration staying unknown should not be significant")
	}
}

func TestIngestChannelBlankID(t *testing.T) {
	ing := newTestIngester(&fakeSource{}, newFakeVideos(), &fakeJobs{}, Config{})
	report, err := ing.IngestChannel(context.Background(), "   ", 10, false)
	if err != nil {
		t.Fatalf("blank channel: %v", err)
	}
	if report.Fetched != 0 || len(report.Items) != 0 {
		t.Fatalf("report = %+v, want empty", report)
	}
}

func TestIngestChannelDryRun(t *testing.T) {
	src := &fakeSource{listings: map[string][]media.VideoInfo{
		"CH1": {video("v1", 100, 60)},
	}}
	videos := newFakeVideos()
	jobs := &fakeJobs{}
	channels := &fakeChannels{}
	ing := New(src, channels, videos, jobs, nil, Config{}, nil)

	report, err := ing.IngestChannel(context.Background(), "CH1", 10, true)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if report.Created != 1 || report.JobsCreated != 1 {
		t.Fatalf("dry-run report = %+v, want counters without writes", report)
	}
	if len(videos.created) != 0 || jobs.count() != 0 || channels.upserts != 0 {
		t.Fatal("dry run must not write")
	}
}

func TestIngestAllConcurrencyGate(t *testing.T) {
	listings := make(map[string][]media.VideoInfo)
	var ids []string
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("CH%d", i)
		ids = append(ids, id)
		listings[id] = []media.VideoInfo{video(fmt.Sprintf("v%d", i), 10, 30)}
	}
	src := &fakeSource{listings: listings, delay: 20 * time.Millisecond}
	ing := newTestIngester(src, newFakeVideos(), &fakeJobs{}, Config{MaxConcurrentChannels: 2})

	report := ing.IngestAll(context.Background(), ids, 10, false)
	if len(report.Channels) != 5 {
		t.Fatalf("channels reported = %d, want 5", len(report.Channels))
	}
	if report.FailedCount() != 0 {
		t.Fatalf("failed = %d, want 0", report.FailedCount())
	}
	if src.maxSeen > 2 {
		t.Fatalf("concurrent listings = %d, want at most 2", src.maxSeen)
	}
}

func TestIngestAllRetryAndIsolation(t *testing.T) {
	src := &fakeSource{
		listings: map[string][]media.VideoInfo{
			"GOOD":  {video("g1", 100, 60)},
			"FLAKY": {video("f1", 100, 60)},
		},
		failures: map[string]int{
			"FLAKY": 1, // succeeds on the second attempt
			"DEAD":  10,
		},
	}
	jobs := &fakeJobs{}
	ing := newTestIngester(src, newFakeVideos(), jobs, Config{
		MaxConcurrentChannels: 1,
		MaxRetries:            3,
		RetryDelay:            time.Millisecond,
	})

	report := ing.IngestAll(context.Background(), []string{"GOOD", "FLAKY", "DEAD", ""}, 10, false)
	if len(report.Channels) != 3 {
		t.Fatalf("channels reported = %d, want 3 (blank skipped)", len(report.Channels))
	}
	if report.FailedCount() != 1 {
		t.Fatalf("failed = %d, want 1", report.FailedCount())
	}
	for _, c := range report.Channels {
		switch c.ChannelID {
		case "GOOD":
			if c.Error != "" || c.Attempts != 1 {
				t.Errorf("GOOD = %+v", c)
			}
		case "FLAKY":
			if c.Error != "" || c.Attempts != 2 {
				t.Errorf("FLAKY = %+v, want success on attempt 2", c)
			}
		case "DEAD":
			if c.Error == "" || c.Attempts != 3 {
				t.Errorf("DEAD = %+v, want 3 failed attempts", c)
			}
		}
	}
	if jobs.count() != 2 {
		t.Fatalf("jobs = %d, want 2", jobs.count())
	}
}

func TestIngestChannelFetchErrorWrapped(t *testing.T) {
	src := &fakeSource{failures: map[string]int{"CH1": 1}}
	ing := newTestIngester(src, newFakeVideos(), &fakeJobs{}, Config{})

	_, err := ing.IngestChannel(context.Background(), "CH1", 10, false)
	var fetchErr *ChannelFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("err = %v, want *ChannelFetchError", err)
	}
	if fetchErr.ChannelID != "CH1" {
		t.Fatalf("ChannelID = %q", fetchErr.ChannelID)
	}
}
