package realtime

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/echotrace/backend/internal/fingerprint"
	"github.com/echotrace/backend/internal/models"
	"github.com/echotrace/backend/internal/videos"
)

const testSampleRate = 22050

func ramp(n int, from float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = from + float64(i)
	}
	return out
}

func sineMix(seconds float64, freqs ...float64) []float64 {
	n := int(seconds * testSampleRate)
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / testSampleRate
		for _, f := range freqs {
			out[i] += 0.4 * math.Sin(2*math.Pi*f*t)
		}
	}
	return out
}

func TestRingBufferEvictionAtCapacity(t *testing.T) {
	b := NewRingBuffer(10)
	b.Append(ramp(25, 0))

	if b.Len() != 10 {
		t.Fatalf("len = %d, want exactly capacity", b.Len())
	}
	snap := b.Snapshot()
	for i, v := range snap {
		if want := float64(15 + i); v != want {
			t.Fatalf("snapshot[%d] = %v, want %v (most recent samples only)", i, v, want)
		}
	}
}

func TestRingBufferPartialFill(t *testing.T) {
	b := NewRingBuffer(100)
	b.Append(ramp(3, 1))
	b.Append(ramp(2, 10))

	if b.Len() != 5 {
		t.Fatalf("len = %d, want 5", b.Len())
	}
	want := []float64{1, 2, 3, 10, 11}
	for i, v := range b.Snapshot() {
		if v != want[i] {
			t.Fatalf("snapshot = %v, want %v", b.Snapshot(), want)
		}
	}
}

func TestRingBufferSnapshotStable(t *testing.T) {
	b := NewRingBuffer(4)
	b.Append(ramp(4, 0))
	snap := b.Snapshot()
	b.Append(ramp(4, 100))
	if snap[0] != 0 || snap[3] != 3 {
		t.Fatalf("snapshot mutated by later append: %v", snap)
	}
}

func TestSessionHopGateBoundary(t *testing.T) {
	s := NewSession("s1", testSampleRate, 3.0, 0.5)

	// hop_size = 22050 * 0.5 = 11025
	s.AddSamples(make([]float64, 11024))
	if s.ShouldProcess() {
		t.Fatal("one sample short of the hop should not trigger")
	}
	s.AddSamples(make([]float64, 1))
	if !s.ShouldProcess() {
		t.Fatal("exactly hop_size samples should trigger")
	}
}

func TestSessionBufferCapacity(t *testing.T) {
	s := NewSession("s1", testSampleRate, 3.0, 0.5)
	s.AddSamples(make([]float64, 5*testSampleRate))
	if got, want := s.BufferLen(), 3*testSampleRate; got != want {
		t.Fatalf("buffer len = %d, want %d", got, want)
	}
}

type fakeIndex struct {
	entries []videos.IndexEntry
	err     error
	queried []uint64
}

func (f *fakeIndex) FindByHash(ctx context.Context, hash uint64, limit int) ([]videos.IndexEntry, error) {
	f.queried = append(f.queried, hash)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.entries) > limit {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

func entryFor(t *testing.T, samples []float64, videoID, title string, start float64) videos.IndexEntry {
	t.Helper()
	desc, err := fingerprint.Extract(samples, testSampleRate)
	if err != nil {
		t.Fatalf("extract index entry: %v", err)
	}
	return videos.IndexEntry{
		Fingerprint: models.AudioFingerprint{
			ID:              uuid.New(),
			VideoID:         uuid.New(),
			StartTime:       start,
			EndTime:         start + 30,
			FingerprintHash: desc.Hash,
			Payload:         fingerprint.Serialize(desc),
		},
		VideoExternalID: videoID,
		VideoTitle:      title,
	}
}

func TestMatcherRanksBySimilarity(t *testing.T) {
	window := sineMix(2.0, 440, 1200)
	index := &fakeIndex{entries: []videos.IndexEntry{
		entryFor(t, sineMix(2.0, 3000, 5000), "far", "Far", 60),
		entryFor(t, sineMix(2.0, 440, 1200), "near", "Near", 0),
	}}
	m := NewMatcher(index, 0, nil)

	matches, desc, err := m.Match(context.Background(), window, testSampleRate)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if desc == nil {
		t.Fatal("no descriptor returned")
	}
	if len(index.queried) != 1 || index.queried[0] != desc.Hash {
		t.Fatalf("index queried with %v, want [%d]", index.queried, desc.Hash)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}
	if matches[0].VideoExternalID != "near" {
		t.Fatalf("top match = %s, want the identical signal", matches[0].VideoExternalID)
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Similarity.Combined > matches[i-1].Similarity.Combined {
			t.Fatal("matches not sorted descending")
		}
	}
	for _, m := range matches {
		if m.Similarity.Combined < 0 || m.Similarity.Combined > 1 {
			t.Fatalf("score %v out of range", m.Similarity.Combined)
		}
	}
}

func TestMatcherMinScoreFloor(t *testing.T) {
	window := sineMix(2.0, 440, 1200)
	index := &fakeIndex{entries: []videos.IndexEntry{
		entryFor(t, sineMix(2.0, 3000, 5000), "far", "Far", 0),
	}}
	m := NewMatcher(index, 0.99, nil)

	matches, _, err := m.Match(context.Background(), window, testSampleRate)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("matches = %d, want dissimilar candidate filtered", len(matches))
	}
}

func TestMatcherSkipsCorruptPayload(t *testing.T) {
	window := sineMix(2.0, 440, 1200)
	good := entryFor(t, sineMix(2.0, 440, 1200), "good", "Good", 0)
	bad := good
	bad.Fingerprint.Payload = []byte("not a payload")
	bad.VideoExternalID = "bad"
	index := &fakeIndex{entries: []videos.IndexEntry{bad, good}}
	m := NewMatcher(index, 0, nil)

	matches, _, err := m.Match(context.Background(), window, testSampleRate)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(matches) != 1 || matches[0].VideoExternalID != "good" {
		t.Fatalf("matches = %+v, want only the readable entry", matches)
	}
}

func TestMatcherShortWindow(t *testing.T) {
	m := NewMatcher(&fakeIndex{}, 0, nil)
	_, _, err := m.Match(context.Background(), make([]float64, 16), testSampleRate)
	if !errors.Is(err, fingerprint.ErrShortBuffer) {
		t.Fatalf("err = %v, want ErrShortBuffer", err)
	}
}

func TestSessionProcessBufferStats(t *testing.T) {
	s := NewSession("s1", testSampleRate, 3.0, 0.5)
	index := &fakeIndex{}
	m := NewMatcher(index, 0, nil)

	s.AddSamples(sineMix(1.0, 440, 1200))
	if !s.ShouldProcess() {
		t.Fatal("one second of audio should pass the hop gate")
	}
	matches, stats, err := s.ProcessBuffer(context.Background(), m)
	if err != nil {
		t.Fatalf("ProcessBuffer: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("matches against empty index = %d", len(matches))
	}
	if stats.SamplesProcessed != int64(testSampleRate) {
		t.Fatalf("samples processed = %d, want %d", stats.SamplesProcessed, testSampleRate)
	}
	if stats.BufferSize != testSampleRate {
		t.Fatalf("buffer size = %d, want %d", stats.BufferSize, testSampleRate)
	}
	if s.ShouldProcess() {
		t.Fatal("hop gate should reset after processing")
	}
}

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry(testSampleRate, 3.0, 0.5, nil)

	if r.Get("s1") != nil {
		t.Fatal("unknown session should be nil")
	}
	s := r.GetOrCreate("s1")
	if s == nil || r.Len() != 1 {
		t.Fatalf("session not created, len = %d", r.Len())
	}
	if r.GetOrCreate("s1") != s {
		t.Fatal("GetOrCreate must return the existing session")
	}
	if s.LastActivity().IsZero() {
		t.Fatal("LastActivity unset")
	}

	r.Destroy("s1")
	if r.Len() != 0 || r.Get("s1") != nil {
		t.Fatal("session not destroyed")
	}
	r.Destroy("s1") // unknown id is a no-op
}

func TestDecodeChunk(t *testing.T) {
	// two float32 values 1.0 and -0.5, little endian, plus a trailing
	// partial value that must be dropped
	data := []byte{0x00, 0x00, 0x80, 0x3f, 0x00, 0x00, 0x00, 0xbf, 0xaa}
	samples := decodeChunk(data)
	if len(samples) != 2 {
		t.Fatalf("samples = %d, want 2", len(samples))
	}
	if samples[0] != 1.0 || samples[1] != -0.5 {
		t.Fatalf("samples = %v", samples)
	}
}
