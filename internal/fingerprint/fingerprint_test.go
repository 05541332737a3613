package fingerprint

import (
	"errors"
	"math"
	"testing"
)

const testSampleRate = 22050

// sineMix renders a mono test tone from the given frequencies.
func sineMix(freqs []float64, seconds float64) []float64 {
	n := int(seconds * testSampleRate)
	out := make([]float64, n)
	for _, f := range freqs {
		for i := 0; i < n; i++ {
			out[i] += 0.5 * math.Sin(2*math.Pi*f*float64(i)/testSampleRate)
		}
	}
	return out
}

func mustExtract(t *testing.T, freqs []float64) *Descriptor {
	t.Helper()
	d, err := Extract(sineMix(freqs, 2.0), testSampleRate)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	return d
}

func TestExtractShortBuffer(t *testing.T) {
	_, err := Extract(make([]float64, FrameSize-1), testSampleRate)
	if err == nil {
		t.Fatal("expected error for short buffer")
	}
	if !errors.Is(err, ErrShortBuffer) {
		t.Errorf("expected ErrShortBuffer, got %v", err)
	}
	var extErr *ExtractionError
	if !errors.As(err, &extErr) {
		t.Errorf("expected *ExtractionError, got %T", err)
	}
}

func TestExtractSilence(t *testing.T) {
	_, err := Extract(make([]float64, testSampleRate), testSampleRate)
	if !errors.Is(err, ErrNoPeaks) {
		t.Fatalf("expected ErrNoPeaks for silence, got %v", err)
	}
}

func TestExtractDeterministic(t *testing.T) {
	a := mustExtract(t, []float64{440, 880})
	b := mustExtract(t, []float64{440, 880})
	if !a.Equal(b) {
		t.Error("same input produced different descriptors")
	}
}

func TestExtractDescriptorShape(t *testing.T) {
	d := mustExtract(t, []float64{440, 1320})
	if len(d.Bands) != NumBands {
		t.Errorf("expected %d bands, got %d", NumBands, len(d.Bands))
	}
	if d.PeakCount == 0 {
		t.Error("expected nonzero peak count")
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		t.Errorf("confidence out of range: %v", d.Confidence)
	}
	if d.SampleRate != testSampleRate {
		t.Errorf("sample rate not carried: %d", d.SampleRate)
	}
	for i := 1; i < len(d.Landmarks); i++ {
		if d.Landmarks[i-1] >= d.Landmarks[i] {
			t.Fatal("landmarks not sorted and deduplicated")
		}
	}
}

func TestRoundTrip(t *testing.T) {
	cases := []*Descriptor{
		mustExtract(t, []float64{440}),
		mustExtract(t, []float64{440, 880, 1760}),
		{Hash: 42, PeakCount: 1, Confidence: 0.5, SampleRate: 8000, Bands: []float64{1, 0, 0.25}, Landmarks: nil},
	}
	for i, d := range cases {
		got, err := Deserialize(Serialize(d))
		if err != nil {
			t.Fatalf("case %d: deserialize: %v", i, err)
		}
		if !got.Equal(d) {
			t.Errorf("case %d: round trip not lossless", i)
		}
	}
}

func TestDeserializeMalformed(t *testing.T) {
	cases := [][]byte{
		nil,
		{1, 2, 3},
		make([]byte, 64), // zero magic
	}
	for i, raw := range cases {
		if _, err := Deserialize(raw); !errors.Is(err, ErrBadPayload) {
			t.Errorf("case %d: expected ErrBadPayload, got %v", i, err)
		}
	}
	// Truncated tail of a valid payload.
	valid := Serialize(mustExtract(t, []float64{440}))
	if _, err := Deserialize(valid[:len(valid)-3]); !errors.Is(err, ErrBadPayload) {
		t.Errorf("truncated payload: expected ErrBadPayload, got %v", err)
	}
}

func TestCompareRangeAndSelfSimilarity(t *testing.T) {
	set := []*Descriptor{
		mustExtract(t, []float64{440}),
		mustExtract(t, []float64{440, 880}),
		mustExtract(t, []float64{1000, 3000}),
		mustExtract(t, []float64{250, 2500, 5000}),
	}
	for _, a := range set {
		self := Compare(a, a)
		if self.Combined < 0 || self.Combined > 1 {
			t.Fatalf("self score out of range: %v", self.Combined)
		}
		for _, b := range set {
			s := Compare(a, b)
			if s.Combined < 0 || s.Combined > 1 {
				t.Fatalf("score out of range: %v", s.Combined)
			}
			if a != b && s.Combined > self.Combined+1e-9 {
				t.Errorf("distinct descriptor scored above self-similarity: %v > %v", s.Combined, self.Combined)
			}
		}
	}
}

func TestCompareCommutative(t *testing.T) {
	a := mustExtract(t, []float64{440, 880})
	b := mustExtract(t, []float64{523, 1046})
	ab := Compare(a, b)
	ba := Compare(b, a)
	if math.Abs(ab.Combined-ba.Combined) > 1e-12 {
		t.Errorf("compare not commutative: %v vs %v", ab.Combined, ba.Combined)
	}
}

func TestCompareDissimilarScoresLower(t *testing.T) {
	a := mustExtract(t, []float64{440, 880})
	near := mustExtract(t, []float64{440, 880, 1320})
	far := mustExtract(t, []float64{3000, 7000})
	if Compare(a, near).Combined <= Compare(a, far).Combined {
		t.Error("acoustically closer descriptor did not score higher")
	}
}

func TestLandmarkOverlapEdgeCases(t *testing.T) {
	if got := overlap(nil, nil); got != 1 {
		t.Errorf("both empty: expected 1, got %v", got)
	}
	if got := overlap([]uint64{1}, nil); got != 0 {
		t.Errorf("one empty: expected 0, got %v", got)
	}
	if got := overlap([]uint64{1, 2}, []uint64{1, 2, 3, 4}); got != 1 {
		t.Errorf("subset: expected 1, got %v", got)
	}
}
