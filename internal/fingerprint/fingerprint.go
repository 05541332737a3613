// Package fingerprint extracts, serializes and compares acoustic fingerprints.
// The descriptor combines a coarse spectral band profile with landmark hashes
// (anchor/target spectral peak pairs) so matching can pre-filter on a cheap
// 64-bit hash and refine with a full similarity score.
package fingerprint

import (
	"errors"
	"fmt"
)

// Analysis parameters. Changing these invalidates previously stored payloads,
// which is why they are compiled in rather than configurable.
const (
	FrameSize = 2048
	HopSize   = 1024

	peakNeighborhoodT = 2
	peakNeighborhoodF = 15
	minPeakDB         = -55.0
	topKPerFrame      = 5

	targetZoneMinDT   = 1
	targetZoneMaxDT   = 60
	maxPairsPerAnchor = 4

	// NumBands is the length of the spectral band profile.
	NumBands = 32
)

// Extraction failure reasons.
var (
	ErrShortBuffer = errors.New("audio buffer shorter than analysis window")
	ErrNoPeaks     = errors.New("no spectral peaks detected")
)

// ExtractionError marks audio that cannot be fingerprinted. Callers skip the
// offending segment; it is never fatal to the surrounding job.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("fingerprint extraction: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Descriptor is the in-memory fingerprint of one audio segment.
type Descriptor struct {
	// Hash is a lossy 64-bit digest of the quantized band profile. Equal
	// hashes are necessary but not sufficient for a true match.
	Hash uint64
	// PeakCount is the number of spectral peaks the extractor kept.
	PeakCount int
	// Confidence reflects extraction quality in [0,1], independent of any
	// match-time similarity score.
	Confidence float64
	// SampleRate the source audio was analyzed at.
	SampleRate int
	// Bands is the normalized spectral energy profile (length NumBands).
	Bands []float64
	// Landmarks are sorted, deduplicated anchor/target pair hashes.
	Landmarks []uint64
}

// Equal reports exact (byte-for-byte on features) descriptor equality.
func (d *Descriptor) Equal(o *Descriptor) bool {
	if d == nil || o == nil {
		return d == o
	}
	if d.Hash != o.Hash || d.PeakCount != o.PeakCount ||
		d.Confidence != o.Confidence || d.SampleRate != o.SampleRate ||
		len(d.Bands) != len(o.Bands) || len(d.Landmarks) != len(o.Landmarks) {
		return false
	}
	for i := range d.Bands {
		if d.Bands[i] != o.Bands[i] {
			return false
		}
	}
	for i := range d.Landmarks {
		if d.Landmarks[i] != o.Landmarks[i] {
			return false
		}
	}
	return true
}
