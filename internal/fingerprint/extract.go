package fingerprint

import (
	"encoding/binary"
	"math"
	"math/cmplx"
	"sort"

	xxhash "github.com/OneOfOne/xxhash"
	"gonum.org/v1/gonum/dsp/fourier"
)

type peak struct {
	t int
	f int
	m float64
}

// Extract computes a descriptor from a mono sample buffer. It is a
// deterministic, side-effect-free function of its inputs. It fails with an
// *ExtractionError wrapping ErrShortBuffer when the buffer is shorter than one
// analysis window, or ErrNoPeaks when the audio carries no detectable energy.
func Extract(samples []float64, sampleRate int) (*Descriptor, error) {
	if sampleRate <= 0 {
		return nil, &ExtractionError{Err: ErrShortBuffer}
	}
	if len(samples) < FrameSize {
		return nil, &ExtractionError{Err: ErrShortBuffer}
	}

	spec := stft(samples, FrameSize, HopSize)
	mags := magnitudes(spec)
	peaks := findPeaks(mags, minPeakDB, peakNeighborhoodT, peakNeighborhoodF, topKPerFrame)
	if len(peaks) == 0 {
		return nil, &ExtractionError{Err: ErrNoPeaks}
	}

	bands := bandProfile(mags, NumBands)
	landmarks := landmarkHashes(peaks, targetZoneMinDT, targetZoneMaxDT, maxPairsPerAnchor)

	return &Descriptor{
		Hash:       bandHash(bands),
		PeakCount:  len(peaks),
		Confidence: peakConfidence(len(peaks), len(spec)),
		SampleRate: sampleRate,
		Bands:      bands,
		Landmarks:  landmarks,
	}, nil
}

func stft(x []float64, n, hop int) [][]complex128 {
	win := hann(n)
	fft := fourier.NewFFT(n)
	frames := 1 + (len(x)-n)/hop
	spec := make([][]complex128, frames)
	buf := make([]float64, n)
	for i := 0; i < frames; i++ {
		start := i * hop
		for k := 0; k < n; k++ {
			if start+k < len(x) {
				buf[k] = x[start+k] * win[k]
			} else {
				buf[k] = 0
			}
		}
		out := fft.Coefficients(nil, buf)
		spec[i] = out[:n/2] // positive freqs
	}
	return spec
}

func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

func magnitudes(spec [][]complex128) [][]float64 {
	mags := make([][]float64, len(spec))
	for t := range spec {
		row := spec[t]
		m := make([]float64, len(row))
		for f := range row {
			m[f] = cmplx.Abs(row[f])
		}
		mags[t] = m
	}
	return mags
}

// findPeaks keeps per-frame local maxima above minDB, at most topK per frame.
func findPeaks(mags [][]float64, minDB float64, neighT, neighF, topK int) []peak {
	db := make([][]float64, len(mags))
	for t := range mags {
		row := make([]float64, len(mags[t]))
		for f := range mags[t] {
			row[f] = 20 * math.Log10(mags[t][f]+1e-12)
		}
		db[t] = row
	}

	peaks := make([]peak, 0, len(mags)*topK)
	for t := range db {
		frame := frameLocalMaxima(t, db, minDB, neighT, neighF)
		if len(frame) > topK {
			sort.Slice(frame, func(i, j int) bool { return frame[i].m > frame[j].m })
			frame = frame[:topK]
		}
		peaks = append(peaks, frame...)
	}
	return peaks
}

func frameLocalMaxima(t int, db [][]float64, minDB float64, neighT, neighF int) []peak {
	out := make([]peak, 0, 8)
	row := db[t]
	for f := 1; f < len(row)-1; f++ {
		v := row[f]
		if v < minDB {
			continue
		}
		ok := true
		for dt := -neighT; dt <= neighT && ok; dt++ {
			tt := t + dt
			if tt < 0 || tt >= len(db) {
				continue
			}
			other := db[tt]
			lo := maxInt(0, f-neighF)
			hi := minInt(len(other)-1, f+neighF)
			for ff := lo; ff <= hi; ff++ {
				if dt == 0 && ff == f {
					continue
				}
				if other[ff] > v {
					ok = false
					break
				}
			}
		}
		if ok {
			out = append(out, peak{t: t, f: f, m: v})
		}
	}
	return out
}

// landmarkHashes pairs each anchor peak with peaks in its forward target zone
// and hashes the (f1, f2, dt) triple. Output is sorted and deduplicated so the
// landmark set supports cheap overlap comparison.
func landmarkHashes(peaks []peak, minDT, maxDT, maxPairs int) []uint64 {
	byT := map[int][]peak{}
	minT, maxT := math.MaxInt32, -1
	for _, p := range peaks {
		byT[p.t] = append(byT[p.t], p)
		if p.t < minT {
			minT = p.t
		}
		if p.t > maxT {
			maxT = p.t
		}
	}

	var buf [6]byte
	seen := map[uint64]struct{}{}
	for t := minT; t <= maxT; t++ {
		for _, a := range byT[t] {
			made := 0
			for dt := minDT; dt <= maxDT && t+dt <= maxT; dt++ {
				for _, b := range byT[t+dt] {
					binary.BigEndian.PutUint16(buf[0:], uint16(a.f))
					binary.BigEndian.PutUint16(buf[2:], uint16(b.f))
					binary.BigEndian.PutUint16(buf[4:], uint16(dt))
					seen[xxhash.Checksum64(buf[:])] = struct{}{}
					made++
					if made >= maxPairs {
						break
					}
				}
				if made >= maxPairs {
					break
				}
			}
		}
	}

	hashes := make([]uint64, 0, len(seen))
	for h := range seen {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })
	return hashes
}

// bandProfile averages linear spectral energy into bands and normalizes the
// result to unit length.
func bandProfile(mags [][]float64, bands int) []float64 {
	out := make([]float64, bands)
	if len(mags) == 0 || len(mags[0]) == 0 {
		return out
	}
	bins := len(mags[0])
	for _, row := range mags {
		for f, v := range row {
			b := f * bands / bins
			if b >= bands {
				b = bands - 1
			}
			out[b] += v * v
		}
	}
	var norm float64
	for _, v := range out {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range out {
			out[i] /= norm
		}
	}
	return out
}

// bandHash digests the band profile quantized relative to its loudest band.
// Quantization makes the hash stable under small level differences while
// keeping it a strict pre-filter: equal hashes still require Compare to agree.
func bandHash(bands []float64) uint64 {
	peakV := 0.0
	for _, v := range bands {
		if v > peakV {
			peakV = v
		}
	}
	q := make([]byte, len(bands))
	if peakV > 0 {
		for i, v := range bands {
			q[i] = byte(math.Round(v / peakV * 15))
		}
	}
	return xxhash.Checksum64(q)
}

func peakConfidence(peakCount, frames int) float64 {
	if frames == 0 {
		return 0
	}
	c := float64(peakCount) / float64(frames*topKPerFrame)
	if c > 1 {
		c = 1
	}
	return c
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
