package fingerprint

import "math"

// Similarity is the result of comparing two descriptors. Combined is the
// authoritative match score; the sub-scores are exposed for diagnostics.
type Similarity struct {
	Combined      float64 `json:"combined_score"`
	BandScore     float64 `json:"band_score"`
	LandmarkScore float64 `json:"landmark_score"`
}

const (
	bandWeight     = 0.6
	landmarkWeight = 0.4
)

// Compare scores the acoustic similarity of two descriptors in [0,1]. The
// score is commutative and maximal for self-comparison. Band profiles are
// compared by cosine similarity; landmark sets by overlap against the smaller
// set, so a short query still scores highly against a superset.
func Compare(a, b *Descriptor) Similarity {
	band := cosine(a.Bands, b.Bands)
	landmark := overlap(a.Landmarks, b.Landmarks)
	combined := bandWeight*band + landmarkWeight*landmark
	return Similarity{
		Combined:      clamp01(combined),
		BandScore:     clamp01(band),
		LandmarkScore: clamp01(landmark),
	}
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	// Band energies are non-negative, so cosine already lands in [0,1].
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// overlap assumes both slices are sorted ascending, as produced by Extract.
func overlap(a, b []uint64) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	common := 0
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			common++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	smaller := len(a)
	if len(b) < smaller {
		smaller = len(b)
	}
	return float64(common) / float64(smaller)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
