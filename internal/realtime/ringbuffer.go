package realtime

// RingBuffer is a fixed-capacity sliding window over float samples. Once
// full, appends evict the oldest samples; there is no backpressure, overflow
// is simply dropped off the front. Not safe for concurrent use; each session
// owns its buffer and serializes access.
type RingBuffer struct {
	data  []float64
	start int
	size  int
}

// NewRingBuffer creates a buffer holding at most capacity samples.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{data: make([]float64, capacity)}
}

// Append adds samples in arrival order, evicting the oldest when full.
func (b *RingBuffer) Append(samples []float64) {
	capacity := len(b.data)
	// Only the tail of an oversized chunk can survive.
	if len(samples) > capacity {
		samples = samples[len(samples)-capacity:]
	}
	for _, s := range samples {
		idx := (b.start + b.size) % capacity
		b.data[idx] = s
		if b.size < capacity {
			b.size++
		} else {
			b.start = (b.start + 1) % capacity
		}
	}
}

// Snapshot copies the buffered samples, oldest first. The copy is stable
// against later appends.
func (b *RingBuffer) Snapshot() []float64 {
	out := make([]float64, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.data[(b.start+i)%len(b.data)]
	}
	return out
}

// Len is the number of buffered samples.
func (b *RingBuffer) Len() int { return b.size }

// Cap is the buffer capacity.
func (b *RingBuffer) Cap() int { return len(b.data) }
