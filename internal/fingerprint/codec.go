package fingerprint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Serialized payload layout (little-endian):
//
//	magic uint32 | version uint8 | sampleRate uint32 | peakCount uint32 |
//	confidence float64 | hash uint64 | bandCount uint16 | bands float64... |
//	landmarkCount uint32 | landmarks uint64...
const (
	payloadMagic   = 0x45465031 // "EFP1"
	payloadVersion = 1
)

var (
	// ErrBadPayload is returned when a payload fails structural validation.
	ErrBadPayload = errors.New("malformed fingerprint payload")
)

// Serialize encodes the descriptor into its private binary payload.
func Serialize(d *Descriptor) []byte {
	size := 4 + 1 + 4 + 4 + 8 + 8 + 2 + 8*len(d.Bands) + 4 + 8*len(d.Landmarks)
	out := make([]byte, size)
	i := 0
	binary.LittleEndian.PutUint32(out[i:], payloadMagic)
	i += 4
	out[i] = payloadVersion
	i++
	binary.LittleEndian.PutUint32(out[i:], uint32(d.SampleRate))
	i += 4
	binary.LittleEndian.PutUint32(out[i:], uint32(d.PeakCount))
	i += 4
	binary.LittleEndian.PutUint64(out[i:], math.Float64bits(d.Confidence))
	i += 8
	binary.LittleEndian.PutUint64(out[i:], d.Hash)
	i += 8
	binary.LittleEndian.PutUint16(out[i:], uint16(len(d.Bands)))
	i += 2
	for _, b := range d.Bands {
		binary.LittleEndian.PutUint64(out[i:], math.Float64bits(b))
		i += 8
	}
	binary.LittleEndian.PutUint32(out[i:], uint32(len(d.Landmarks)))
	i += 4
	for _, h := range d.Landmarks {
		binary.LittleEndian.PutUint64(out[i:], h)
		i += 8
	}
	return out
}

// Deserialize decodes a payload produced by Serialize. The round trip is
// lossless: Deserialize(Serialize(d)).Equal(d) holds for every valid d.
func Deserialize(raw []byte) (*Descriptor, error) {
	const header = 4 + 1 + 4 + 4 + 8 + 8 + 2
	if len(raw) < header {
		return nil, fmt.Errorf("%w: truncated header (%d bytes)", ErrBadPayload, len(raw))
	}
	i := 0
	if binary.LittleEndian.Uint32(raw[i:]) != payloadMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrBadPayload)
	}
	i += 4
	if raw[i] != payloadVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadPayload, raw[i])
	}
	i++
	d := &Descriptor{}
	d.SampleRate = int(binary.LittleEndian.Uint32(raw[i:]))
	i += 4
	d.PeakCount = int(binary.LittleEndian.Uint32(raw[i:]))
	i += 4
	d.Confidence = math.Float64frombits(binary.LittleEndian.Uint64(raw[i:]))
	i += 8
	d.Hash = binary.LittleEndian.Uint64(raw[i:])
	i += 8
	bandCount := int(binary.LittleEndian.Uint16(raw[i:]))
	i += 2
	if len(raw) < i+8*bandCount+4 {
		return nil, fmt.Errorf("%w: truncated bands", ErrBadPayload)
	}
	d.Bands = make([]float64, bandCount)
	for k := 0; k < bandCount; k++ {
		d.Bands[k] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i:]))
		i += 8
	}
	landmarkCount := int(binary.LittleEndian.Uint32(raw[i:]))
	i += 4
	if len(raw) != i+8*landmarkCount {
		return nil, fmt.Errorf("%w: truncated landmarks", ErrBadPayload)
	}
	d.Landmarks = make([]uint64, landmarkCount)
	for k := 0; k < landmarkCount; k++ {
		d.Landmarks[k] = binary.LittleEndian.Uint64(raw[i:])
		i += 8
	}
	return d, nil
}
