package pcm

import (
	"encoding/binary"
	"math"
)

// FromFloat32 converts samples in [-1, 1] to 16-bit PCM, clipping out-of-range values
func FromFloat32(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * math.MaxInt16)
		switch {
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		out[i] = int16(v)
	}
	return out
}

// ToFloat32 converts 16-bit PCM to float32 samples in [-1, 1]
func ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / math.MaxInt16
	}
	return out
}

// Bytes encodes samples as little-endian bytes
func Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// FromBytes decodes little-endian bytes into samples. A trailing odd byte is ignored.
func FromBytes(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}
