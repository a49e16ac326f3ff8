// Package audio converts finished sample buffers into byte containers and
// plays them on the local output device.
package audio

import (
	"encoding/binary"
	"math"
)

const (
	// BitDepth is the PCM bit depth of encoded WAV output.
	BitDepth = 16
	// Channels is the channel count of all synthesized audio.
	Channels = 1

	pcm16Scale = 32767
)

// FloatToPCM16 quantizes float samples in [-1, 1] to signed 16-bit values.
// Samples outside the range are clipped.
func FloatToPCM16(samples []float32) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * pcm16Scale)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		out[i] = int(v)
	}
	return out
}

// PCMToFloat converts signed integer samples of the given bit depth back to
// floats.
func PCMToFloat(data []int, bitDepth int) []float32 {
	scale := float64(pcm16Scale)
	if bitDepth != BitDepth && bitDepth > 1 {
		scale = float64(int64(1)<<(bitDepth-1) - 1)
	}
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(float64(v) / scale)
	}
	return out
}

// Peak returns the largest absolute sample value.
func Peak(samples []float32) float32 {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}

// PCM16LE renders samples as interleaved signed 16-bit little-endian bytes.
func PCM16LE(samples []float32) []byte {
	pcm := FloatToPCM16(samples)
	out := make([]byte, 2*len(pcm))
	for i, v := range pcm {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(v)))
	}
	return out
}
