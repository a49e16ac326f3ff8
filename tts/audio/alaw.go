package audio

import (
	"fmt"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/zaf/g711"

	"github.com/dgnsrekt/xtts-go/tts"
)

// DefaultALawSampleRate is the telephony rate A-law output is resampled to.
const DefaultALawSampleRate = 8000

// CompressALaw resamples buf to sampleRate, scales it down so its peak does
// not exceed audioFactor, and encodes it as G.711 A-law in a WAV container.
func CompressALaw(buf tts.AudioBuffer, audioFactor float64, sampleRate int) ([]byte, error) {
	if len(buf.Samples) == 0 {
		return nil, tts.ErrEmptyOutput
	}
	if sampleRate <= 0 {
		sampleRate = DefaultALawSampleRate
	}

	samples := Resample(buf.Samples, buf.SampleRate, sampleRate)
	LimitPeak(samples, float32(audioFactor))

	pcm := FloatToPCM16(samples)
	codes := make([]int, len(pcm))
	for i, v := range pcm {
		codes[i] = int(g711.EncodeAlawFrame(int16(v)))
	}

	ib := &goaudio.IntBuffer{
		Data: codes,
		Format: &goaudio.Format{
			SampleRate:  sampleRate,
			NumChannels: Channels,
		},
		SourceBitDepth: 8,
	}
	return encodeIntBuffer(ib, 8, formatALaw)
}

// DecodeALaw expands an A-law WAV file produced by CompressALaw.
func DecodeALaw(data []byte) (tts.AudioBuffer, error) {
	d, payload, err := readDataChunk(data)
	if err != nil {
		return tts.AudioBuffer{}, err
	}
	if d.WavAudioFormat != formatALaw {
		return tts.AudioBuffer{}, fmt.Errorf("expected a-law format tag %d, got %d", formatALaw, d.WavAudioFormat)
	}

	pcm := make([]int, len(payload))
	for i, b := range payload {
		pcm[i] = int(g711.DecodeAlawFrame(b))
	}
	return tts.AudioBuffer{Samples: PCMToFloat(pcm, BitDepth), SampleRate: int(d.SampleRate)}, nil
}

// LimitPeak scales samples in place so that the absolute peak is at most
// limit. Quieter buffers are left untouched.
func LimitPeak(samples []float32, limit float32) {
	peak := Peak(samples)
	if limit <= 0 || peak <= limit {
		return
	}
	scale := limit / peak
	for i := range samples {
		samples[i] *= scale
	}
}

// Resample converts samples from one rate to another with linear
// interpolation. When downsampling, a box filter one output period wide
// runs first to keep content above the new Nyquist rate from folding back.
func Resample(samples []float32, from, to int) []float32 {
	if from <= 0 || to <= 0 || from == to || len(samples) == 0 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}

	src := samples
	if to < from {
		src = boxFilter(samples, int(math.Ceil(float64(from)/float64(to))))
	}

	n := int(math.Ceil(float64(len(src)) * float64(to) / float64(from)))
	out := make([]float32, n)
	ratio := float64(from) / float64(to)
	last := len(src) - 1
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= last {
			out[i] = src[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = src[j]*(1-frac) + src[j+1]*frac
	}
	return out
}

func boxFilter(samples []float32, width int) []float32 {
	if width <= 1 {
		return samples
	}
	out := make([]float32, len(samples))
	half := width / 2
	var sum float64
	lo, hi := 0, 0 // window [lo, hi)
	for i := range samples {
		for hi < len(samples) && hi <= i+half {
			sum += float64(samples[hi])
			hi++
		}
		for lo < i-half {
			sum -= float64(samples[lo])
			lo++
		}
		out[i] = float32(sum / float64(hi-lo))
	}
	return out
}
