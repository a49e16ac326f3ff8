// Package silence implements the two silence passes applied to synthesized
// audio.
//
// The sample domain works on float samples and measures level in dB below
// the buffer's own peak. The millisecond domain works on 16-bit quantized
// audio in whole milliseconds and measures absolute level in dBFS. The two
// are kept separate because their thresholds are not interchangeable.
package silence

import (
	"math"

	"github.com/dgnsrekt/xtts-go/tts"
)

const (
	// DefaultFrameLength is the analysis window of the sample-domain pass.
	DefaultFrameLength = 2048
	// DefaultHopLength is the stride between analysis windows.
	DefaultHopLength = 512

	// amin floors the power before taking logarithms.
	amin = 1e-10
)

// DetectVoicedIntervals splits samples into intervals whose frame energy is
// within topDB of the loudest frame. Frames are DefaultFrameLength samples
// wide, centred every DefaultHopLength samples. The intervals are sorted and
// do not overlap. An empty buffer has no intervals.
func DetectVoicedIntervals(samples []float32, topDB float64) []tts.VoicedInterval {
	return detectVoiced(samples, topDB, DefaultFrameLength, DefaultHopLength)
}

func detectVoiced(samples []float32, topDB float64, frameLength, hopLength int) []tts.VoicedInterval {
	if len(samples) == 0 {
		return nil
	}
	if frameLength <= 0 {
		frameLength = DefaultFrameLength
	}
	if hopLength <= 0 {
		hopLength = DefaultHopLength
	}

	voiced := voicedFrames(samples, topDB, frameLength, hopLength)

	var intervals []tts.VoicedInterval
	add := func(startFrame, endFrame int) {
		start := min(startFrame*hopLength, len(samples))
		end := min(endFrame*hopLength, len(samples))
		if start < end {
			intervals = append(intervals, tts.VoicedInterval{Start: start, End: end})
		}
	}

	runStart := -1
	for t, v := range voiced {
		switch {
		case v && runStart < 0:
			runStart = t
		case !v && runStart >= 0:
			add(runStart, t)
			runStart = -1
		}
	}
	if runStart >= 0 {
		add(runStart, len(voiced))
	}
	return intervals
}

// voicedFrames reports for each analysis frame whether its mean power is
// within topDB of the loudest frame. The signal is zero-padded by half a
// frame on both sides so frame t is centred on sample t*hopLength.
func voicedFrames(samples []float32, topDB float64, frameLength, hopLength int) []bool {
	n := len(samples)
	frames := 1 + n/hopLength
	half := frameLength / 2

	power := make([]float64, frames)
	peak := 0.0
	for t := range power {
		lo := max(t*hopLength-half, 0)
		hi := min(t*hopLength-half+frameLength, n)
		sum := 0.0
		for _, s := range samples[lo:hi] {
			sum += float64(s) * float64(s)
		}
		power[t] = sum / float64(frameLength)
		peak = max(peak, power[t])
	}

	ref := 10 * math.Log10(max(amin, peak))
	voiced := make([]bool, frames)
	for t, p := range power {
		voiced[t] = 10*math.Log10(max(amin, p))-ref > -topDB
	}
	return voiced
}
