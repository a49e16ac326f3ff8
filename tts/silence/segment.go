package silence

import (
	"math"

	"github.com/dgnsrekt/xtts-go/tts/audio"
)

// fullScale16 is the largest magnitude a signed 16-bit sample can express.
const fullScale16 = 32768

// MsRange is a half-open range of whole milliseconds.
type MsRange struct {
	Start int
	End   int
}

// DurationMs is the length in milliseconds of n samples at sampleRate,
// rounded to the nearest millisecond.
func DurationMs(n, sampleRate int) int {
	return int(math.Round(1000 * float64(n) / float64(sampleRate)))
}

func msToSample(ms, sampleRate int) int {
	return ms * sampleRate / 1000
}

// DetectNonsilentRanges finds the millisecond ranges of samples that are not
// part of a silence of at least minSilenceMs. A window is silent when the RMS
// of its 16-bit samples is at or below threshDBFS. The window advances one
// millisecond at a time.
//
// Buffers shorter than minSilenceMs are reported as entirely non-silent; a
// buffer that is one long silence has no ranges.
func DetectNonsilentRanges(samples []float32, sampleRate, minSilenceMs int, threshDBFS float64) []MsRange {
	segLen := DurationMs(len(samples), sampleRate)

	silent := detectSilence(audio.FloatToPCM16(samples), sampleRate, segLen, minSilenceMs, threshDBFS)
	if len(silent) == 0 {
		return []MsRange{{Start: 0, End: segLen}}
	}
	if silent[0].Start == 0 && silent[0].End == segLen {
		return nil
	}

	var ranges []MsRange
	prevEnd := 0
	for _, s := range silent {
		ranges = append(ranges, MsRange{Start: prevEnd, End: s.Start})
		prevEnd = s.End
	}
	if prevEnd != segLen {
		ranges = append(ranges, MsRange{Start: prevEnd, End: segLen})
	}
	if ranges[0] == (MsRange{}) {
		ranges = ranges[1:]
	}
	return ranges
}

func detectSilence(pcm []int, sampleRate, segLen, minSilenceMs int, threshDBFS float64) []MsRange {
	if segLen < minSilenceMs {
		return nil
	}
	threshold := math.Pow(10, threshDBFS/20) * fullScale16

	sumSq := make([]int64, len(pcm)+1)
	for i, v := range pcm {
		sumSq[i+1] = sumSq[i] + int64(v)*int64(v)
	}
	rms := func(lo, hi int) float64 {
		hi = min(hi, len(pcm))
		lo = min(lo, hi)
		if hi == lo {
			return 0
		}
		// Integer RMS, truncated
		return math.Floor(math.Sqrt(float64(sumSq[hi]-sumSq[lo]) / float64(hi-lo)))
	}

	var starts []int
	for i := 0; i <= segLen-minSilenceMs; i++ {
		if rms(msToSample(i, sampleRate), msToSample(i+minSilenceMs, sampleRate)) <= threshold {
			starts = append(starts, i)
		}
	}
	if len(starts) == 0 {
		return nil
	}

	var ranges []MsRange
	prev := starts[0]
	rangeStart := prev
	for _, s := range starts[1:] {
		continuous := s == prev+1
		hasGap := s > prev+minSilenceMs
		if !continuous && hasGap {
			ranges = append(ranges, MsRange{Start: rangeStart, End: prev + minSilenceMs})
			rangeStart = s
		}
		prev = s
	}
	return append(ranges, MsRange{Start: rangeStart, End: prev + minSilenceMs})
}

// CropToNonsilent keeps the samples from the start of the first range to the
// end of the last. Without ranges the input is returned unmodified.
func CropToNonsilent(samples []float32, sampleRate int, ranges []MsRange) []float32 {
	if len(ranges) == 0 {
		return samples
	}
	end := min(msToSample(ranges[len(ranges)-1].End, sampleRate), len(samples))
	start := min(msToSample(ranges[0].Start, sampleRate), end)
	return samples[start:end]
}
