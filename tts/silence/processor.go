package silence

import (
	"math"

	"github.com/dgnsrekt/xtts-go/tts"
)

// ScaledSamples converts a duration in milliseconds to a sample count,
// round(ms * sampleRate / 1000 * scale).
func ScaledSamples(ms, sampleRate int, scale float64) int {
	n := int(math.Round(float64(ms) * float64(sampleRate) / 1000 * scale))
	return max(n, 0)
}

// CapInternalSilence concatenates the voiced intervals of samples in order,
// separated by zero gaps no longer than maxGapSamples. Silence before the
// first and after the last interval is dropped. With no intervals the input
// is returned unmodified.
func CapInternalSilence(samples []float32, intervals []tts.VoicedInterval, maxGapSamples int) []float32 {
	if len(intervals) == 0 {
		return samples
	}
	maxGapSamples = max(maxGapSamples, 0)

	gap := func(i int) int {
		return min(max(intervals[i].Start-intervals[i-1].End, 0), maxGapSamples)
	}

	total := 0
	for i, iv := range intervals {
		total += iv.Len()
		if i > 0 {
			total += gap(i)
		}
	}

	out := make([]float32, 0, total)
	for i, iv := range intervals {
		if i > 0 {
			out = append(out, make([]float32, gap(i))...)
		}
		out = append(out, samples[iv.Start:iv.End]...)
	}
	return out
}

// RemoveExcessiveSilence shortens every internal pause longer than
// maxGapMs. Voiced intervals are those within topDB of the peak.
func RemoveExcessiveSilence(samples []float32, maxGapMs, sampleRate int, topDB float64) []float32 {
	intervals := DetectVoicedIntervals(samples, topDB)
	return CapInternalSilence(samples, intervals, maxGapMs*sampleRate/1000)
}

// TrimEdges crops samples to the span between the first and last sample
// whose magnitude is above topDB below the peak. Silent or empty buffers are
// returned as they are. The result shares the input's backing array.
func TrimEdges(samples []float32, topDB float64) []float32 {
	peak := float64(peakOf(samples))
	if peak == 0 {
		return samples
	}
	threshold := peak * math.Pow(10, -topDB/20)

	first, last := -1, -1
	for i, s := range samples {
		if math.Abs(float64(s)) > threshold {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return samples
	}
	return samples[first : last+1]
}

// PadEdges surrounds samples with ScaledSamples(padMs, sampleRate, scale)
// zeros on each side.
func PadEdges(samples []float32, padMs, sampleRate int, scale float64) []float32 {
	n := ScaledSamples(padMs, sampleRate, scale)
	out := make([]float32, len(samples)+2*n)
	copy(out[n:], samples)
	return out
}

func peakOf(samples []float32) float32 {
	var peak float32
	for _, s := range samples {
		peak = max(peak, s, -s)
	}
	return peak
}

// Processor applies the configured silence policy at a fixed sample rate.
type Processor struct {
	cfg        tts.SilenceConfig
	sampleRate int
}

// NewProcessor creates a processor. Zero-valued settings fall back to the
// defaults.
func NewProcessor(cfg tts.SilenceConfig, sampleRate int) *Processor {
	def := tts.DefaultSilenceConfig()
	if cfg.FrameLength <= 0 {
		cfg.FrameLength = def.FrameLength
	}
	if cfg.HopLength <= 0 {
		cfg.HopLength = def.HopLength
	}
	if cfg.EdgePadScale <= 0 {
		cfg.EdgePadScale = def.EdgePadScale
	}
	if cfg.MinSilenceMs <= 0 {
		cfg.MinSilenceMs = def.MinSilenceMs
	}
	if sampleRate <= 0 {
		sampleRate = tts.DefaultSampleRate
	}
	return &Processor{cfg: cfg, sampleRate: sampleRate}
}

// SampleRate returns the rate the processor was built for.
func (p *Processor) SampleRate() int {
	return p.sampleRate
}

// RemoveExcessiveSilence caps internal pauses at the configured maximum.
func (p *Processor) RemoveExcessiveSilence(samples []float32) []float32 {
	intervals := detectVoiced(samples, p.cfg.GapTopDB, p.cfg.FrameLength, p.cfg.HopLength)
	return CapInternalSilence(samples, intervals, p.cfg.MaxGapMs*p.sampleRate/1000)
}

// Finalize runs the full pipeline on an assembled buffer:
//
//  1. cap internal pauses (sample domain, GapTopDB, MaxGapMs)
//  2. trim the edges (sample domain, TrimTopDB)
//  3. pad EdgePadMs scaled by EdgePadScale
//  4. crop to the first and last non-silent millisecond (SilenceThreshDBFS,
//     MinSilenceMs)
//  5. pad exactly boundaryMs on each side
func (p *Processor) Finalize(samples []float32, boundaryMs int) ([]float32, error) {
	if len(samples) == 0 {
		return nil, tts.ErrEmptyOutput
	}

	out := p.RemoveExcessiveSilence(samples)
	out = TrimEdges(out, p.cfg.TrimTopDB)
	out = PadEdges(out, p.cfg.EdgePadMs, p.sampleRate, p.cfg.EdgePadScale)

	ranges := DetectNonsilentRanges(out, p.sampleRate, p.cfg.MinSilenceMs, p.cfg.SilenceThreshDBFS)
	out = CropToNonsilent(out, p.sampleRate, ranges)

	out = PadEdges(out, boundaryMs, p.sampleRate, 1.0)
	if len(out) == 0 {
		return nil, tts.ErrEmptyOutput
	}
	return out, nil
}
