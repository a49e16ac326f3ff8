// Package synth runs synthesis requests end to end: voice lookup, text
// segmentation, per-segment inference, assembly and silence finalization.
package synth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"

	"github.com/dgnsrekt/xtts-go/tts"
	"github.com/dgnsrekt/xtts-go/tts/sentence"
	"github.com/dgnsrekt/xtts-go/tts/silence"
)

const component = "orchestrator"

// Voices resolves a speaker key to its conditioning.
type Voices interface {
	Get(speaker string) (tts.SpeakerConditioning, bool)
}

// Orchestrator turns a SynthesisRequest into a finished AudioBuffer. It is
// safe for concurrent use; every call owns its own state machine.
type Orchestrator struct {
	engine     tts.Engine
	voices     Voices
	segmenter  *sentence.Segmenter
	silence    *silence.Processor
	gaps       tts.GapConfig
	params     tts.InferenceParams
	sampleRate int
	device     *semaphore.Weighted // nil unless inference is exclusive
	logger     *log.Logger

	mu            sync.RWMutex
	onStateChange func(from, to tts.StateType)
}

// segmentAudio is one trimmed inference result and the class of the pause
// that follows it.
type segmentAudio struct {
	samples []float32
	gap     tts.Punctuation
}

// NewOrchestrator wires the pipeline stages from cfg.
func NewOrchestrator(cfg tts.Config, engine tts.Engine, voices Voices, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = tts.DefaultSampleRate
	}
	o := &Orchestrator{
		engine:     engine,
		voices:     voices,
		segmenter:  sentence.NewSegmenter(cfg.Segmenter),
		silence:    silence.NewProcessor(cfg.Silence, sampleRate),
		gaps:       cfg.Gaps,
		params:     cfg.Inference,
		sampleRate: sampleRate,
		logger:     logger.WithPrefix(component),
	}
	if cfg.Engine.Exclusive {
		o.device = semaphore.NewWeighted(1)
	}
	return o
}

// OnStateChange registers fn to observe every request's transitions.
func (o *Orchestrator) OnStateChange(fn func(from, to tts.StateType)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onStateChange = fn
}

// SampleRate returns the rate of every produced buffer.
func (o *Orchestrator) SampleRate() int {
	return o.sampleRate
}

// Synthesize runs one request. The engine's Cleanup runs exactly once before
// Synthesize returns, whatever the outcome, and with an exclusive device it
// runs before the device is handed to the next request. A failed request
// never yields partial audio.
func (o *Orchestrator) Synthesize(ctx context.Context, req tts.SynthesisRequest) (tts.AudioBuffer, error) {
	req = req.WithDefaults()

	sm := tts.NewStateMachine()
	o.mu.RLock()
	if o.onStateChange != nil {
		sm.OnChange(o.onStateChange)
	}
	o.mu.RUnlock()

	release := o.acquire()
	defer release()

	start := time.Now()
	samples, err := o.runOnDevice(ctx, sm, req, release)
	if err != nil {
		sm.Fail()
		o.logger.Debug("synthesis failed", "voice", req.Voice, "error", err)
		return tts.AudioBuffer{}, err
	}

	buf := tts.AudioBuffer{Samples: samples, SampleRate: o.sampleRate}
	o.logger.Info("synthesis complete",
		"voice", req.Voice,
		"chars", len([]rune(req.Text)),
		"audio", buf.Duration().Round(time.Millisecond),
		"took", time.Since(start).Round(time.Millisecond))
	return buf, nil
}

// acquire returns the release half of the per-request cleanup scope.
func (o *Orchestrator) acquire() func() {
	var once sync.Once
	return func() {
		once.Do(o.engine.Cleanup)
	}
}

// runOnDevice holds the device gate, when there is one, for the whole run
// including cleanup.
func (o *Orchestrator) runOnDevice(ctx context.Context, sm *tts.StateMachine, req tts.SynthesisRequest, release func()) ([]float32, error) {
	if o.device == nil {
		return o.run(ctx, sm, req)
	}
	if err := o.device.Acquire(ctx, 1); err != nil {
		return nil, canceled(err, "wait_device")
	}
	defer func() {
		release()
		o.device.Release(1)
	}()
	return o.run(ctx, sm, req)
}

func (o *Orchestrator) run(ctx context.Context, sm *tts.StateMachine, req tts.SynthesisRequest) ([]float32, error) {
	if !o.engine.IsReady() {
		return nil, tts.NewTTSError(tts.ErrModelNotReady, component, "synthesize").
			WithContext("engine", o.engine.Info().Name)
	}

	sm.Transition(tts.StateResolvingVoice)
	voice, ok := o.voices.Get(req.Voice)
	if !ok {
		return nil, tts.NewTTSError(tts.ErrSpeakerNotFound, component, "resolve_voice").
			WithContext("voice", req.Voice)
	}

	sm.Transition(tts.StateSegmenting)
	segments, err := o.segmenter.Segment(req.Text)
	if err != nil {
		return nil, err
	}
	o.logger.Debug("text segmented", "segments", len(segments), "max_length", o.segmenter.MaxLength())

	sm.Transition(tts.StateSynthesizing)
	parts, err := o.synthesizeSegments(ctx, voice, req.Language, segments)
	if err != nil {
		return nil, err
	}

	sm.Transition(tts.StateAssembling)
	assembled := o.assemble(parts)

	sm.Transition(tts.StateFinalizing)
	out, err := o.silence.Finalize(assembled, req.BoundarySilenceMs)
	if err != nil {
		return nil, wrap(err, "finalize")
	}

	sm.Transition(tts.StateDone)
	return out, nil
}

// synthesizeSegments runs inference for every segment in input order.
func (o *Orchestrator) synthesizeSegments(ctx context.Context, voice tts.SpeakerConditioning, language string, segments []tts.TextSegment) ([]segmentAudio, error) {
	parts := make([]segmentAudio, 0, len(segments))
	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			return nil, canceled(err, "infer").WithContext("segment", i)
		}

		start := time.Now()
		raw, err := o.engine.Infer(ctx, tts.InferenceRequest{
			Text:         seg.InferenceText(),
			Language:     language,
			Conditioning: voice.Conditioning,
			Params:       o.params,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, canceled(ctx.Err(), "infer").WithContext("segment", i)
			}
			return nil, tts.NewTTSError(fmt.Errorf("%w: %w", tts.ErrSynthesisFailure, err), component, "infer").
				WithContext("segment", i)
		}
		if len(raw) == 0 {
			return nil, tts.NewTTSError(tts.ErrEmptyOutput, component, "infer").WithContext("segment", i)
		}

		trimmed := silence.TrimEdges(raw, o.gaps.SegmentTopDB)
		parts = append(parts, segmentAudio{samples: trimmed, gap: seg.GapClass()})
		o.logger.Debug("segment synthesized",
			"index", i,
			"text", seg.Text,
			"samples", len(raw),
			"trimmed", len(trimmed),
			"took", time.Since(start).Round(time.Millisecond))
	}
	return parts, nil
}

// assemble concatenates the segments in order with a calibrated pause
// between neighbours.
func (o *Orchestrator) assemble(parts []segmentAudio) []float32 {
	total := 0
	for i, p := range parts {
		total += len(p.samples)
		if i < len(parts)-1 {
			total += o.gapSamples(p.gap)
		}
	}

	out := make([]float32, 0, total)
	for i, p := range parts {
		out = append(out, p.samples...)
		if i < len(parts)-1 {
			out = append(out, make([]float32, o.gapSamples(p.gap))...)
		}
	}
	return out
}

func (o *Orchestrator) gapSamples(class tts.Punctuation) int {
	ms := o.gaps.PunctuationMs
	if class == tts.PunctComma {
		ms = o.gaps.CommaMs
	}
	return silence.ScaledSamples(ms, o.sampleRate, o.gaps.Scale)
}

func canceled(err error, action string) *tts.TTSError {
	return tts.NewTTSError(fmt.Errorf("%w: %w", tts.ErrCanceled, err), component, action)
}

// wrap gives err the orchestrator envelope unless it already has one.
func wrap(err error, action string) error {
	var ttsErr *tts.TTSError
	if errors.As(err, &ttsErr) {
		return err
	}
	return tts.NewTTSError(err, component, action)
}
