// Package mock provides a deterministic inference engine for tests and demos.
package mock

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/dgnsrekt/xtts-go/tts"
)

// MockEngine implements tts.Engine with a synthetic tone whose length
// follows the text length.
type MockEngine struct {
	mu sync.Mutex

	// Configuration
	sampleRate     int
	samplesPerChar int
	amplitude      float64
	delay          time.Duration // Simulated inference latency

	// Control for testing
	ready        bool
	failure      error
	failAt       int // 1-based Infer call that fails; 0 means every call
	speakerFails map[string]error
	outputs      map[string][]float32

	// State
	requests     []tts.InferenceRequest
	cleanupCount int
	updatedAt    time.Time
}

// New creates a ready mock engine.
func New(cfg tts.MockConfig, sampleRate int) *MockEngine {
	if sampleRate <= 0 {
		sampleRate = tts.DefaultSampleRate
	}
	if cfg.SamplesPerChar <= 0 {
		cfg.SamplesPerChar = 1200
	}
	if cfg.Amplitude <= 0 || cfg.Amplitude > 1 {
		cfg.Amplitude = 0.5
	}
	return &MockEngine{
		sampleRate:     sampleRate,
		samplesPerChar: cfg.SamplesPerChar,
		amplitude:      cfg.Amplitude,
		delay:          cfg.Delay,
		ready:          true,
		speakerFails:   make(map[string]error),
		outputs:        make(map[string][]float32),
		updatedAt:      time.Now(),
	}
}

// Infer returns a fixed output registered with SetOutput, otherwise a tone
// of samplesPerChar samples per rune of the request text.
func (e *MockEngine) Infer(ctx context.Context, req tts.InferenceRequest) ([]float32, error) {
	e.mu.Lock()
	delay := e.delay
	e.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.requests = append(e.requests, req)
	if e.failure != nil && (e.failAt == 0 || e.failAt == len(e.requests)) {
		return nil, e.failure
	}
	if out, ok := e.outputs[req.Text]; ok {
		return append([]float32(nil), out...), nil
	}
	return e.tone(len([]rune(req.Text)), frequencyFor(req.Conditioning)), nil
}

// tone renders n runes of a sine with 10 ms fades at both ends.
func (e *MockEngine) tone(n int, freq float64) []float32 {
	total := n * e.samplesPerChar
	out := make([]float32, total)
	fade := e.sampleRate / 100
	for i := range out {
		gain := 1.0
		if i < fade {
			gain = float64(i+1) / float64(fade)
		} else if total-i <= fade {
			gain = float64(total-i) / float64(fade)
		}
		out[i] = float32(e.amplitude * gain * math.Sin(2*math.Pi*freq*float64(i)/float64(e.sampleRate)))
	}
	return out
}

// frequencyFor maps a voice to a stable pitch between 110 and 330 Hz.
func frequencyFor(c tts.Conditioning) float64 {
	h := fnv.New32a()
	h.Write(c.Embedding)
	return 110 + float64(h.Sum32()%220)
}

// ExtractConditioning derives a stable fake latent and embedding from the
// reference clip.
func (e *MockEngine) ExtractConditioning(ctx context.Context, ref tts.ReferenceAudio) (tts.Conditioning, error) {
	if err := ctx.Err(); err != nil {
		return tts.Conditioning{}, err
	}

	e.mu.Lock()
	err := e.speakerFails[ref.Speaker]
	e.mu.Unlock()
	if err != nil {
		return tts.Conditioning{}, err
	}

	h := fnv.New64a()
	h.Write([]byte(ref.Speaker))
	h.Write(ref.Data)
	sum := h.Sum64()

	latent, _ := json.Marshal([][]float64{{float64(sum % 997), float64(len(ref.Data))}})
	embedding, _ := json.Marshal([]float64{float64(sum % 1009), float64(sum % 1013)})
	return tts.Conditioning{Latent: latent, Embedding: embedding}, nil
}

// Cleanup counts calls.
func (e *MockEngine) Cleanup() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cleanupCount++
}

// IsReady returns the simulated model state.
func (e *MockEngine) IsReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

// Info describes the mock engine.
func (e *MockEngine) Info() tts.EngineInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return tts.EngineInfo{
		Name:      "mock",
		Ready:     e.ready,
		Device:    "cpu",
		UpdatedAt: e.updatedAt,
	}
}

// Test control methods

// SetReady toggles the simulated model state.
func (e *MockEngine) SetReady(ready bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ready = ready
	e.updatedAt = time.Now()
}

// SetDelay sets the simulated inference latency.
func (e *MockEngine) SetDelay(delay time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delay = delay
}

// SetFailure makes every Infer call fail with err.
func (e *MockEngine) SetFailure(err error) {
	e.FailAt(0, err)
}

// FailAt makes the n-th Infer call (1-based) fail with err. Zero fails every
// call.
func (e *MockEngine) FailAt(n int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failure = err
	e.failAt = n
}

// ClearFailure resets the engine to normal operation.
func (e *MockEngine) ClearFailure() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failure = nil
	e.failAt = 0
	e.speakerFails = make(map[string]error)
}

// FailSpeaker makes conditioning extraction fail for speaker.
func (e *MockEngine) FailSpeaker(speaker string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.speakerFails[speaker] = err
}

// SetOutput registers the waveform returned for an exact inference text.
func (e *MockEngine) SetOutput(text string, samples []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outputs[text] = samples
}

// Requests returns the inference requests seen so far, in call order.
func (e *MockEngine) Requests() []tts.InferenceRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]tts.InferenceRequest(nil), e.requests...)
}

// CleanupCount returns the number of Cleanup calls.
func (e *MockEngine) CleanupCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cleanupCount
}
