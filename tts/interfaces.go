package tts

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultSampleRate is the output rate of the XTTS family of models.
const DefaultSampleRate = 24000

// DefaultBoundarySilenceMs is the silence placed around a finished synthesis
// when the request does not ask for a specific duration.
const DefaultBoundarySilenceMs = 150

// Engine is the neural voice-inference capability the pipeline drives.
// Implementations own their model lifecycle.
type Engine interface {
	// Infer synthesizes one text segment with the given conditioning and
	// returns mono float samples at the engine's sample rate.
	Infer(ctx context.Context, req InferenceRequest) ([]float32, error)

	// ExtractConditioning derives speaker conditioning from a reference clip.
	ExtractConditioning(ctx context.Context, ref ReferenceAudio) (Conditioning, error)

	// Cleanup releases transient inference-side resources. Best effort.
	Cleanup()

	// IsReady reports whether the model is loaded.
	IsReady() bool

	// Info describes the engine for status endpoints.
	Info() EngineInfo
}

// EngineInfo describes the state of an inference engine.
type EngineInfo struct {
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	Device    string    `json:"device"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InferenceParams are the decoding parameters passed with every segment.
type InferenceParams struct {
	Temperature         float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
	LengthPenalty       float64 `json:"length_penalty" yaml:"length_penalty" mapstructure:"length_penalty"`
	RepetitionPenalty   float64 `json:"repetition_penalty" yaml:"repetition_penalty" mapstructure:"repetition_penalty"`
	TopK                int     `json:"top_k" yaml:"top_k" mapstructure:"top_k"`
	TopP                float64 `json:"top_p" yaml:"top_p" mapstructure:"top_p"`
	DoSample            bool    `json:"do_sample" yaml:"do_sample" mapstructure:"do_sample"`
	Speed               float64 `json:"speed" yaml:"speed" mapstructure:"speed"`
	EnableTextSplitting bool    `json:"enable_text_splitting" yaml:"enable_text_splitting" mapstructure:"enable_text_splitting"`
}

// DefaultInferenceParams returns the decoding parameters tuned for stable
// XTTS output.
func DefaultInferenceParams() InferenceParams {
	return InferenceParams{
		Temperature:         0.65,
		LengthPenalty:       1.0,
		RepetitionPenalty:   12.0,
		TopK:                35,
		TopP:                0.75,
		DoSample:            true,
		Speed:               0.95,
		EnableTextSplitting: true,
	}
}

// InferenceRequest is a single segment submitted to the engine.
type InferenceRequest struct {
	Text         string          `json:"text"`
	Language     string          `json:"language"`
	Conditioning Conditioning    `json:"conditioning"`
	Params       InferenceParams `json:"params"`
}

// ReferenceAudio is a speaker reference clip handed to ExtractConditioning.
type ReferenceAudio struct {
	Speaker string // lower-cased file stem
	Path    string // location on the speakers filesystem
	Data    []byte // file contents
}

// Conditioning is the opaque per-voice data produced by the engine.
type Conditioning struct {
	Latent    json.RawMessage `json:"gpt_cond_latent"`
	Embedding json.RawMessage `json:"speaker_embedding"`
}

// SpeakerConditioning binds conditioning data to a speaker key.
type SpeakerConditioning struct {
	Speaker string
	Conditioning
	Source   string    // reference file it was extracted from
	LoadedAt time.Time // when the reload that produced it ran
}

// AudioBuffer is a mono float sample sequence at a fixed sample rate.
type AudioBuffer struct {
	Samples    []float32
	SampleRate int
}

// Len returns the number of samples.
func (b AudioBuffer) Len() int {
	return len(b.Samples)
}

// Duration returns the playing time of the buffer.
func (b AudioBuffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// VoicedInterval is a half-open sample range [Start, End) holding signal.
type VoicedInterval struct {
	Start int
	End   int
}

// Len returns the number of samples covered by the interval.
func (v VoicedInterval) Len() int {
	return v.End - v.Start
}

// Punctuation is the terminal punctuation class of a text segment.
type Punctuation int

const (
	PunctNone Punctuation = iota
	PunctComma
	PunctPeriod
	PunctQuestion
	PunctExclamation
)

// String returns the string representation of the class.
func (p Punctuation) String() string {
	switch p {
	case PunctComma:
		return "comma"
	case PunctPeriod:
		return "period"
	case PunctQuestion:
		return "question"
	case PunctExclamation:
		return "exclamation"
	default:
		return "none"
	}
}

// ClassifyPunctuation returns the class of the last non-space rune of text.
func ClassifyPunctuation(text string) Punctuation {
	text = strings.TrimRight(text, " \t\n\r")
	r, _ := utf8.DecodeLastRuneInString(text)
	switch r {
	case ',':
		return PunctComma
	case '.':
		return PunctPeriod
	case '?':
		return PunctQuestion
	case '!':
		return PunctExclamation
	default:
		return PunctNone
	}
}

// TextSegment is one bounded chunk of input text submitted to inference.
type TextSegment struct {
	Text  string
	Punct Punctuation
}

// NewTextSegment builds a segment and derives its punctuation class.
func NewTextSegment(text string) TextSegment {
	return TextSegment{Text: text, Punct: ClassifyPunctuation(text)}
}

// InferenceText returns the text submitted to inference. A segment without
// terminal punctuation gets a trailing comma and a trailing period becomes a
// comma, so every segment is voiced as a continuing clause.
func (s TextSegment) InferenceText() string {
	text := strings.TrimRight(s.Text, " \t\n\r")
	switch s.Punct {
	case PunctNone:
		return text + ","
	case PunctPeriod:
		return strings.TrimSuffix(text, ".") + ","
	default:
		return text
	}
}

// GapClass is the class that selects the silence after the segment. A
// segment with no terminal punctuation is voiced with a comma and paused
// like one.
func (s TextSegment) GapClass() Punctuation {
	if s.Punct == PunctNone {
		return PunctComma
	}
	return s.Punct
}

// SynthesisRequest is one call into the orchestrator.
type SynthesisRequest struct {
	Text              string `json:"text"`
	Voice             string `json:"voice"`
	Language          string `json:"lang_code"`
	BoundarySilenceMs int    `json:"boundary_silence_ms,omitempty"`
}

// WithDefaults fills the optional fields.
func (r SynthesisRequest) WithDefaults() SynthesisRequest {
	if r.Language == "" {
		r.Language = "en"
	}
	if r.BoundarySilenceMs <= 0 {
		r.BoundarySilenceMs = DefaultBoundarySilenceMs
	}
	return r
}
