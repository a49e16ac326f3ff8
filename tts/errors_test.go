package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// TestErrorDefinitions tests that all error variables are properly defined.
func TestErrorDefinitions(t *testing.T) {
	tests := []struct {
		name string
		err  error
		msg  string
	}{
		{"ErrSpeakerNotFound", ErrSpeakerNotFound, "speaker not found"},
		{"ErrInvalidInput", ErrInvalidInput, "invalid input"},
		{"ErrModelNotReady", ErrModelNotReady, "inference model is not ready"},
		{"ErrSynthesisFailure", ErrSynthesisFailure, "synthesis failed"},
		{"ErrConditioningExtraction", ErrConditioningExtraction, "conditioning extraction failed"},
		{"ErrEmptyOutput", ErrEmptyOutput, "synthesis produced no audio"},
		{"ErrStateTransition", ErrStateTransition, "invalid state transition"},
		{"ErrInvalidConfig", ErrInvalidConfig, "invalid configuration"},
		{"ErrInvalidSampleRate", ErrInvalidSampleRate, "invalid sample rate"},
		{"ErrCanceled", ErrCanceled, "operation was canceled"},
	}

	seen := make(map[error]string)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.msg {
				t.Errorf("%s message = %q, want %q", tt.name, tt.err.Error(), tt.msg)
			}
			if other, ok := seen[tt.err]; ok {
				t.Errorf("%s is the same value as %s", tt.name, other)
			}
			seen[tt.err] = tt.name
		})
	}
}

// TestIsRecoverableError tests the IsRecoverableError function.
func TestIsRecoverableError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		recoverable bool
	}{
		{"speaker not found", ErrSpeakerNotFound, false},
		{"invalid input", ErrInvalidInput, false},
		{"invalid config", ErrInvalidConfig, false},
		{"canceled", ErrCanceled, false},
		{"wrapped invalid input", NewTTSError(ErrInvalidInput, "segmenter", "segment"), false},

		{"synthesis failure", ErrSynthesisFailure, true},
		{"model not ready", ErrModelNotReady, true},
		{"empty output", ErrEmptyOutput, true},
		{"nil error", nil, true},
		{"unknown error", errors.New("unknown"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRecoverableError(tt.err); got != tt.recoverable {
				t.Errorf("IsRecoverableError(%v) = %v, want %v", tt.err, got, tt.recoverable)
			}
		})
	}
}

// TestTTSError tests the TTSError envelope.
func TestTTSError(t *testing.T) {
	ttsErr := NewTTSError(ErrSynthesisFailure, "orchestrator", "infer")

	if got := ttsErr.Error(); got != "orchestrator: infer: synthesis failed" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(ttsErr, ErrSynthesisFailure) {
		t.Error("errors.Is should see the wrapped kind")
	}
	if ttsErr.Severity != SeverityError {
		t.Errorf("Default severity = %v, want error", ttsErr.Severity)
	}
	if ttsErr.Timestamp == 0 {
		t.Error("Timestamp not set")
	}
	if !ttsErr.IsRecoverable() {
		t.Error("Synthesis failure should be recoverable")
	}
}

func TestTTSErrorBuilders(t *testing.T) {
	ttsErr := NewTTSError(ErrSpeakerNotFound, "orchestrator", "resolve_voice").
		WithContext("voice", "zeus").
		WithSeverity(SeverityWarning)

	if ttsErr.Context["voice"] != "zeus" {
		t.Errorf("Context = %v", ttsErr.Context)
	}
	if ttsErr.Severity != SeverityWarning {
		t.Errorf("Severity = %v, want warning", ttsErr.Severity)
	}

	bare := &TTSError{Err: ErrEmptyOutput}
	bare.WithContext("segment", 2)
	if bare.Context["segment"] != 2 {
		t.Error("WithContext should allocate the map")
	}
	if bare.Error() != ErrEmptyOutput.Error() {
		t.Errorf("Error() without component = %q", bare.Error())
	}
}

// TestTTSErrorNilError tests TTSError with nil underlying error.
func TestTTSErrorNilError(t *testing.T) {
	ttsErr := NewTTSError(nil, "test", "action")
	if ttsErr.Error() != "unknown TTS error" {
		t.Errorf("Error() = %q, want %q", ttsErr.Error(), "unknown TTS error")
	}
	if ttsErr.Unwrap() != nil {
		t.Error("Unwrap() should return nil")
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"bare kind", ErrModelNotReady, ErrModelNotReady},
		{"enveloped", NewTTSError(ErrSpeakerNotFound, "c", "a"), ErrSpeakerNotFound},
		{"double wrapped", NewTTSError(fmt.Errorf("%w: %w", ErrSynthesisFailure, errors.New("oom")), "c", "a"), ErrSynthesisFailure},
		{"canceled chain", fmt.Errorf("%w: %w", ErrCanceled, context.Canceled), ErrCanceled},
		{"foreign", errors.New("boom"), nil},
		{"nil", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorKind(tt.err); got != tt.want {
				t.Errorf("ErrorKind() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestErrorWrapping keeps the cause reachable through the envelope.
func TestErrorWrapping(t *testing.T) {
	cause := errors.New("cuda out of memory")
	err := NewTTSError(fmt.Errorf("%w: %w", ErrSynthesisFailure, cause), "orchestrator", "infer")

	if !errors.Is(err, cause) {
		t.Error("Cause should be reachable")
	}
	if !strings.Contains(err.Error(), "cuda out of memory") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestErrorSeverity(t *testing.T) {
	tests := []struct {
		severity ErrorSeverity
		expected string
	}{
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
	}
	for _, tt := range tests {
		if got := tt.severity.String(); got != tt.expected {
			t.Errorf("Severity %d String() = %q, want %q", tt.severity, got, tt.expected)
		}
	}
}
