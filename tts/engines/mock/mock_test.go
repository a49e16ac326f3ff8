package mock

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgnsrekt/xtts-go/tts"
)

func newTestEngine() *MockEngine {
	return New(tts.MockConfig{SamplesPerChar: 100, Amplitude: 0.5}, 24000)
}

func TestNewMockEngine(t *testing.T) {
	engine := New(tts.MockConfig{}, 0)

	if !engine.IsReady() {
		t.Error("Mock engine should be ready by default")
	}
	if engine.sampleRate != tts.DefaultSampleRate {
		t.Errorf("Expected default sample rate, got %d", engine.sampleRate)
	}
	if info := engine.Info(); info.Name != "mock" || !info.Ready {
		t.Errorf("Unexpected info %+v", info)
	}
}

func TestInfer(t *testing.T) {
	engine := newTestEngine()

	tests := []struct {
		name string
		text string
		want int
	}{
		{"ascii", "Hello,", 600},
		{"runes not bytes", "ação,", 500},
		{"empty", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := engine.Infer(context.Background(), tts.InferenceRequest{Text: tt.text})
			if err != nil {
				t.Fatalf("Infer failed: %v", err)
			}
			if len(out) != tt.want {
				t.Errorf("Expected %d samples, got %d", tt.want, len(out))
			}
			for _, s := range out {
				if s > 0.5 || s < -0.5 {
					t.Fatalf("Sample %f exceeds amplitude", s)
				}
			}
		})
	}

	if got := len(engine.Requests()); got != len(tests) {
		t.Errorf("Expected %d recorded requests, got %d", len(tests), got)
	}
}

func TestInferDeterministic(t *testing.T) {
	engine := newTestEngine()
	req := tts.InferenceRequest{Text: "Mesma frase,", Conditioning: tts.Conditioning{Embedding: []byte("[1,2]")}}

	a, _ := engine.Infer(context.Background(), req)
	b, _ := engine.Infer(context.Background(), req)
	if len(a) != len(b) {
		t.Fatalf("Lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Sample %d differs", i)
		}
	}
}

func TestInferFixedOutput(t *testing.T) {
	engine := newTestEngine()
	engine.SetOutput("fixo,", []float32{0.1, 0.2, 0.3})

	out, err := engine.Infer(context.Background(), tts.InferenceRequest{Text: "fixo,"})
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if len(out) != 3 || out[1] != 0.2 {
		t.Errorf("Expected registered output, got %v", out)
	}

	// Callers may modify the returned slice
	out[0] = 9
	again, _ := engine.Infer(context.Background(), tts.InferenceRequest{Text: "fixo,"})
	if again[0] != 0.1 {
		t.Error("Registered output was modified through a returned slice")
	}
}

func TestFailures(t *testing.T) {
	engine := newTestEngine()
	boom := errors.New("boom")

	engine.FailAt(2, boom)
	if _, err := engine.Infer(context.Background(), tts.InferenceRequest{Text: "a"}); err != nil {
		t.Fatalf("First call should succeed, got %v", err)
	}
	if _, err := engine.Infer(context.Background(), tts.InferenceRequest{Text: "b"}); !errors.Is(err, boom) {
		t.Fatalf("Second call should fail, got %v", err)
	}

	engine.SetFailure(boom)
	if _, err := engine.Infer(context.Background(), tts.InferenceRequest{Text: "c"}); !errors.Is(err, boom) {
		t.Fatalf("Expected failure, got %v", err)
	}

	engine.ClearFailure()
	if _, err := engine.Infer(context.Background(), tts.InferenceRequest{Text: "d"}); err != nil {
		t.Fatalf("Expected success after ClearFailure, got %v", err)
	}
}

func TestInferCanceled(t *testing.T) {
	engine := newTestEngine()
	engine.SetDelay(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if _, err := engine.Infer(ctx, tts.InferenceRequest{Text: "x"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Canceled Infer waited for the full delay")
	}
}

func TestExtractConditioning(t *testing.T) {
	engine := newTestEngine()
	ctx := context.Background()

	a, err := engine.ExtractConditioning(ctx, tts.ReferenceAudio{Speaker: "kratos", Data: []byte("RIFF1")})
	if err != nil {
		t.Fatalf("ExtractConditioning failed: %v", err)
	}
	b, _ := engine.ExtractConditioning(ctx, tts.ReferenceAudio{Speaker: "kratos", Data: []byte("RIFF1")})
	c, _ := engine.ExtractConditioning(ctx, tts.ReferenceAudio{Speaker: "atreus", Data: []byte("RIFF1")})

	if !bytes.Equal(a.Embedding, b.Embedding) || !bytes.Equal(a.Latent, b.Latent) {
		t.Error("Conditioning should be deterministic")
	}
	if bytes.Equal(a.Embedding, c.Embedding) {
		t.Error("Different speakers should get different embeddings")
	}

	engine.FailSpeaker("atreus", errors.New("bad clip"))
	if _, err := engine.ExtractConditioning(ctx, tts.ReferenceAudio{Speaker: "atreus"}); err == nil {
		t.Error("Expected extraction failure")
	}
}

func TestCleanupAndReady(t *testing.T) {
	engine := newTestEngine()

	engine.Cleanup()
	engine.Cleanup()
	if got := engine.CleanupCount(); got != 2 {
		t.Errorf("Expected 2 cleanups, got %d", got)
	}

	engine.SetReady(false)
	if engine.IsReady() || engine.Info().Ready {
		t.Error("Engine should report not ready")
	}
}
