package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/xtts-go/tts"
	"github.com/dgnsrekt/xtts-go/tts/audio"
)

func newTestEngine(t *testing.T, handler http.Handler) *Engine {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := tts.DefaultEngineConfig()
	cfg.Remote.URL = srv.URL + "/"
	cfg.Remote.RequestsPerMinute = 6000
	cfg.Remote.Timeout = 5 * time.Second
	engine, err := New(cfg, tts.DefaultSampleRate, log.New(io.Discard))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return engine
}

func wavBytes(t *testing.T, samples []float32, sampleRate int) []byte {
	t.Helper()
	data, err := audio.EncodeWAV(tts.AudioBuffer{Samples: samples, SampleRate: sampleRate})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestNewRequiresURL(t *testing.T) {
	cfg := tts.DefaultEngineConfig()
	cfg.Remote.URL = ""
	if _, err := New(cfg, tts.DefaultSampleRate, nil); err == nil {
		t.Error("Expected error for empty url")
	}
}

func TestWarmup(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		ready   bool
		wantErr bool
	}{
		{"ready", http.StatusOK, `{"ready":true,"device":"cuda"}`, true, false},
		{"loading", http.StatusOK, `{"ready":false}`, false, true},
		{"server error", http.StatusInternalServerError, `boom`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" || r.Method != http.MethodGet {
					t.Errorf("Unexpected %s %s", r.Method, r.URL.Path)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))

			err := engine.Warmup(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Warmup error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.status == http.StatusOK && tt.wantErr && !errors.Is(err, tts.ErrModelNotReady) {
				t.Errorf("Expected ErrModelNotReady, got %v", err)
			}
			if engine.IsReady() != tt.ready {
				t.Errorf("Expected ready=%v", tt.ready)
			}
		})
	}
}

func TestInfer(t *testing.T) {
	samples := []float32{0, 0.25, -0.25, 0.5}
	var got tts.InferenceRequest

	engine := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/infer" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(wavBytes(t, samples, tts.DefaultSampleRate))
	}))

	out, err := engine.Infer(context.Background(), tts.InferenceRequest{
		Text:     "Olá,",
		Language: "pt",
		Params:   tts.DefaultInferenceParams(),
	})
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if len(out) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(out))
	}
	for i := range samples {
		if d := out[i] - samples[i]; d > 1e-4 || d < -1e-4 {
			t.Errorf("Sample %d: expected %f, got %f", i, samples[i], out[i])
		}
	}
	if got.Text != "Olá," || got.Params.RepetitionPenalty != 12.0 {
		t.Errorf("Server saw %+v", got)
	}
}

func TestInferResamples(t *testing.T) {
	engine := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(wavBytes(t, make([]float32, 1200), 12000))
	}))

	out, err := engine.Infer(context.Background(), tts.InferenceRequest{Text: "x"})
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if len(out) != 2400 {
		t.Errorf("Expected 2400 samples after resampling, got %d", len(out))
	}
}

func TestInferServerError(t *testing.T) {
	engine := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "CUDA out of memory", http.StatusInternalServerError)
	}))

	_, err := engine.Infer(context.Background(), tts.InferenceRequest{Text: "x"})
	if err == nil || !strings.Contains(err.Error(), "CUDA out of memory") {
		t.Errorf("Expected server message in error, got %v", err)
	}
}

func TestRateLimiterHonorsContext(t *testing.T) {
	var calls atomic.Int32
	engine := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write(wavBytes(t, []float32{0.1}, tts.DefaultSampleRate))
	}))
	engine.limiter.SetLimit(0.001)
	engine.limiter.SetBurst(1)

	if _, err := engine.Infer(context.Background(), tts.InferenceRequest{Text: "a"}); err != nil {
		t.Fatalf("First call should pass the limiter: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := engine.Infer(ctx, tts.InferenceRequest{Text: "b"}); err == nil {
		t.Error("Expected limiter wait to fail")
	}
	if calls.Load() != 1 {
		t.Errorf("Expected 1 server call, got %d", calls.Load())
	}
}

func TestExtractConditioning(t *testing.T) {
	engine := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req extractRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Speaker == "broken" {
			http.Error(w, "bad clip", http.StatusUnprocessableEntity)
			return
		}
		if req.AudioBase64 != "UklGRg==" {
			t.Errorf("Unexpected audio payload %q", req.AudioBase64)
		}
		w.Write([]byte(`{"gpt_cond_latent":[[1,2]],"speaker_embedding":[3]}`))
	}))

	cond, err := engine.ExtractConditioning(context.Background(), tts.ReferenceAudio{Speaker: "kratos", Data: []byte("RIFF")})
	if err != nil {
		t.Fatalf("ExtractConditioning failed: %v", err)
	}
	if string(cond.Embedding) != "[3]" {
		t.Errorf("Unexpected embedding %s", cond.Embedding)
	}

	if _, err := engine.ExtractConditioning(context.Background(), tts.ReferenceAudio{Speaker: "broken"}); err == nil {
		t.Error("Expected extraction error")
	}
}

func TestCleanupBestEffort(t *testing.T) {
	var hit atomic.Bool
	engine := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit.Store(r.URL.Path == "/cleanup")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	engine.Cleanup()
	if !hit.Load() {
		t.Error("Expected cleanup request")
	}
}
