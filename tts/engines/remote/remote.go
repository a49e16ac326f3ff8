// Package remote implements the inference capability against an XTTS model
// server reachable over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/xtts-go/tts"
	"github.com/dgnsrekt/xtts-go/tts/audio"
)

const maxErrorBody = 4 << 10

// Engine calls a model server. Inference and extraction requests share one
// rate limiter so a busy pipeline cannot flood the server.
type Engine struct {
	baseURL    string
	sampleRate int
	client     *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger

	mu        sync.Mutex
	ready     bool
	device    string
	updatedAt time.Time
}

type extractRequest struct {
	Speaker     string `json:"speaker"`
	AudioBase64 string `json:"audio_base64"`
}

type healthResponse struct {
	Ready  bool   `json:"ready"`
	Device string `json:"device"`
}

// New returns an engine for the configured server. The engine is not ready
// until Warmup succeeds.
func New(cfg tts.EngineConfig, sampleRate int, logger *log.Logger) (*Engine, error) {
	base := strings.TrimRight(cfg.Remote.URL, "/")
	if base == "" {
		return nil, errors.New("remote url cannot be empty")
	}
	rpm := cfg.Remote.RequestsPerMinute
	if rpm <= 0 {
		rpm = 120
	}
	timeout := cfg.Remote.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		baseURL:    base,
		sampleRate: sampleRate,
		client:     &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		logger:     logger.WithPrefix("remote"),
		device:     cfg.Device,
	}, nil
}

// Warmup queries the server health endpoint.
func (e *Engine) Warmup(ctx context.Context) error {
	var health healthResponse
	err := e.do(ctx, http.MethodGet, "/health", nil, func(body io.Reader) error {
		return json.NewDecoder(body).Decode(&health)
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	e.ready = err == nil && health.Ready
	e.updatedAt = time.Now()
	if health.Device != "" {
		e.device = health.Device
	}
	if err != nil {
		return err
	}
	if !health.Ready {
		return tts.ErrModelNotReady
	}
	return nil
}

// Infer posts the request and decodes the WAV reply, resampling when the
// server renders at a different rate.
func (e *Engine) Infer(ctx context.Context, req tts.InferenceRequest) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	var buf tts.AudioBuffer
	err := e.do(ctx, http.MethodPost, "/infer", req, func(body io.Reader) error {
		data, err := io.ReadAll(body)
		if err != nil {
			return err
		}
		buf, err = audio.DecodeWAV(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	if buf.SampleRate != e.sampleRate {
		e.logger.Debug("resampling server output", "from", buf.SampleRate, "to", e.sampleRate)
		return audio.Resample(buf.Samples, buf.SampleRate, e.sampleRate), nil
	}
	return buf.Samples, nil
}

// ExtractConditioning uploads the reference clip.
func (e *Engine) ExtractConditioning(ctx context.Context, ref tts.ReferenceAudio) (tts.Conditioning, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return tts.Conditioning{}, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	var cond tts.Conditioning
	err := e.do(ctx, http.MethodPost, "/conditioning", extractRequest{
		Speaker:     ref.Speaker,
		AudioBase64: base64.StdEncoding.EncodeToString(ref.Data),
	}, func(body io.Reader) error {
		return json.NewDecoder(body).Decode(&cond)
	})
	if err != nil {
		return tts.Conditioning{}, err
	}
	if len(cond.Latent) == 0 || len(cond.Embedding) == 0 {
		return tts.Conditioning{}, errors.New("server returned incomplete conditioning")
	}
	return cond, nil
}

// Cleanup notifies the server that a synthesis finished. Best effort.
func (e *Engine) Cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.do(ctx, http.MethodPost, "/cleanup", nil, nil); err != nil {
		e.logger.Debug("cleanup failed", "error", err)
	}
}

// IsReady reports the result of the last Warmup.
func (e *Engine) IsReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

// Info describes the server.
func (e *Engine) Info() tts.EngineInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return tts.EngineInfo{
		Name:      "remote",
		Ready:     e.ready,
		Device:    e.device,
		UpdatedAt: e.updatedAt,
	}
}

func (e *Engine) do(ctx context.Context, method, path string, payload any, decode func(io.Reader) error) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if decode == nil {
		return nil
	}
	if err := decode(resp.Body); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
