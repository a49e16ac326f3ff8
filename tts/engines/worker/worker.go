// Package worker drives an external inference process that speaks JSON
// over stdin and stdout. Each call starts the command, writes one request
// and reads newline-delimited responses until the process exits.
//
// The command is started for every Warmup, Infer, ExtractConditioning and
// Cleanup call, so it must be a thin client for a model server that stays
// resident. A command that loads the XTTS weights itself pays the full
// model load on every segment.
package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-shellwords"

	"github.com/dgnsrekt/xtts-go/tts"
	"github.com/dgnsrekt/xtts-go/tts/audio"
)

const maxLineBytes = 64 << 20

const cleanupTimeout = 10 * time.Second

type request struct {
	Op           string               `json:"op"`
	Text         string               `json:"text,omitempty"`
	Language     string               `json:"language,omitempty"`
	Conditioning *tts.Conditioning    `json:"conditioning,omitempty"`
	Params       *tts.InferenceParams `json:"params,omitempty"`
	SampleRate   int                  `json:"sample_rate,omitempty"`
	Device       string               `json:"device,omitempty"`
	ModelFolder  string               `json:"model_folder,omitempty"`
	Speaker      string               `json:"speaker,omitempty"`
	AudioBase64  string               `json:"audio_base64,omitempty"`
}

type response struct {
	PCMBase64    string            `json:"pcm_base64,omitempty"`
	Final        bool              `json:"final,omitempty"`
	Conditioning *tts.Conditioning `json:"conditioning,omitempty"`
	Ready        bool              `json:"ready,omitempty"`
	Device       string            `json:"device,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// Engine implements tts.Engine on top of a worker command.
type Engine struct {
	cmd         []string
	timeout     time.Duration
	sampleRate  int
	device      string
	modelFolder string
	logger      *log.Logger

	mu        sync.Mutex
	ready     bool
	updatedAt time.Time
}

// New parses the configured command line. The engine is not ready until
// Warmup succeeds.
func New(cfg tts.EngineConfig, sampleRate int, logger *log.Logger) (*Engine, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(cfg.Worker.Command)
	if err != nil {
		return nil, fmt.Errorf("parse worker command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("worker command empty")
	}
	if logger == nil {
		logger = log.Default()
	}
	timeout := cfg.Worker.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Engine{
		cmd:         args,
		timeout:     timeout,
		sampleRate:  sampleRate,
		device:      cfg.Device,
		modelFolder: cfg.ModelFolder,
		logger:      logger.WithPrefix("worker"),
	}, nil
}

// Warmup asks the worker to load its model and records the result.
func (e *Engine) Warmup(ctx context.Context) error {
	var status response
	err := e.call(ctx, request{
		Op:          "status",
		SampleRate:  e.sampleRate,
		Device:      e.device,
		ModelFolder: e.modelFolder,
	}, func(r response) error {
		status = r
		return nil
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	e.ready = err == nil && status.Ready
	e.updatedAt = time.Now()
	if status.Device != "" {
		e.device = status.Device
	}
	if err != nil {
		return err
	}
	if !status.Ready {
		return tts.ErrModelNotReady
	}
	return nil
}

// Infer sends one segment and collects the PCM chunks of the reply.
func (e *Engine) Infer(ctx context.Context, req tts.InferenceRequest) ([]float32, error) {
	cond := req.Conditioning
	params := req.Params

	var pcm []int
	err := e.call(ctx, request{
		Op:           "infer",
		Text:         req.Text,
		Language:     req.Language,
		Conditioning: &cond,
		Params:       &params,
		SampleRate:   e.sampleRate,
	}, func(r response) error {
		if r.PCMBase64 == "" {
			return nil
		}
		chunk, err := base64.StdEncoding.DecodeString(r.PCMBase64)
		if err != nil {
			return fmt.Errorf("decode pcm: %w", err)
		}
		pcm = append(pcm, decodePCM16LE(chunk)...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return audio.PCMToFloat(pcm, audio.BitDepth), nil
}

// ExtractConditioning sends the reference clip to the worker.
func (e *Engine) ExtractConditioning(ctx context.Context, ref tts.ReferenceAudio) (tts.Conditioning, error) {
	var cond *tts.Conditioning
	err := e.call(ctx, request{
		Op:          "extract",
		Speaker:     ref.Speaker,
		AudioBase64: base64.StdEncoding.EncodeToString(ref.Data),
	}, func(r response) error {
		if r.Conditioning != nil {
			cond = r.Conditioning
		}
		return nil
	})
	if err != nil {
		return tts.Conditioning{}, err
	}
	if cond == nil {
		return tts.Conditioning{}, errors.New("worker returned no conditioning")
	}
	return *cond, nil
}

// Cleanup asks the worker to release cached device memory. Failures are
// logged and otherwise ignored.
func (e *Engine) Cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := e.call(ctx, request{Op: "cleanup"}, func(response) error { return nil }); err != nil {
		e.logger.Debug("cleanup failed", "error", err)
	}
}

// IsReady reports the result of the last Warmup.
func (e *Engine) IsReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

// Info describes the worker.
func (e *Engine) Info() tts.EngineInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return tts.EngineInfo{
		Name:      "worker",
		Ready:     e.ready,
		Device:    e.device,
		UpdatedAt: e.updatedAt,
	}
}

// call runs the worker once for req and hands every response line to fn.
func (e *Engine) call(ctx context.Context, req request, fn func(response) error) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	// Stdin is set before Start so the worker never sees a half-open pipe
	cmd.Stdin = bytes.NewReader(append(payload, '\n'))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children of the worker may hold stdout open after it is killed
	cmd.WaitDelay = time.Second

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	err = cmd.Wait()

	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("worker %s timed out after %v", req.Op, time.Since(start).Round(time.Millisecond))
		}
		return fmt.Errorf("worker %s canceled: %w", req.Op, ctx.Err())
	}
	if err != nil {
		if msg := stderr.String(); msg != "" {
			return fmt.Errorf("worker %s failed: %w\nstderr: %s", req.Op, err, msg)
		}
		return fmt.Errorf("worker %s failed: %w", req.Op, err)
	}

	scanner := bufio.NewScanner(&stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			return fmt.Errorf("worker %s: bad response: %w", req.Op, err)
		}
		if resp.Error != "" {
			return fmt.Errorf("worker %s: %s", req.Op, resp.Error)
		}
		if err := fn(resp); err != nil {
			return err
		}
		if resp.Final {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("worker %s: read response: %w", req.Op, err)
	}

	e.logger.Debug("worker call", "op", req.Op, "took", time.Since(start))
	return nil
}

func decodePCM16LE(b []byte) []int {
	out := make([]int, len(b)/2)
	for i := range out {
		out[i] = int(int16(binary.LittleEndian.Uint16(b[2*i:])))
	}
	return out
}
