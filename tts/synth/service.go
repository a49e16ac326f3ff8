package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"

	"github.com/dgnsrekt/xtts-go/internal/cache"
	"github.com/dgnsrekt/xtts-go/internal/sysinfo"
	"github.com/dgnsrekt/xtts-go/tts"
	"github.com/dgnsrekt/xtts-go/tts/audio"
	"github.com/dgnsrekt/xtts-go/tts/speakers"
)

// Output formats accepted by Render.
const (
	FormatWAV  = "wav"
	FormatALaw = "alaw"
)

// Warmer is implemented by engines that load their model out of process and
// can report readiness.
type Warmer interface {
	Warmup(ctx context.Context) error
}

// Info summarizes the service for status endpoints.
type Info struct {
	Engine   tts.EngineInfo `json:"model"`
	Speakers int            `json:"speakers"`
	Memory   sysinfo.Report `json:"memory"`
	Cache    []cache.Stats  `json:"cache,omitempty"`
}

// Service is the application facade: it owns the speaker cache, the
// orchestrator and the rendered-output cache.
type Service struct {
	cfg      tts.Config
	engine   tts.Engine
	speakers *speakers.Cache
	orch     *Orchestrator
	outputs  *cache.Manager // nil when caching is disabled
	memory   *sysinfo.Monitor
	renders  singleflight.Group
	logger   *log.Logger

	// generation counts speaker loads. A render only stores its output when
	// no load happened while it ran; storeMu orders that check against the
	// clear that follows a load.
	generation atomic.Uint64
	storeMu    sync.RWMutex
}

// NewService wires a service. Speaker references are read from fs and the
// disk cache, when enabled, is written to fs as well.
func NewService(cfg tts.Config, engine tts.Engine, fs afero.Fs, logger *log.Logger) (*Service, error) {
	if logger == nil {
		logger = log.Default()
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}

	s := &Service{
		cfg:    cfg,
		engine: engine,
		memory: sysinfo.NewMonitor(uint64(cfg.Server.MinAvailableMB) << 20),
		logger: logger,
	}
	s.speakers = speakers.New(fs, cfg.Speakers, engine, logger)
	s.orch = NewOrchestrator(cfg, engine, s.speakers, logger)

	if cfg.Cache.Enabled {
		outputs, err := cache.NewManager(fs, cache.ConfigFrom(cfg.Cache, cfg.Cache.Dir), logger)
		if err != nil {
			return nil, fmt.Errorf("output cache: %w", err)
		}
		s.outputs = outputs
		s.speakers.OnReload(func(report speakers.LoadReport) {
			s.storeMu.Lock()
			defer s.storeMu.Unlock()
			s.generation.Add(1)
			if err := outputs.Clear(); err != nil {
				logger.Warn("failed to clear output cache", "error", err)
				return
			}
			logger.Debug("output cache cleared", "speakers", len(report.Loaded))
		})
	}
	return s, nil
}

// Start warms up the engine, when it supports that, and loads speakers.
// An engine that is not ready yet is not fatal: requests fail with
// ErrModelNotReady until a later warmup succeeds.
func (s *Service) Start(ctx context.Context) error {
	if p, ok := s.engine.(Warmer); ok {
		if err := p.Warmup(ctx); err != nil {
			s.logger.Warn("engine not ready", "engine", s.engine.Info().Name, "error", err)
		}
	}
	report, err := s.speakers.Load(ctx)
	if err != nil && !isWarning(err) {
		return err
	}
	s.logger.Info("speakers loaded",
		"count", len(report.Loaded),
		"failed", len(report.Failed),
		"took", report.Duration.Round(time.Millisecond))
	return nil
}

// Orchestrator exposes the pipeline for callers that need raw buffers.
func (s *Service) Orchestrator() *Orchestrator {
	return s.orch
}

// Synthesize produces the finalized buffer for req.
func (s *Service) Synthesize(ctx context.Context, req tts.SynthesisRequest) (tts.AudioBuffer, error) {
	if report := s.memory.Report(ctx); !report.Sufficient {
		s.logger.Warn("low available memory", "report", report.String())
	}
	return s.orch.Synthesize(ctx, req)
}

// Render synthesizes req and encodes it in format, an empty format meaning
// the configured default. Identical requests are served from the output
// cache and concurrent duplicates share one synthesis. The shared synthesis
// is detached from any single caller: a caller that gives up returns
// ErrCanceled without aborting the work for the others.
func (s *Service) Render(ctx context.Context, req tts.SynthesisRequest, format string) ([]byte, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = s.cfg.Output.Format
	}
	if format != FormatWAV && format != FormatALaw {
		return nil, tts.NewTTSError(tts.ErrInvalidInput, "service", "render").WithContext("format", format)
	}

	key := cache.KeyFor(req, format)
	if s.outputs != nil {
		if data, ok := s.outputs.Get(key); ok {
			s.logger.Debug("output cache hit", "voice", key.Voice, "format", format)
			return data, nil
		}
	}

	gen := s.generation.Load()
	flight := fmt.Sprintf("%s/%d", key.Hash(), gen)
	ch := s.renders.DoChan(flight, func() (any, error) {
		work, cancel := s.renderContext(ctx)
		defer cancel()

		buf, err := s.Synthesize(work, req)
		if err != nil {
			return nil, err
		}
		data, err := s.encode(buf, format)
		if err != nil {
			return nil, tts.NewTTSError(err, "service", "encode").WithContext("format", format)
		}
		s.store(key, gen, data)
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, tts.NewTTSError(fmt.Errorf("%w: %w", tts.ErrCanceled, ctx.Err()), "service", "render").
			WithContext("voice", key.Voice)
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.logger.Debug("render shared with concurrent request", "voice", key.Voice)
		}
		return res.Val.([]byte), nil
	}
}

// renderContext keeps the values of ctx but not its cancellation, bounded by
// the server write timeout when one is configured.
func (s *Service) renderContext(ctx context.Context) (context.Context, context.CancelFunc) {
	work := context.WithoutCancel(ctx)
	if timeout := s.cfg.Server.WriteTimeout; timeout > 0 {
		return context.WithTimeout(work, timeout)
	}
	return context.WithCancel(work)
}

// store caches data unless a speaker load ran since gen was read, in which
// case the audio may have been rendered with replaced conditioning.
func (s *Service) store(key cache.Key, gen uint64, data []byte) {
	if s.outputs == nil {
		return
	}
	s.storeMu.RLock()
	defer s.storeMu.RUnlock()
	if s.generation.Load() != gen {
		s.logger.Debug("speakers reloaded during render, output not cached", "voice", key.Voice)
		return
	}
	if err := s.outputs.Put(key, data); err != nil {
		s.logger.Debug("output not cached", "error", err)
	}
}

func (s *Service) encode(buf tts.AudioBuffer, format string) ([]byte, error) {
	if format == FormatALaw {
		return audio.CompressALaw(buf, s.cfg.Output.AudioFactor, s.cfg.Output.ALawSampleRate)
	}
	return audio.EncodeWAV(buf)
}

// ListSpeakers returns the loaded speaker keys in sorted order.
func (s *Service) ListSpeakers() []string {
	return s.speakers.ListSpeakers()
}

// ReloadSpeakers rescans the speakers directory.
func (s *Service) ReloadSpeakers(ctx context.Context) (speakers.LoadReport, error) {
	return s.speakers.Load(ctx)
}

// Watch reloads speakers whenever the directory changes, until ctx ends.
// It returns immediately when watching is disabled.
func (s *Service) Watch(ctx context.Context) error {
	if !s.cfg.Speakers.Watch {
		return nil
	}
	w := speakers.NewWatcher(s.speakers, s.cfg.Speakers.Debounce, s.logger)
	return w.Run(ctx)
}

// Info reports engine, speaker, memory and cache status.
func (s *Service) Info() Info {
	info := Info{
		Engine:   s.engine.Info(),
		Speakers: s.speakers.Len(),
		Memory:   s.memory.Report(context.Background()),
	}
	if s.outputs != nil {
		info.Cache = s.outputs.Stats()
	}
	return info
}

// Close releases the output cache.
func (s *Service) Close() error {
	if s.outputs == nil {
		return nil
	}
	return s.outputs.Close()
}

func isWarning(err error) bool {
	var ttsErr *tts.TTSError
	return errors.As(err, &ttsErr) && ttsErr.Severity == tts.SeverityWarning
}
