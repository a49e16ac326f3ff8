package tts

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
)

// Config contains all synthesis service configuration options.
type Config struct {
	SampleRate int    `yaml:"sample_rate" env:"XTTS_SAMPLE_RATE" envDefault:"24000"`
	LogLevel   string `yaml:"log_level" env:"XTTS_LOG_LEVEL" envDefault:"info"`

	Engine    EngineConfig    `yaml:"engine"`
	Speakers  SpeakersConfig  `yaml:"speakers"`
	Segmenter SegmenterConfig `yaml:"segmenter"`
	Silence   SilenceConfig   `yaml:"silence"`
	Gaps      GapConfig       `yaml:"gaps"`
	Inference InferenceParams `yaml:"inference"`
	Output    OutputConfig    `yaml:"output"`
	Cache     CacheConfig     `yaml:"cache"`
	Server    ServerConfig    `yaml:"server"`
}

// EngineConfig selects and configures the inference capability.
type EngineConfig struct {
	Type        string `yaml:"type" env:"XTTS_ENGINE" envDefault:"mock"`
	Device      string `yaml:"device" env:"XTTS_DEVICE" envDefault:"gpu"`
	ModelFolder string `yaml:"model_folder" env:"XTTS_MODEL_FOLDER" envDefault:"/mnt/data/models/xtts/"`
	// Exclusive serializes inference calls across concurrent requests, for
	// deployments with a single accelerator.
	Exclusive bool `yaml:"exclusive" env:"XTTS_ENGINE_EXCLUSIVE" envDefault:"true"`

	Worker WorkerConfig `yaml:"worker"`
	Remote RemoteConfig `yaml:"remote"`
	Mock   MockConfig   `yaml:"mock"`
}

// WorkerConfig configures the subprocess engine.
type WorkerConfig struct {
	Command string        `yaml:"command" env:"XTTS_WORKER_COMMAND" envDefault:"python3 -m xtts_worker"`
	Timeout time.Duration `yaml:"timeout" env:"XTTS_WORKER_TIMEOUT" envDefault:"2m"`
}

// RemoteConfig configures the HTTP engine.
type RemoteConfig struct {
	URL               string        `yaml:"url" env:"XTTS_REMOTE_URL" envDefault:"http://127.0.0.1:8020"`
	Timeout           time.Duration `yaml:"timeout" env:"XTTS_REMOTE_TIMEOUT" envDefault:"2m"`
	RequestsPerMinute int           `yaml:"requests_per_minute" env:"XTTS_REMOTE_RPM" envDefault:"120"`
}

// MockConfig configures the deterministic engine used for tests and demos.
type MockConfig struct {
	SamplesPerChar int           `yaml:"samples_per_char" env:"XTTS_MOCK_SAMPLES_PER_CHAR" envDefault:"1200"`
	Amplitude      float64       `yaml:"amplitude" env:"XTTS_MOCK_AMPLITUDE" envDefault:"0.5"`
	Delay          time.Duration `yaml:"delay" env:"XTTS_MOCK_DELAY" envDefault:"0s"`
}

// SpeakersConfig configures the speaker conditioning cache.
type SpeakersConfig struct {
	Dir        string        `yaml:"dir" env:"XTTS_SPEAKERS_DIR" envDefault:"speakers_audios/"`
	Extensions []string      `yaml:"extensions" env:"XTTS_SPEAKERS_EXTENSIONS" envDefault:".wav"`
	Watch      bool          `yaml:"watch" env:"XTTS_SPEAKERS_WATCH" envDefault:"false"`
	Debounce   time.Duration `yaml:"debounce" env:"XTTS_SPEAKERS_DEBOUNCE" envDefault:"2s"`
}

// SegmenterConfig configures text splitting.
type SegmenterConfig struct {
	MinLength  int  `yaml:"min_length" env:"XTTS_SEGMENT_MIN" envDefault:"0"`
	MaxLength  int  `yaml:"max_length" env:"XTTS_SEGMENT_MAX" envDefault:"100"`
	Preprocess bool `yaml:"preprocess" env:"XTTS_SEGMENT_PREPROCESS" envDefault:"true"`
	// PreserveContinuationSplits keeps parts that begin with a continuation
	// word from being merged into the preceding part.
	PreserveContinuationSplits bool     `yaml:"preserve_continuation_splits" env:"XTTS_SEGMENT_PRESERVE_CONTINUATION" envDefault:"false"`
	ContinuationWords          []string `yaml:"continuation_words"`
}

// SilenceConfig holds the thresholds of both silence detection domains.
type SilenceConfig struct {
	// Sample domain, dB below the buffer peak.
	GapTopDB      float64 `yaml:"gap_top_db"`
	MaxGapMs      int     `yaml:"max_gap_ms"`
	TrimTopDB     float64 `yaml:"trim_top_db"`
	EdgePadMs     int     `yaml:"edge_pad_ms"`
	EdgePadScale  float64 `yaml:"edge_pad_scale"`
	FrameLength   int     `yaml:"frame_length"`
	HopLength     int     `yaml:"hop_length"`
	// Millisecond domain, absolute dBFS.
	SilenceThreshDBFS float64 `yaml:"silence_thresh_dbfs"`
	MinSilenceMs      int     `yaml:"min_silence_ms"`
}

// GapConfig controls the calibrated silence placed between segments.
type GapConfig struct {
	CommaMs       int     `yaml:"comma_ms"`
	PunctuationMs int     `yaml:"punctuation_ms"`
	Scale         float64 `yaml:"scale"`
	SegmentTopDB  float64 `yaml:"segment_top_db"`
}

// OutputConfig controls how finished buffers are encoded.
type OutputConfig struct {
	Format         string  `yaml:"format" env:"XTTS_OUTPUT_FORMAT" envDefault:"wav"`
	AudioFactor    float64 `yaml:"audio_factor" env:"XTTS_AUDIO_FACTOR" envDefault:"0.6"`
	ALawSampleRate int     `yaml:"alaw_sample_rate" env:"XTTS_ALAW_SAMPLE_RATE" envDefault:"8000"`
}

// CacheConfig controls the synthesized-audio cache.
type CacheConfig struct {
	Enabled          bool   `yaml:"enabled" env:"XTTS_CACHE_ENABLED" envDefault:"true"`
	Dir              string `yaml:"dir" env:"XTTS_CACHE_DIR"`
	MemoryCapacityMB int    `yaml:"memory_capacity_mb" env:"XTTS_CACHE_MEMORY_MB" envDefault:"64"`
	DiskCapacityMB   int    `yaml:"disk_capacity_mb" env:"XTTS_CACHE_DISK_MB" envDefault:"512"`
	CompressionLevel int    `yaml:"compression_level" env:"XTTS_CACHE_COMPRESSION" envDefault:"3"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Port              int           `yaml:"port" env:"XTTS_PORT" envDefault:"8000"`
	Host              string        `yaml:"host" env:"XTTS_HOST" envDefault:"0.0.0.0"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"XTTS_RPS" envDefault:"4"`
	Burst             int           `yaml:"burst" env:"XTTS_BURST" envDefault:"8"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes" env:"XTTS_MAX_BODY_BYTES" envDefault:"1048576"`
	ReadTimeout       time.Duration `yaml:"read_timeout" env:"XTTS_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout      time.Duration `yaml:"write_timeout" env:"XTTS_WRITE_TIMEOUT" envDefault:"5m"`
	MinAvailableMB    int           `yaml:"min_available_mb" env:"XTTS_MIN_AVAILABLE_MB" envDefault:"1331"`
}

// DefaultContinuationWords are the Portuguese conjunctions and connective
// phrases before which an overflowing clause is cut.
func DefaultContinuationWords() []string {
	return []string{
		"e", "mas", "ou", "pois", "então", "porque", "como", "também",
		"contudo", "porém", "todavia", "logo", "assim", "portanto",
		"consequentemente", "além disso", "dessa forma", "desta forma",
		"dessa maneira", "desta maneira", "por conseguinte", "em suma",
		"em resumo", "por fim", "enfim", "finalmente", "em conclusão",
		"para concluir", "para resumir", "em síntese", "em outras palavras",
		"ou seja",
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SampleRate: DefaultSampleRate,
		LogLevel:   "info",

		Engine:    DefaultEngineConfig(),
		Speakers:  DefaultSpeakersConfig(),
		Segmenter: DefaultSegmenterConfig(),
		Silence:   DefaultSilenceConfig(),
		Gaps:      DefaultGapConfig(),
		Inference: DefaultInferenceParams(),
		Output:    DefaultOutputConfig(),
		Cache:     DefaultCacheConfig(),
		Server:    DefaultServerConfig(),
	}
}

// DefaultEngineConfig returns the default engine selection.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Type:        "mock",
		Device:      "gpu",
		ModelFolder: "/mnt/data/models/xtts/",
		Exclusive:   true,
		Worker: WorkerConfig{
			Command: "python3 -m xtts_worker",
			Timeout: 2 * time.Minute,
		},
		Remote: RemoteConfig{
			URL:               "http://127.0.0.1:8020",
			Timeout:           2 * time.Minute,
			RequestsPerMinute: 120,
		},
		Mock: MockConfig{
			SamplesPerChar: 1200,
			Amplitude:      0.5,
		},
	}
}

// DefaultSpeakersConfig returns default speaker cache settings.
func DefaultSpeakersConfig() SpeakersConfig {
	return SpeakersConfig{
		Dir:        "speakers_audios/",
		Extensions: []string{".wav"},
		Debounce:   2 * time.Second,
	}
}

// DefaultSegmenterConfig returns default text splitting settings.
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		MinLength:         0,
		MaxLength:         100,
		Preprocess:        true,
		ContinuationWords: DefaultContinuationWords(),
	}
}

// DefaultSilenceConfig returns the calibrated silence thresholds.
func DefaultSilenceConfig() SilenceConfig {
	return SilenceConfig{
		GapTopDB:          55,
		MaxGapMs:          30,
		TrimTopDB:         60,
		EdgePadMs:         150,
		EdgePadScale:      0.95,
		FrameLength:       2048,
		HopLength:         512,
		SilenceThreshDBFS: -50,
		MinSilenceMs:      100,
	}
}

// DefaultGapConfig returns the inter-segment silence calibration.
func DefaultGapConfig() GapConfig {
	return GapConfig{
		CommaMs:       150,
		PunctuationMs: 200,
		Scale:         0.98,
		SegmentTopDB:  50,
	}
}

// DefaultOutputConfig returns default encoding settings.
func DefaultOutputConfig() OutputConfig {
	return OutputConfig{
		Format:         "wav",
		AudioFactor:    0.6,
		ALawSampleRate: 8000,
	}
}

// DefaultCacheConfig returns default output cache settings.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:          true,
		MemoryCapacityMB: 64,
		DiskCapacityMB:   512,
		CompressionLevel: 3,
	}
}

// DefaultServerConfig returns default transport settings.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:              8000,
		Host:              "0.0.0.0",
		RequestsPerSecond: 4,
		Burst:             8,
		MaxBodyBytes:      1 << 20,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		MinAvailableMB:    1331,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	validSampleRates := []int{8000, 16000, 22050, 24000, 44100, 48000}
	sampleRateValid := false
	for _, sr := range validSampleRates {
		if c.SampleRate == sr {
			sampleRateValid = true
			break
		}
	}
	if !sampleRateValid {
		return fmt.Errorf("%w %d: must be one of %v", ErrInvalidSampleRate, c.SampleRate, validSampleRates)
	}

	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	levelValid := false
	for _, l := range validLevels {
		if strings.EqualFold(c.LogLevel, l) {
			levelValid = true
			c.LogLevel = strings.ToLower(l)
			break
		}
	}
	if !levelValid {
		return fmt.Errorf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels)
	}

	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}
	if err := c.Speakers.Validate(); err != nil {
		return fmt.Errorf("speakers config: %w", err)
	}
	if err := c.Segmenter.Validate(); err != nil {
		return fmt.Errorf("segmenter config: %w", err)
	}
	if err := c.Silence.Validate(); err != nil {
		return fmt.Errorf("silence config: %w", err)
	}
	if err := c.Gaps.Validate(); err != nil {
		return fmt.Errorf("gaps config: %w", err)
	}
	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("output config: %w", err)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RequestsPerSecond <= 0 {
		return fmt.Errorf("server requests_per_second must be positive, got %f", c.Server.RequestsPerSecond)
	}
	if c.Cache.CompressionLevel < 0 || c.Cache.CompressionLevel > 22 {
		return fmt.Errorf("cache compression_level must be between 0 and 22, got %d", c.Cache.CompressionLevel)
	}

	return nil
}

// Validate checks if the engine configuration is valid.
func (c *EngineConfig) Validate() error {
	validEngines := []string{"mock", "worker", "remote"}
	engineValid := false
	for _, e := range validEngines {
		if strings.EqualFold(c.Type, e) {
			engineValid = true
			c.Type = e
			break
		}
	}
	if !engineValid {
		return fmt.Errorf("invalid engine '%s': must be one of %v", c.Type, validEngines)
	}

	switch c.Type {
	case "worker":
		if strings.TrimSpace(c.Worker.Command) == "" {
			return fmt.Errorf("worker command cannot be empty")
		}
		if c.Worker.Timeout < time.Second {
			return fmt.Errorf("worker timeout must be at least 1 second, got %v", c.Worker.Timeout)
		}
	case "remote":
		if c.Remote.URL == "" {
			return fmt.Errorf("remote url cannot be empty")
		}
		if c.Remote.RequestsPerMinute < 1 {
			return fmt.Errorf("remote requests_per_minute must be positive, got %d", c.Remote.RequestsPerMinute)
		}
	case "mock":
		if c.Mock.SamplesPerChar < 1 {
			return fmt.Errorf("mock samples_per_char must be positive, got %d", c.Mock.SamplesPerChar)
		}
		if c.Mock.Amplitude <= 0 || c.Mock.Amplitude > 1 {
			return fmt.Errorf("mock amplitude must be in (0, 1], got %f", c.Mock.Amplitude)
		}
	}

	return nil
}

// Validate checks if the speakers configuration is valid.
func (c *SpeakersConfig) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("speakers dir cannot be empty")
	}
	if len(c.Extensions) == 0 {
		return fmt.Errorf("at least one reference file extension is required")
	}
	for i, ext := range c.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Extensions[i] = ext
	}
	return nil
}

// Validate checks if the segmenter configuration is valid.
func (c *SegmenterConfig) Validate() error {
	if c.MaxLength < 1 {
		return fmt.Errorf("max_length must be positive, got %d", c.MaxLength)
	}
	if c.MinLength < 0 || c.MinLength > c.MaxLength {
		return fmt.Errorf("min_length must be between 0 and max_length, got %d", c.MinLength)
	}
	return nil
}

// Validate checks if the silence configuration is valid.
func (c *SilenceConfig) Validate() error {
	if c.GapTopDB <= 0 || c.TrimTopDB <= 0 {
		return fmt.Errorf("top_db thresholds must be positive")
	}
	if c.MaxGapMs < 0 || c.EdgePadMs < 0 {
		return fmt.Errorf("durations cannot be negative")
	}
	if c.EdgePadScale <= 0 || c.EdgePadScale > 1 {
		return fmt.Errorf("edge_pad_scale must be in (0, 1], got %f", c.EdgePadScale)
	}
	if c.FrameLength < 1 || c.HopLength < 1 || c.HopLength > c.FrameLength {
		return fmt.Errorf("frame_length and hop_length must be positive with hop <= frame")
	}
	if c.SilenceThreshDBFS >= 0 {
		return fmt.Errorf("silence_thresh_dbfs must be negative, got %f", c.SilenceThreshDBFS)
	}
	if c.MinSilenceMs < 1 {
		return fmt.Errorf("min_silence_ms must be positive, got %d", c.MinSilenceMs)
	}
	return nil
}

// Validate checks if the gap configuration is valid.
func (c *GapConfig) Validate() error {
	if c.CommaMs < 0 || c.PunctuationMs < 0 {
		return fmt.Errorf("gap durations cannot be negative")
	}
	if c.Scale <= 0 || c.Scale > 1 {
		return fmt.Errorf("gap scale must be in (0, 1], got %f", c.Scale)
	}
	if c.SegmentTopDB <= 0 {
		return fmt.Errorf("segment_top_db must be positive, got %f", c.SegmentTopDB)
	}
	return nil
}

// Validate checks if the output configuration is valid.
func (c *OutputConfig) Validate() error {
	switch strings.ToLower(c.Format) {
	case "wav", "alaw":
		c.Format = strings.ToLower(c.Format)
	default:
		return fmt.Errorf("invalid output format '%s': must be wav or alaw", c.Format)
	}
	if c.AudioFactor <= 0 || c.AudioFactor > 1 {
		return fmt.Errorf("audio_factor must be in (0, 1], got %f", c.AudioFactor)
	}
	if c.ALawSampleRate < 4000 {
		return fmt.Errorf("alaw_sample_rate must be at least 4000, got %d", c.ALawSampleRate)
	}
	return nil
}

// ExpandPath resolves a leading ~ in a configured path.
func ExpandPath(path string) string {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return expanded
}
