package tts

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// LoadConfigFromViper loads configuration from the global Viper instance.
func LoadConfigFromViper() (Config, error) {
	cfg := DefaultConfig()

	if viper.IsSet("sample_rate") {
		cfg.SampleRate = viper.GetInt("sample_rate")
	}
	if viper.IsSet("log_level") {
		cfg.LogLevel = viper.GetString("log_level")
	}

	cfg.Engine = loadEngineConfig()
	cfg.Speakers = loadSpeakersConfig()
	cfg.Segmenter = loadSegmenterConfig()
	cfg.Silence = loadSilenceConfig()
	cfg.Gaps = loadGapConfig()
	cfg.Inference = loadInferenceParams()
	cfg.Output = loadOutputConfig()
	cfg.Cache = loadCacheConfig()
	cfg.Server = loadServerConfig()

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return cfg, nil
}

// loadEngineConfig loads engine selection from Viper.
func loadEngineConfig() EngineConfig {
	cfg := DefaultEngineConfig()

	if viper.IsSet("engine.type") {
		cfg.Type = viper.GetString("engine.type")
	}
	if viper.IsSet("engine.device") {
		cfg.Device = viper.GetString("engine.device")
	}
	if viper.IsSet("engine.model_folder") {
		cfg.ModelFolder = ExpandPath(viper.GetString("engine.model_folder"))
	}
	if viper.IsSet("engine.exclusive") {
		cfg.Exclusive = viper.GetBool("engine.exclusive")
	}

	if viper.IsSet("engine.worker.command") {
		cfg.Worker.Command = viper.GetString("engine.worker.command")
	}
	if viper.IsSet("engine.worker.timeout") {
		cfg.Worker.Timeout = getDuration("engine.worker.timeout", cfg.Worker.Timeout)
	}

	if viper.IsSet("engine.remote.url") {
		cfg.Remote.URL = viper.GetString("engine.remote.url")
	}
	if viper.IsSet("engine.remote.timeout") {
		cfg.Remote.Timeout = getDuration("engine.remote.timeout", cfg.Remote.Timeout)
	}
	if viper.IsSet("engine.remote.requests_per_minute") {
		cfg.Remote.RequestsPerMinute = viper.GetInt("engine.remote.requests_per_minute")
	}

	if viper.IsSet("engine.mock.samples_per_char") {
		cfg.Mock.SamplesPerChar = viper.GetInt("engine.mock.samples_per_char")
	}
	if viper.IsSet("engine.mock.amplitude") {
		cfg.Mock.Amplitude = viper.GetFloat64("engine.mock.amplitude")
	}
	if viper.IsSet("engine.mock.delay") {
		cfg.Mock.Delay = getDuration("engine.mock.delay", cfg.Mock.Delay)
	}

	return cfg
}

// loadSpeakersConfig loads speaker cache settings from Viper.
func loadSpeakersConfig() SpeakersConfig {
	cfg := DefaultSpeakersConfig()

	if viper.IsSet("speakers.dir") {
		cfg.Dir = ExpandPath(viper.GetString("speakers.dir"))
	}
	if viper.IsSet("speakers.extensions") {
		cfg.Extensions = viper.GetStringSlice("speakers.extensions")
	}
	if viper.IsSet("speakers.watch") {
		cfg.Watch = viper.GetBool("speakers.watch")
	}
	if viper.IsSet("speakers.debounce") {
		cfg.Debounce = getDuration("speakers.debounce", cfg.Debounce)
	}

	return cfg
}

// loadSegmenterConfig loads text splitting settings from Viper.
func loadSegmenterConfig() SegmenterConfig {
	cfg := DefaultSegmenterConfig()

	if viper.IsSet("segmenter.min_length") {
		cfg.MinLength = viper.GetInt("segmenter.min_length")
	}
	if viper.IsSet("segmenter.max_length") {
		cfg.MaxLength = viper.GetInt("segmenter.max_length")
	}
	if viper.IsSet("segmenter.preprocess") {
		cfg.Preprocess = viper.GetBool("segmenter.preprocess")
	}
	if viper.IsSet("segmenter.preserve_continuation_splits") {
		cfg.PreserveContinuationSplits = viper.GetBool("segmenter.preserve_continuation_splits")
	}
	if viper.IsSet("segmenter.continuation_words") {
		if words := viper.GetStringSlice("segmenter.continuation_words"); len(words) > 0 {
			cfg.ContinuationWords = words
		}
	}

	return cfg
}

// loadSilenceConfig loads silence thresholds from Viper.
func loadSilenceConfig() SilenceConfig {
	cfg := DefaultSilenceConfig()

	if viper.IsSet("silence.gap_top_db") {
		cfg.GapTopDB = viper.GetFloat64("silence.gap_top_db")
	}
	if viper.IsSet("silence.max_gap_ms") {
		cfg.MaxGapMs = viper.GetInt("silence.max_gap_ms")
	}
	if viper.IsSet("silence.trim_top_db") {
		cfg.TrimTopDB = viper.GetFloat64("silence.trim_top_db")
	}
	if viper.IsSet("silence.edge_pad_ms") {
		cfg.EdgePadMs = viper.GetInt("silence.edge_pad_ms")
	}
	if viper.IsSet("silence.edge_pad_scale") {
		cfg.EdgePadScale = viper.GetFloat64("silence.edge_pad_scale")
	}
	if viper.IsSet("silence.frame_length") {
		cfg.FrameLength = viper.GetInt("silence.frame_length")
	}
	if viper.IsSet("silence.hop_length") {
		cfg.HopLength = viper.GetInt("silence.hop_length")
	}
	if viper.IsSet("silence.silence_thresh_dbfs") {
		cfg.SilenceThreshDBFS = viper.GetFloat64("silence.silence_thresh_dbfs")
	}
	if viper.IsSet("silence.min_silence_ms") {
		cfg.MinSilenceMs = viper.GetInt("silence.min_silence_ms")
	}

	return cfg
}

// loadGapConfig loads inter-segment silence settings from Viper.
func loadGapConfig() GapConfig {
	cfg := DefaultGapConfig()

	if viper.IsSet("gaps.comma_ms") {
		cfg.CommaMs = viper.GetInt("gaps.comma_ms")
	}
	if viper.IsSet("gaps.punctuation_ms") {
		cfg.PunctuationMs = viper.GetInt("gaps.punctuation_ms")
	}
	if viper.IsSet("gaps.scale") {
		cfg.Scale = viper.GetFloat64("gaps.scale")
	}
	if viper.IsSet("gaps.segment_top_db") {
		cfg.SegmentTopDB = viper.GetFloat64("gaps.segment_top_db")
	}

	return cfg
}

// loadInferenceParams loads decoding parameters from Viper.
func loadInferenceParams() InferenceParams {
	cfg := DefaultInferenceParams()

	if viper.IsSet("inference.temperature") {
		cfg.Temperature = viper.GetFloat64("inference.temperature")
	}
	if viper.IsSet("inference.length_penalty") {
		cfg.LengthPenalty = viper.GetFloat64("inference.length_penalty")
	}
	if viper.IsSet("inference.repetition_penalty") {
		cfg.RepetitionPenalty = viper.GetFloat64("inference.repetition_penalty")
	}
	if viper.IsSet("inference.top_k") {
		cfg.TopK = viper.GetInt("inference.top_k")
	}
	if viper.IsSet("inference.top_p") {
		cfg.TopP = viper.GetFloat64("inference.top_p")
	}
	if viper.IsSet("inference.do_sample") {
		cfg.DoSample = viper.GetBool("inference.do_sample")
	}
	if viper.IsSet("inference.speed") {
		cfg.Speed = viper.GetFloat64("inference.speed")
	}
	if viper.IsSet("inference.enable_text_splitting") {
		cfg.EnableTextSplitting = viper.GetBool("inference.enable_text_splitting")
	}

	return cfg
}

// loadOutputConfig loads encoding settings from Viper.
func loadOutputConfig() OutputConfig {
	cfg := DefaultOutputConfig()

	if viper.IsSet("output.format") {
		cfg.Format = viper.GetString("output.format")
	}
	if viper.IsSet("output.audio_factor") {
		cfg.AudioFactor = viper.GetFloat64("output.audio_factor")
	}
	if viper.IsSet("output.alaw_sample_rate") {
		cfg.ALawSampleRate = viper.GetInt("output.alaw_sample_rate")
	}

	return cfg
}

// loadCacheConfig loads output cache settings from Viper.
func loadCacheConfig() CacheConfig {
	cfg := DefaultCacheConfig()

	if viper.IsSet("cache.enabled") {
		cfg.Enabled = viper.GetBool("cache.enabled")
	}
	if viper.IsSet("cache.dir") {
		cfg.Dir = ExpandPath(viper.GetString("cache.dir"))
	}
	if viper.IsSet("cache.memory_capacity_mb") {
		cfg.MemoryCapacityMB = viper.GetInt("cache.memory_capacity_mb")
	}
	if viper.IsSet("cache.disk_capacity_mb") {
		cfg.DiskCapacityMB = viper.GetInt("cache.disk_capacity_mb")
	}
	if viper.IsSet("cache.compression_level") {
		cfg.CompressionLevel = viper.GetInt("cache.compression_level")
	}

	return cfg
}

// loadServerConfig loads transport settings from Viper.
func loadServerConfig() ServerConfig {
	cfg := DefaultServerConfig()

	if viper.IsSet("server.port") {
		cfg.Port = viper.GetInt("server.port")
	}
	if viper.IsSet("server.host") {
		cfg.Host = viper.GetString("server.host")
	}
	if viper.IsSet("server.requests_per_second") {
		cfg.RequestsPerSecond = viper.GetFloat64("server.requests_per_second")
	}
	if viper.IsSet("server.burst") {
		cfg.Burst = viper.GetInt("server.burst")
	}
	if viper.IsSet("server.max_body_bytes") {
		cfg.MaxBodyBytes = viper.GetInt64("server.max_body_bytes")
	}
	if viper.IsSet("server.read_timeout") {
		cfg.ReadTimeout = getDuration("server.read_timeout", cfg.ReadTimeout)
	}
	if viper.IsSet("server.write_timeout") {
		cfg.WriteTimeout = getDuration("server.write_timeout", cfg.WriteTimeout)
	}
	if viper.IsSet("server.min_available_mb") {
		cfg.MinAvailableMB = viper.GetInt("server.min_available_mb")
	}

	return cfg
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(viper.GetString(key)); err == nil {
		return d
	}
	return fallback
}

// SetDefaults sets default values in Viper.
func SetDefaults() {
	defaults := DefaultConfig()

	viper.SetDefault("sample_rate", defaults.SampleRate)
	viper.SetDefault("log_level", defaults.LogLevel)

	// Engine defaults
	viper.SetDefault("engine.type", defaults.Engine.Type)
	viper.SetDefault("engine.device", defaults.Engine.Device)
	viper.SetDefault("engine.model_folder", defaults.Engine.ModelFolder)
	viper.SetDefault("engine.exclusive", defaults.Engine.Exclusive)
	viper.SetDefault("engine.worker.command", defaults.Engine.Worker.Command)
	viper.SetDefault("engine.worker.timeout", defaults.Engine.Worker.Timeout.String())
	viper.SetDefault("engine.remote.url", defaults.Engine.Remote.URL)
	viper.SetDefault("engine.remote.timeout", defaults.Engine.Remote.Timeout.String())
	viper.SetDefault("engine.remote.requests_per_minute", defaults.Engine.Remote.RequestsPerMinute)

	// Speakers defaults
	viper.SetDefault("speakers.dir", defaults.Speakers.Dir)
	viper.SetDefault("speakers.extensions", defaults.Speakers.Extensions)
	viper.SetDefault("speakers.watch", defaults.Speakers.Watch)
	viper.SetDefault("speakers.debounce", defaults.Speakers.Debounce.String())

	// Segmenter defaults
	viper.SetDefault("segmenter.min_length", defaults.Segmenter.MinLength)
	viper.SetDefault("segmenter.max_length", defaults.Segmenter.MaxLength)
	viper.SetDefault("segmenter.preprocess", defaults.Segmenter.Preprocess)

	// Output defaults
	viper.SetDefault("output.format", defaults.Output.Format)
	viper.SetDefault("output.audio_factor", defaults.Output.AudioFactor)

	// Cache defaults
	viper.SetDefault("cache.enabled", defaults.Cache.Enabled)
	viper.SetDefault("cache.memory_capacity_mb", defaults.Cache.MemoryCapacityMB)
	viper.SetDefault("cache.disk_capacity_mb", defaults.Cache.DiskCapacityMB)

	// Server defaults
	viper.SetDefault("server.port", defaults.Server.Port)
	viper.SetDefault("server.host", defaults.Server.Host)
	viper.SetDefault("server.requests_per_second", defaults.Server.RequestsPerSecond)
	viper.SetDefault("server.burst", defaults.Server.Burst)
}
