package tts

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// LegacyEnv is the environment block understood by earlier deployments of
// the service. Only variables that are present override the loaded config.
type LegacyEnv struct {
	AudioFactor          *float64 `env:"AUDIO_FACTOR"`
	SampleRate           *int     `env:"SAMPLE_RATE"`
	Port                 *int     `env:"PORT"`
	LogLevel             *string  `env:"LOG_LEVEL"`
	Device               *string  `env:"DEVICE"`
	XTTSModelFolder      *string  `env:"XTTS_MODEL_FOLDER"`
	SampleSpeakersFolder *string  `env:"SAMPLE_SPEAKERS_FOLDER"`
}

// ParseLegacyEnv reads the legacy variables from the process environment.
func ParseLegacyEnv() (LegacyEnv, error) {
	le, err := env.ParseAs[LegacyEnv]()
	if err != nil {
		return LegacyEnv{}, fmt.Errorf("error parsing legacy environment: %w", err)
	}
	return le, nil
}

// Apply overlays every variable that was set onto cfg and returns the keys
// it changed.
func (le LegacyEnv) Apply(cfg *Config) []string {
	var applied []string

	if le.AudioFactor != nil {
		cfg.Output.AudioFactor = *le.AudioFactor
		applied = append(applied, "AUDIO_FACTOR")
	}
	if le.SampleRate != nil {
		cfg.SampleRate = *le.SampleRate
		applied = append(applied, "SAMPLE_RATE")
	}
	if le.Port != nil {
		cfg.Server.Port = *le.Port
		applied = append(applied, "PORT")
	}
	if le.LogLevel != nil {
		cfg.LogLevel = *le.LogLevel
		applied = append(applied, "LOG_LEVEL")
	}
	if le.Device != nil {
		cfg.Engine.Device = *le.Device
		applied = append(applied, "DEVICE")
	}
	if le.XTTSModelFolder != nil {
		cfg.Engine.ModelFolder = ExpandPath(*le.XTTSModelFolder)
		applied = append(applied, "XTTS_MODEL_FOLDER")
	}
	if le.SampleSpeakersFolder != nil {
		cfg.Speakers.Dir = ExpandPath(*le.SampleSpeakersFolder)
		applied = append(applied, "SAMPLE_SPEAKERS_FOLDER")
	}

	return applied
}

// LoadConfigFromEnv builds a Config purely from XTTS_* variables, for
// deployments that run without a config file.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("error parsing environment: %w", err)
	}
	if len(cfg.Segmenter.ContinuationWords) == 0 {
		cfg.Segmenter.ContinuationWords = DefaultContinuationWords()
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}
