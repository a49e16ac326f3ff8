package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# output sample rate of every synthesized buffer
sample_rate: 24000
# debug, info, warn or error
log_level: "info"

engine:
  # mock, worker or remote
  type: "mock"
  device: "gpu"
  model_folder: "/mnt/data/models/xtts/"
  # serialize inference across requests (single accelerator)
  exclusive: true
  # worker.command is run once per call; point it at a resident model server
  worker:
    command: "python3 -m xtts_worker"
    timeout: "2m"
  remote:
    url: "http://127.0.0.1:8020"
    timeout: "2m"
    requests_per_minute: 120

speakers:
  # one reference clip per speaker, named <speaker>.wav
  dir: "speakers_audios/"
  extensions: [".wav"]
  # reload when the directory changes (serve only)
  watch: false
  debounce: "2s"

segmenter:
  min_length: 0
  max_length: 100
  preprocess: true
  preserve_continuation_splits: false

gaps:
  comma_ms: 150
  punctuation_ms: 200
  scale: 0.98

inference:
  temperature: 0.65
  length_penalty: 1.0
  repetition_penalty: 12.0
  top_k: 35
  top_p: 0.75
  do_sample: true
  speed: 0.95
  enable_text_splitting: true

output:
  # wav or alaw
  format: "wav"
  audio_factor: 0.6
  alaw_sample_rate: 8000

cache:
  enabled: true
  # dir: "~/.cache/xtts/audio"
  memory_capacity_mb: 64
  disk_capacity_mb: 512
  compression_level: 3

server:
  host: "0.0.0.0"
  port: 8000
  requests_per_second: 4
  burst: 8
  min_available_mb: 1331
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the xtts config file",
	Long:    paragraph(fmt.Sprintf("\n%s the xtts config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("xtts config\nxtts config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	// the config must stay editable even when it does not validate
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("xtts", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
