// Package main provides the entry point for the xtts CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/xtts-go/tts"
	"github.com/dgnsrekt/xtts-go/tts/engines/mock"
	"github.com/dgnsrekt/xtts-go/tts/engines/remote"
	"github.com/dgnsrekt/xtts-go/tts/engines/worker"
)

const appName = "xtts"

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	envFile    string
	cfg        tts.Config

	rootCmd = &cobra.Command{
		Use:   "xtts",
		Short: "Sentence-aware speech synthesis for XTTS voices",
		Long: paragraph(
			fmt.Sprintf("\nSplit text into %s, synthesize each with a cloned voice and stitch the audio back together with calibrated pauses.", keyword("natural segments")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}
)

// loadConfig resolves the effective configuration: defaults, then the
// config file, then XTTS_* variables, then the legacy environment block.
func loadConfig(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	loaded, err := tts.LoadConfigFromViper()
	if err != nil {
		return err
	}

	legacy, err := tts.ParseLegacyEnv()
	if err != nil {
		return err
	}
	if applied := legacy.Apply(&loaded); len(applied) > 0 {
		log.Debug("Applied legacy environment", "vars", strings.Join(applied, ","))
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("%w: %w", tts.ErrInvalidConfig, err)
		}
	}

	loaded.Speakers.Dir = tts.ExpandPath(loaded.Speakers.Dir)
	loaded.Engine.ModelFolder = tts.ExpandPath(loaded.Engine.ModelFolder)
	loaded.Cache.Dir = tts.ExpandPath(loaded.Cache.Dir)
	if loaded.Cache.Dir == "" {
		dir, err := gap.NewScope(gap.User, appName).CacheDir()
		if err == nil {
			loaded.Cache.Dir = filepath.Join(dir, "audio")
		}
	}

	level, err := log.ParseLevel(loaded.LogLevel)
	if err != nil {
		log.Warn("Unknown log level, using info", "level", loaded.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	cfg = loaded
	return nil
}

// newEngine builds the inference capability selected in the config.
func newEngine(c tts.Config, logger *log.Logger) (tts.Engine, error) {
	switch c.Engine.Type {
	case "mock":
		return mock.New(c.Engine.Mock, c.SampleRate), nil
	case "worker":
		return worker.New(c.Engine, c.SampleRate, logger)
	case "remote":
		return remote.New(c.Engine, c.SampleRate, logger)
	default:
		return nil, fmt.Errorf("%w: unknown engine %q", tts.ErrInvalidConfig, c.Engine.Type)
	}
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadDotEnv()
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration")
	rootCmd.PersistentFlags().String("engine", "", "inference engine (mock, worker, remote)")
	rootCmd.PersistentFlags().String("speakers", "", "directory of reference speaker clips")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	_ = viper.BindPFlag("engine.type", rootCmd.PersistentFlags().Lookup("engine"))
	_ = viper.BindPFlag("speakers.dir", rootCmd.PersistentFlags().Lookup("speakers"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	tts.SetDefaults()

	rootCmd.AddCommand(serveCmd, sayCmd, speakersCmd, configCmd, manCmd)
}

// tryLoadDotEnv loads .env, or the file named by --env-file, without
// overriding variables that are already set. cobra has not parsed flags
// yet, so the flag is looked up by hand.
func tryLoadDotEnv() {
	path := ".env"
	for i, arg := range os.Args {
		if v, ok := strings.CutPrefix(arg, "--env-file="); ok {
			path = v
		} else if arg == "--env-file" && i+1 < len(os.Args) {
			path = os.Args[i+1]
		}
	}
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		log.Warn("Could not load env file", "path", path, "err", err)
	}
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, appName)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, appName)}, dirs...)
	}

	if c := os.Getenv("XTTS_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName(appName)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix(appName)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	configFile = filepath.Join(dirs[0], appName+".yml")
}
