package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dgnsrekt/xtts-go/tts"
	"github.com/dgnsrekt/xtts-go/tts/audio"
	"github.com/dgnsrekt/xtts-go/tts/synth"
)

var (
	sayVoice    string
	sayLanguage string
	sayOutput   string
	sayFormat   string
	sayBoundary int
	sayPlay     bool

	sayCmd = &cobra.Command{
		Use:   "say [TEXT]",
		Short: "Synthesize text once",
		Long: paragraph(fmt.Sprintf("\n%s text with a speaker voice and write the audio to a file, stdout or the speakers. Text is read from stdin when no argument is given.",
			keyword("Synthesize"))),
		Example: paragraph("xtts say --voice kratos --lang pt \"Olá, mundo.\" -o ola.wav\necho \"Hello there.\" | xtts say --voice kratos --play"),
		Args:    cobra.MaximumNArgs(1),
		RunE:    runSay,
	}
)

func init() {
	sayCmd.Flags().StringVarP(&sayVoice, "voice", "v", "", "speaker key")
	sayCmd.Flags().StringVarP(&sayLanguage, "lang", "l", "en", "language code")
	sayCmd.Flags().StringVarP(&sayOutput, "output", "o", "", "output file (default stdout)")
	sayCmd.Flags().StringVarP(&sayFormat, "format", "f", "", "wav or alaw (default from config)")
	sayCmd.Flags().IntVar(&sayBoundary, "boundary-ms", tts.DefaultBoundarySilenceMs, "silence kept at each end, in ms")
	sayCmd.Flags().BoolVarP(&sayPlay, "play", "p", false, "play through the default audio device")
	_ = sayCmd.MarkFlagRequired("voice")
}

func runSay(cmd *cobra.Command, args []string) error {
	text, err := sayText(args)
	if err != nil {
		return err
	}
	if !sayPlay && sayOutput == "" && term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("refusing to write audio to a terminal: use --output, --play or a pipe")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	// one-shot runs gain nothing from the output cache
	c := cfg
	c.Cache.Enabled = false

	engine, err := newEngine(c, log.Default())
	if err != nil {
		return err
	}
	svc, err := synth.NewService(c, engine, afero.NewOsFs(), log.Default())
	if err != nil {
		return err
	}
	defer svc.Close() //nolint:errcheck
	if err := svc.Start(ctx); err != nil {
		return err
	}

	req := tts.SynthesisRequest{
		Text:              text,
		Voice:             sayVoice,
		Language:          sayLanguage,
		BoundarySilenceMs: sayBoundary,
	}

	if sayPlay {
		return play(ctx, svc, req)
	}

	data, err := svc.Render(ctx, req, sayFormat)
	if err != nil {
		return err
	}
	return writeAudio(data)
}

func play(ctx context.Context, svc *synth.Service, req tts.SynthesisRequest) error {
	buf, err := svc.Synthesize(ctx, req)
	if err != nil {
		return err
	}
	player, err := audio.NewPlayer(buf.SampleRate)
	if err != nil {
		return err
	}
	log.Debug("Playing", "duration", buf.Duration())
	if err := player.Play(ctx, buf); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func sayText(args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	if yes, err := stdinIsPipe(); err != nil {
		return "", err
	} else if !yes && len(args) == 0 {
		return "", errors.New("missing text: pass it as an argument or pipe it to stdin")
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("unable to read from stdin: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func writeAudio(data []byte) error {
	if sayOutput == "" || sayOutput == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(sayOutput, data, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("unable to write audio: %w", err)
	}
	log.Info("Wrote audio", "path", sayOutput, "bytes", len(data))
	return nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}
