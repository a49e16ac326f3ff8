package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/xtts-go/tts/speakers"
)

var (
	speakersServer string

	speakersCmd = &cobra.Command{
		Use:   "speakers",
		Short: "Inspect and reload speaker voices",
		Args:  cobra.NoArgs,
	}

	speakersListCmd = &cobra.Command{
		Use:   "list",
		Short: "Load the speakers directory and list the voices",
		Long: paragraph(fmt.Sprintf("\n%s every reference clip in the speakers directory with the configured engine and report which voices are usable.",
			keyword("Extract"))),
		Args: cobra.NoArgs,
		RunE: runSpeakersList,
	}

	speakersReloadCmd = &cobra.Command{
		Use:     "reload",
		Short:   "Ask a running server to rescan its speakers",
		Example: paragraph("xtts speakers reload\nxtts speakers reload --server http://10.0.0.5:8000"),
		Args:    cobra.NoArgs,
		RunE:    runSpeakersReload,
	}
)

func init() {
	speakersReloadCmd.Flags().StringVar(&speakersServer, "server", "", "server base URL (default from config)")
	speakersCmd.AddCommand(speakersListCmd, speakersReloadCmd)
}

func runSpeakersList(cmd *cobra.Command, _ []string) error {
	engine, err := newEngine(cfg, log.Default())
	if err != nil {
		return err
	}
	cache := speakers.New(afero.NewOsFs(), cfg.Speakers, engine, log.Default())
	report, loadErr := cache.Load(cmd.Context())

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, faint(fmt.Sprintf("%s (%d loaded in %s)", cache.Dir(), len(report.Loaded), report.Duration.Round(time.Millisecond))))
	for _, s := range report.Loaded {
		fmt.Fprintln(out, "  "+keyword(s))
	}
	for _, f := range report.Failed {
		fmt.Fprintf(out, "  %s %s\n", failure(f.Speaker), faint(f.Err.Error()))
	}
	if len(report.Failed) > 0 {
		return nil
	}
	return loadErr
}

type reloadBody struct {
	Loaded []string          `json:"loaded"`
	Failed map[string]string `json:"failed"`
}

func runSpeakersReload(cmd *cobra.Command, _ []string) error {
	base := speakersServer
	if base == "" {
		host := cfg.Server.Host
		if host == "" || host == "0.0.0.0" {
			host = "127.0.0.1"
		}
		base = "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port))
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/tts/voices/reload", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("unable to reach server: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("reload failed: status %d: %s", resp.StatusCode, msg)
	}
	var body reloadBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("unable to decode response: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, faint(fmt.Sprintf("%d speakers loaded", len(body.Loaded))))
	for _, s := range body.Loaded {
		fmt.Fprintln(out, "  "+keyword(s))
	}
	failed := make([]string, 0, len(body.Failed))
	for s := range body.Failed {
		failed = append(failed, s)
	}
	sort.Strings(failed)
	for _, s := range failed {
		fmt.Fprintf(out, "  %s %s\n", failure(s), faint(body.Failed[s]))
	}
	return nil
}
