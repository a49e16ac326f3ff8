package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/xtts-go/internal/server"
	"github.com/dgnsrekt/xtts-go/tts/synth"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the synthesis HTTP server",
	Long: paragraph(fmt.Sprintf("\n%s speakers, then serve synthesis over HTTP and websocket until interrupted.",
		keyword("Load"))),
	Example: paragraph("xtts serve\nxtts serve --port 8080 --engine worker --watch"),
	Args:    cobra.NoArgs,
	RunE:    runServe,
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port")
	serveCmd.Flags().String("host", "", "listen address")
	serveCmd.Flags().Bool("watch", false, "reload speakers when the directory changes")

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("speakers.watch", serveCmd.Flags().Lookup("watch"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.Default()
	engine, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}

	svc, err := synth.NewService(cfg, engine, afero.NewOsFs(), logger)
	if err != nil {
		return err
	}
	defer svc.Close() //nolint:errcheck

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("unable to start: %w", err)
	}

	info := svc.Info()
	log.Info("Ready",
		"engine", info.Engine.Name,
		"device", info.Engine.Device,
		"speakers", info.Speakers,
		"memory", humanize.IBytes(info.Memory.Available))
	if !info.Memory.Sufficient {
		log.Warn("Available memory below threshold", "min", humanize.IBytes(uint64(cfg.Server.MinAvailableMB)<<20))
	}

	srv := server.New(cfg.Server, svc, logger)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	g.Go(func() error {
		if err := svc.Watch(gctx); err != nil && gctx.Err() == nil {
			return fmt.Errorf("speaker watcher: %w", err)
		}
		return nil
	})
	return g.Wait()
}
