package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maulida/sleuth/pkg/cron"
	"github.com/maulida/sleuth/pkg/httpapi"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Sleuth daemon",
	Long: `Run the Sleuth daemon: the HTTP API, the websocket run stream, and
the scheduled batch audit if a schedule is configured. The process runs
until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg, true)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := buildRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	server, err := httpapi.NewServer(httpapi.ServerOptions{
		Host: cfg.HTTP.Host,
		Port: cfg.HTTP.Port,
	}, rt.dispatcher, rt.service, rt.broadcaster, log.GetZerolog())
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	var scheduler *cron.Scheduler
	if cfg.Audit.Schedule != "" {
		scheduler, err = cron.NewScheduler(cfg.Audit.Schedule, rt.service, log.GetZerolog())
		if err != nil {
			return fmt.Errorf("failed to create batch scheduler: %w", err)
		}
		scheduler.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	if scheduler != nil {
		scheduler.Stop()
	}
	if err := server.Stop(); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Give background batch work a moment to observe cancellation.
	cancel()
	time.Sleep(100 * time.Millisecond)

	log.Info().Msg("Sleuth daemon stopped")
	return nil
}
