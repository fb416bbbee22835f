package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/s0up4200/linkarr/arr"
	"github.com/s0up4200/linkarr/intake"
	"github.com/s0up4200/linkarr/monitor"
	"github.com/s0up4200/linkarr/qbittorrent"
	"github.com/s0up4200/linkarr/server"
	"github.com/s0up4200/linkarr/store"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server and download monitor",
	Long: `Start the HTTP server that receives Radarr and Sonarr webhooks and
the background monitor that follows downloads in qBittorrent and links
finished files into the library.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	qbClient, err := qbittorrent.NewClient(cfg.QBittorrent, logger)
	if err != nil {
		return fmt.Errorf("failed to create qBittorrent client: %w", err)
	}

	mon := monitor.New(qbClient, nil, monitor.OptionsFromConfig(cfg.Monitor), logger)

	var db *store.Store
	if cfg.Store.Enabled {
		db, err = store.Open(cfg.Store.Path, logger)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer db.Close()
		mon.SetStore(db)
	}

	if cfg.Radarr.Enabled || cfg.Sonarr.Enabled {
		notifier, err := arr.NewNotifier(cfg.Radarr, cfg.Sonarr, logger)
		if err != nil {
			return err
		}
		mon.SetNotifier(notifier)
	}

	srv := server.NewServer(cfg.Server, mon, qbClient, logger)
	srv.SetVersion(version)
	if db != nil {
		srv.SetStore(db)
	}

	if cfg.Monitor.Rule != "" {
		rule, err := intake.CompileRule(cfg.Monitor.Rule)
		if err != nil {
			return fmt.Errorf("invalid grab rule: %w", err)
		}
		srv.SetRule(rule)
		logger.Info().Str("rule", rule.String()).Msg("Grab rule active")
	}

	if err := mon.Start(); err != nil {
		return fmt.Errorf("failed to start monitor: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info().
		Str("version", version).
		Dur("poll_interval", cfg.Monitor.Interval).
		Msg("linkarr started")

	select {
	case err := <-errCh:
		_ = mon.Stop()
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := mon.Stop(); err != nil {
		logger.Error().Err(err).Msg("Monitor shutdown failed")
	}

	return nil
}
