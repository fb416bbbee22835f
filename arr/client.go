// Package arr wraps the Radarr and Sonarr APIs for completion
// notifications. After a download has been fully linked into the library,
// the owning service is asked to rescan so it imports the new files.
package arr

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golift.io/starr"
	"golift.io/starr/radarr"
	"golift.io/starr/sonarr"

	"github.com/s0up4200/linkarr/config"
	"github.com/s0up4200/linkarr/intake"
	"github.com/s0up4200/linkarr/monitor"
)

// Notifier triggers library rescans against the configured services.
// It implements monitor.Notifier. A service left unconfigured is skipped.
type Notifier struct {
	radarr       *radarr.Radarr
	sonarr       *sonarr.Sonarr
	radarrRescan bool
	sonarrRescan bool
	logger       zerolog.Logger
}

// NewNotifier creates clients for every enabled service and verifies
// their connections.
func NewNotifier(radarrCfg, sonarrCfg config.ArrConfig, logger zerolog.Logger) (*Notifier, error) {
	n := &Notifier{logger: logger}

	if radarrCfg.Enabled {
		client := radarr.New(starr.New(radarrCfg.APIKey, radarrCfg.URL, 30*time.Second))
		if _, err := client.GetSystemStatus(); err != nil {
			return nil, fmt.Errorf("failed to connect to Radarr: %w", err)
		}
		n.radarr = client
		n.radarrRescan = radarrCfg.Rescan
	}

	if sonarrCfg.Enabled {
		client := sonarr.New(starr.New(sonarrCfg.APIKey, sonarrCfg.URL, 30*time.Second))
		if _, err := client.GetSystemStatus(); err != nil {
			return nil, fmt.Errorf("failed to connect to Sonarr: %w", err)
		}
		n.sonarr = client
		n.sonarrRescan = sonarrCfg.Rescan
	}

	return n, nil
}

// DownloadComplete asks the service that grabbed the download to rescan
// the media so the linked files are imported. Failures are logged only;
// the download itself already succeeded.
func (n *Notifier) DownloadComplete(ctx context.Context, rec monitor.Record) {
	if rec.MediaID == 0 {
		return
	}

	switch rec.Source {
	case intake.SourceRadarr:
		if n.radarr == nil || !n.radarrRescan {
			return
		}
		cmd := &radarr.CommandRequest{
			Name:     "RefreshMovie",
			MovieIDs: []int64{rec.MediaID},
		}
		if _, err := n.radarr.SendCommandContext(ctx, cmd); err != nil {
			n.logger.Error().
				Err(err).
				Str("hash", rec.Hash).
				Int64("movie_id", rec.MediaID).
				Msg("Failed to trigger Radarr rescan")
			return
		}
		n.logger.Info().
			Str("hash", rec.Hash).
			Int64("movie_id", rec.MediaID).
			Msg("Triggered Radarr rescan")

	case intake.SourceSonarr:
		if n.sonarr == nil || !n.sonarrRescan {
			return
		}
		cmd := &sonarr.CommandRequest{
			Name:     "RescanSeries",
			SeriesID: rec.MediaID,
		}
		if _, err := n.sonarr.SendCommandContext(ctx, cmd); err != nil {
			n.logger.Error().
				Err(err).
				Str("hash", rec.Hash).
				Int64("series_id", rec.MediaID).
				Msg("Failed to trigger Sonarr rescan")
			return
		}
		n.logger.Info().
			Str("hash", rec.Hash).
			Int64("series_id", rec.MediaID).
			Msg("Triggered Sonarr rescan")
	}
}
