package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/s0up4200/linkarr/arr"
	"github.com/s0up4200/linkarr/qbittorrent"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Test connections to qBittorrent, Radarr and Sonarr",
	Long:  `Verify that every configured service is reachable with the current configuration.`,
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	fmt.Printf("Testing connection to qBittorrent at %s...\n", cfg.QBittorrent.URL)

	if _, err := qbittorrent.NewClient(cfg.QBittorrent, logger); err != nil {
		return fmt.Errorf("qBittorrent connection failed: %w", err)
	}
	fmt.Println("✓ qBittorrent connection successful!")

	if cfg.Radarr.Enabled || cfg.Sonarr.Enabled {
		if cfg.Radarr.Enabled {
			fmt.Printf("\nTesting connection to Radarr at %s...\n", cfg.Radarr.URL)
		}
		if cfg.Sonarr.Enabled {
			fmt.Printf("Testing connection to Sonarr at %s...\n", cfg.Sonarr.URL)
		}
		if _, err := arr.NewNotifier(cfg.Radarr, cfg.Sonarr, logger); err != nil {
			return err
		}
		fmt.Println("✓ Radarr/Sonarr connections successful!")
	} else {
		fmt.Println("\nRadarr/Sonarr rescan integration: Disabled")
	}

	fmt.Printf("\nMonitor settings:\n")
	fmt.Printf("- Poll interval: %s\n", cfg.Monitor.Interval)
	fmt.Printf("- Max checks per download: %d\n", cfg.Monitor.MaxChecks)
	fmt.Printf("- Minimum media file size: %d bytes\n", cfg.Monitor.MinFileSize)

	return nil
}
