package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/s0up4200/linkarr/config"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  zerolog.Logger

	version   = "dev"
	buildTime = "unknown"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "linkarr",
	Short: "Webhook-driven download tracker for Radarr and Sonarr",
	Long: `linkarr receives grab webhooks from Radarr and Sonarr, follows the
download in qBittorrent and hardlinks finished files into the media
library so the torrent keeps seeding from the original location.`,
	PersistentPreRunE: initializeApp,
}

// SetVersion records build information injected at link time.
func SetVersion(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = fmt.Sprintf("%s (built %s)", v, bt)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
}

// initializeApp loads configuration and sets up the logger
func initializeApp(cmd *cobra.Command, args []string) error {
	// A .env file is optional; real environment variables win either way.
	_ = godotenv.Load()

	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger = setupLogger(cfg.Logging)
	return nil
}

// setupLogger configures the zerolog logger
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = zerolog.DebugLevel
	case "trace":
		level = zerolog.TraceLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	format := strings.ToLower(cfg.Format)
	if format == "" || format == "auto" {
		// Console output for interactive sessions, JSON when the output
		// is piped or captured by a service manager.
		if isatty.IsTerminal(os.Stderr.Fd()) {
			format = "console"
		} else {
			format = "json"
		}
	}

	if format == "json" {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    !cfg.Color,
	}

	return zerolog.New(output).With().Timestamp().Logger()
}
