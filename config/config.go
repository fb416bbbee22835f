package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load loads the configuration from file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in standard locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		// Check current directory first
		v.AddConfigPath(".")

		// Check home directory
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".linkarr"))
		}

		// Check /etc
		v.AddConfigPath("/etc/linkarr/")
	}

	// Environment overrides, e.g. LINKARR_QBITTORRENT_URL
	v.SetEnvPrefix("linkarr")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
		// No config file is fine as long as env vars cover the required keys
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)

	// qBittorrent defaults
	v.SetDefault("qbittorrent.url", "http://localhost:8080")
	v.SetDefault("qbittorrent.username", "admin")
	v.SetDefault("qbittorrent.timeout", 30*time.Second)

	// Monitor defaults
	v.SetDefault("monitor.interval", time.Minute)
	v.SetDefault("monitor.max_checks", 100)
	v.SetDefault("monitor.stall_cycles", 10)
	v.SetDefault("monitor.concurrency", 5)
	v.SetDefault("monitor.call_timeout", 15*time.Second)
	v.SetDefault("monitor.history_grace", 10*time.Minute)
	v.SetDefault("monitor.history_size", 100)
	v.SetDefault("monitor.min_file_size", 10*1024*1024)
	v.SetDefault("monitor.extensions", []string{
		".mkv", ".mp4", ".avi", ".mov", ".m4v",
		".srt", ".sub", ".idx", ".ass",
	})

	// Store defaults
	v.SetDefault("store.enabled", false)
	v.SetDefault("store.path", "linkarr.db")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.color", true)
}

// validate checks if the configuration is valid
func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", cfg.Server.Port)
	}

	if cfg.QBittorrent.URL == "" {
		return fmt.Errorf("qbittorrent.url is required")
	}

	if cfg.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive")
	}

	if cfg.Monitor.MaxChecks <= 0 {
		return fmt.Errorf("monitor.max_checks must be positive")
	}

	if cfg.Monitor.Concurrency <= 0 {
		return fmt.Errorf("monitor.concurrency must be positive")
	}

	if cfg.Radarr.Enabled && cfg.Radarr.APIKey == "" {
		return fmt.Errorf("radarr.api_key must be set when radarr is enabled")
	}

	if cfg.Sonarr.Enabled && cfg.Sonarr.APIKey == "" {
		return fmt.Errorf("sonarr.api_key must be set when sonarr is enabled")
	}

	if cfg.Store.Enabled && cfg.Store.Path == "" {
		return fmt.Errorf("store.path must be set when store is enabled")
	}

	// Validate logging level
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", cfg.Logging.Level)
	}

	// Validate logging format
	validFormats := map[string]bool{
		"":        true, // auto-detect
		"auto":    true,
		"console": true,
		"json":    true,
	}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s", cfg.Logging.Format)
	}

	return nil
}
