package config

import "time"

// Config represents the complete configuration structure
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	QBittorrent QBittorrentConfig `mapstructure:"qbittorrent"`
	Radarr      ArrConfig         `mapstructure:"radarr"`
	Sonarr      ArrConfig         `mapstructure:"sonarr"`
	Monitor     MonitorConfig     `mapstructure:"monitor"`
	Store       StoreConfig       `mapstructure:"store"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds the HTTP listener and webhook authentication settings
type ServerConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	AuthToken string `mapstructure:"auth_token"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
}

// QBittorrentConfig holds qBittorrent WebUI connection details
type QBittorrentConfig struct {
	URL      string        `mapstructure:"url"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ArrConfig holds connection details for a Radarr or Sonarr instance.
// Rescan controls whether a library rescan command is sent once a
// download has been fully linked.
type ArrConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	APIKey  string `mapstructure:"api_key"`
	Rescan  bool   `mapstructure:"rescan_on_complete"`
}

// MonitorConfig contains download monitor policy settings
type MonitorConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	MaxChecks    int           `mapstructure:"max_checks"`
	StallCycles  int           `mapstructure:"stall_cycles"`
	Concurrency  int           `mapstructure:"concurrency"`
	CallTimeout  time.Duration `mapstructure:"call_timeout"`
	HistoryGrace time.Duration `mapstructure:"history_grace"`
	HistorySize  int           `mapstructure:"history_size"`
	MinFileSize  int64         `mapstructure:"min_file_size"`
	Extensions   []string      `mapstructure:"extensions"`
	Rule         string        `mapstructure:"rule"`
}

// StoreConfig controls the optional durable registry snapshot
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Color  bool   `mapstructure:"color"`
}
