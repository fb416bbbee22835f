package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 5000,
		},
		QBittorrent: QBittorrentConfig{
			URL:      "http://localhost:8080",
			Username: "admin",
		},
		Monitor: MonitorConfig{
			Interval:    time.Minute,
			MaxChecks:   100,
			StallCycles: 10,
			Concurrency: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing qbittorrent url",
			mutate:  func(c *Config) { c.QBittorrent.URL = "" },
			wantErr: true,
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: true,
		},
		{
			name:    "zero interval",
			mutate:  func(c *Config) { c.Monitor.Interval = 0 },
			wantErr: true,
		},
		{
			name:    "zero max checks",
			mutate:  func(c *Config) { c.Monitor.MaxChecks = 0 },
			wantErr: true,
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Monitor.Concurrency = 0 },
			wantErr: true,
		},
		{
			name:    "radarr enabled without api key",
			mutate:  func(c *Config) { c.Radarr.Enabled = true },
			wantErr: true,
		},
		{
			name: "radarr enabled with api key",
			mutate: func(c *Config) {
				c.Radarr.Enabled = true
				c.Radarr.APIKey = "some-key"
			},
			wantErr: false,
		},
		{
			name:    "sonarr enabled without api key",
			mutate:  func(c *Config) { c.Sonarr.Enabled = true },
			wantErr: true,
		},
		{
			name: "store enabled without path",
			mutate: func(c *Config) {
				c.Store.Enabled = true
				c.Store.Path = ""
			},
			wantErr: true,
		},
		{
			name:    "invalid logging level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
		},
		{
			name:    "invalid logging format",
			mutate:  func(c *Config) { c.Logging.Format = "logfmt" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("testdata/minimal.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Monitor.Interval != time.Minute {
		t.Errorf("monitor.interval = %v, want %v", cfg.Monitor.Interval, time.Minute)
	}
	if cfg.Monitor.MaxChecks != 100 {
		t.Errorf("monitor.max_checks = %d, want 100", cfg.Monitor.MaxChecks)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("server.port = %d, want 5000", cfg.Server.Port)
	}
	if len(cfg.Monitor.Extensions) == 0 {
		t.Error("monitor.extensions defaults missing")
	}
}
