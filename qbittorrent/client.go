package qbittorrent

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog"

	"github.com/s0up4200/linkarr/config"
)

// Client wraps the qBittorrent API client
type Client struct {
	client *qbittorrent.Client
	logger zerolog.Logger
}

// NewClient creates a new qBittorrent client and verifies the connection
func NewClient(cfg config.QBittorrentConfig, logger zerolog.Logger) (*Client, error) {
	client := qbittorrent.NewClient(qbittorrent.Config{
		Host:     cfg.URL,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  int(cfg.Timeout.Seconds()),
	})

	// Test connection by logging in
	if err := client.Login(); err != nil {
		return nil, fmt.Errorf("failed to connect to qBittorrent: %w", err)
	}

	return &Client{
		client: client,
		logger: logger,
	}, nil
}

// State returns the normalized state of the torrent identified by hash.
// It returns ErrTorrentNotFound when the hash is absent from the client
// and ErrUnavailable when the client cannot be reached.
func (c *Client) State(ctx context.Context, hash string) (*TorrentState, error) {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if !ValidHash(hash) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}

	torrents, err := c.client.GetTorrentsCtx(ctx, qbittorrent.TorrentFilterOptions{
		Hashes: []string{hash},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}

	if len(torrents) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTorrentNotFound, hash)
	}

	t := torrents[0]
	state := &TorrentState{
		Hash:     t.Hash,
		Name:     t.Name,
		SavePath: t.SavePath,
		State:    string(t.State),
		Size:     t.Size,
		Progress: t.Progress,
		Complete: isComplete(t.Progress, string(t.State)),
	}

	files, err := c.client.GetFilesInformationCtx(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}

	if files != nil {
		for _, f := range *files {
			path := f.Name
			if !filepath.IsAbs(path) {
				path = filepath.Join(t.SavePath, f.Name)
			}
			state.Files = append(state.Files, TorrentFile{
				Path:     path,
				Size:     f.Size,
				Progress: float64(f.Progress),
			})
		}
	}

	c.logger.Debug().
		Str("hash", hash).
		Str("state", state.State).
		Float64("progress", state.Progress).
		Int("files", len(state.Files)).
		Msg("Fetched torrent state")

	return state, nil
}

// ValidHash reports whether hash looks like a v1 (40 hex) or v2 (64 hex)
// torrent info hash.
func ValidHash(hash string) bool {
	if len(hash) != 40 && len(hash) != 64 {
		return false
	}
	for _, r := range hash {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
