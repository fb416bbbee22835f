// Package qbittorrent provides the gateway to the qBittorrent Web API.
//
// This package wraps the autobrr/go-qbittorrent library and normalizes its
// responses into the single TorrentState shape the download monitor
// consumes. The gateway distinguishes a hash genuinely absent from the
// client (ErrTorrentNotFound) from the client being unreachable
// (ErrUnavailable); the monitor treats only the former as progress toward
// giving up on a download.
//
// # Usage
//
//	client, err := qbittorrent.NewClient(url, username, password, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	state, err := client.State(ctx, hash)
//	if errors.Is(err, qbittorrent.ErrTorrentNotFound) {
//	    // hash is not in the client
//	}
package qbittorrent
