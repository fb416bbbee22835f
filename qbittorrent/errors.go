package qbittorrent

import "errors"

// Common errors returned by the qBittorrent gateway.
var (
	// ErrTorrentNotFound is returned when a hash is not present in the client.
	ErrTorrentNotFound = errors.New("torrent not found")

	// ErrInvalidHash is returned when a torrent hash is malformed.
	ErrInvalidHash = errors.New("invalid torrent hash")

	// ErrUnavailable is returned when the client cannot be reached or the
	// call times out. Callers should treat it as transient.
	ErrUnavailable = errors.New("qbittorrent unavailable")
)
