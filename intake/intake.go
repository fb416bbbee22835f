// Package intake normalizes heterogeneous Radarr and Sonarr webhook
// payloads into a single internal event shape.
//
// The download monitor only ever consumes the normalized Event; everything
// specific to an upstream tool (payload fields, event type names, movie vs.
// series blocks) stays inside this package.
package intake

import (
	"encoding/json"
	"fmt"
	"strings"
)

// probe is used to sniff which tool sent a payload before decoding it fully.
type probe struct {
	EventType string          `json:"eventType"`
	Movie     json.RawMessage `json:"movie"`
	Remote    json.RawMessage `json:"remoteMovie"`
	Series    json.RawMessage `json:"series"`
}

// Parse decodes a webhook body, detects its origin and returns the
// normalized event. The origin is detected by shape: Radarr payloads carry
// a movie block, Sonarr payloads a series block.
func Parse(body []byte) (*Event, error) {
	var p probe
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEvent, err)
	}

	switch {
	case p.Series != nil:
		var w SonarrWebhook
		if err := json.Unmarshal(body, &w); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidEvent, err)
		}
		return w.Normalize(), nil
	case p.Movie != nil || p.Remote != nil:
		var w RadarrWebhook
		if err := json.Unmarshal(body, &w); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidEvent, err)
		}
		return w.Normalize(), nil
	case strings.EqualFold(p.EventType, "Test"):
		// Test payloads from either tool may omit media blocks entirely.
		return newEvent(TypeTest, SourceRadarr), nil
	default:
		return nil, ErrUnknownPayload
	}
}

// classify maps upstream event type names to internal event types.
func classify(eventType string) Type {
	switch strings.ToLower(eventType) {
	case "grab":
		return TypeGrab
	case "download", "moviefileimported", "episodefileimported":
		return TypeImport
	case "moviedelete", "seriesdelete", "episodefiledelete":
		return TypeDelete
	case "test":
		return TypeTest
	default:
		return TypeUnknown
	}
}

// normalizeHash lowercases a torrent hash; qBittorrent keys torrents by
// the lowercase form while *arr tools report uppercase.
func normalizeHash(hash string) string {
	return strings.ToLower(strings.TrimSpace(hash))
}
