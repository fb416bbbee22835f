package intake

import (
	"time"

	"github.com/google/uuid"
)

// Source identifies which upstream tool produced an event.
type Source string

const (
	SourceRadarr Source = "radarr"
	SourceSonarr Source = "sonarr"
)

// Type classifies a webhook event after normalization.
type Type string

const (
	// TypeGrab means a release was sent to the download client and
	// should be monitored for hardlinking.
	TypeGrab Type = "grab"

	// TypeImport means the upstream tool imported the download itself;
	// monitoring for the hash can stop.
	TypeImport Type = "import"

	// TypeDelete means the upstream tool deleted the movie or series.
	// Tracking for the hash stops; source files are never touched.
	TypeDelete Type = "delete"

	// TypeTest is the webhook connectivity test.
	TypeTest Type = "test"

	// TypeUnknown covers event types this service does not act on.
	TypeUnknown Type = "unknown"
)

// Event is the single normalized shape produced from heterogeneous
// Radarr/Sonarr webhook payloads. The monitor never sees anything else.
type Event struct {
	ID             string
	Type           Type
	Source         Source
	Hash           string
	MediaID        int64
	Title          string
	DestinationDir string
	DownloadClient string
	Indexer        string
	ReleaseTitle   string
	Quality        string
	Size           int64
	ReceivedAt     time.Time
}

// Validate checks that an event carries the fields the monitor requires.
func (e *Event) Validate() error {
	if e == nil {
		return ErrInvalidEvent
	}
	if e.Source != SourceRadarr && e.Source != SourceSonarr {
		return ErrInvalidEvent
	}
	if e.Type == TypeGrab && e.Hash == "" {
		return ErrInvalidEvent
	}
	return nil
}

func newEvent(t Type, source Source) *Event {
	return &Event{
		ID:         uuid.NewString(),
		Type:       t,
		Source:     source,
		ReceivedAt: time.Now(),
	}
}
