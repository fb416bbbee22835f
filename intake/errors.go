package intake

import "errors"

// Common errors returned while normalizing webhook payloads.
var (
	// ErrInvalidEvent is returned for payloads missing required fields,
	// such as a grab without a download hash.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrUnknownPayload is returned when a payload matches neither the
	// Radarr nor the Sonarr webhook shape.
	ErrUnknownPayload = errors.New("unknown webhook payload")
)
