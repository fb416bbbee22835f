package monitor

import (
	"time"

	"github.com/s0up4200/linkarr/config"
	"github.com/s0up4200/linkarr/intake"
)

// Status is the lifecycle state of a tracked download.
type Status string

const (
	// StatusPending means the download was registered but the torrent has
	// not yet been observed in the client.
	StatusPending Status = "pending"

	// StatusDownloading means the client reports the torrent in progress.
	StatusDownloading Status = "downloading"

	// StatusLinking means at least one file reached stability and linking
	// has begun.
	StatusLinking Status = "linking"

	// StatusComplete means every expected file is linked and the client
	// reports the torrent complete.
	StatusComplete Status = "complete"

	// StatusFailed means the download was given up on for a recorded reason.
	StatusFailed Status = "failed"

	// StatusExpired means the attempt budget ran out without resolution.
	StatusExpired Status = "expired"
)

// Terminal reports whether no further transitions can occur.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed || s == StatusExpired
}

// statusRank orders the non-terminal progression; transitions never move
// backward except the explicit failed-to-pending reset on a fresh grab.
var statusRank = map[Status]int{
	StatusPending:     0,
	StatusDownloading: 1,
	StatusLinking:     2,
	StatusComplete:    3,
}

// Failure reasons recorded on terminal records.
const (
	ReasonTorrentNotFound = "torrent_not_found"
	ReasonStalled         = "stalled"
	ReasonMaxChecks       = "max_checks_exceeded"
	ReasonImported        = "imported_upstream"
)

// FileIdentity identifies a source file by path and size. Records track
// linked files by identity so a renamed or resized file is treated as new
// while an unchanged file is never linked twice.
type FileIdentity struct {
	Path string
	Size int64
}

// Record is a snapshot of one tracked download. All fields are copies;
// mutating a Record never affects the registry.
type Record struct {
	Hash           string
	Source         intake.Source
	MediaID        int64
	Title          string
	DestinationDir string
	DownloadClient string
	Status         Status
	Reason         string
	Attempts       int
	LastProgress   float64
	LinkedFiles    map[FileIdentity]struct{}
	FileErrors     map[string]string
	IgnoredFiles   int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LinkedCount returns the number of files linked so far.
func (r Record) LinkedCount() int {
	return len(r.LinkedFiles)
}

// Options holds the monitor's policy knobs.
type Options struct {
	Interval     time.Duration
	MaxChecks    int
	StallCycles  int
	Concurrency  int
	CallTimeout  time.Duration
	HistoryGrace time.Duration
	HistorySize  int
	MinFileSize  int64
	Extensions   []string
}

// OptionsFromConfig maps the config section onto monitor options.
func OptionsFromConfig(cfg config.MonitorConfig) Options {
	return Options{
		Interval:     cfg.Interval,
		MaxChecks:    cfg.MaxChecks,
		StallCycles:  cfg.StallCycles,
		Concurrency:  cfg.Concurrency,
		CallTimeout:  cfg.CallTimeout,
		HistoryGrace: cfg.HistoryGrace,
		HistorySize:  cfg.HistorySize,
		MinFileSize:  cfg.MinFileSize,
		Extensions:   cfg.Extensions,
	}
}

func (o *Options) applyDefaults() {
	if o.Interval <= 0 {
		o.Interval = time.Minute
	}
	if o.MaxChecks <= 0 {
		o.MaxChecks = 100
	}
	if o.StallCycles <= 0 {
		o.StallCycles = 10
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 5
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 15 * time.Second
	}
	if o.HistoryGrace <= 0 {
		o.HistoryGrace = 10 * time.Minute
	}
	if o.HistorySize <= 0 {
		o.HistorySize = 100
	}
	if len(o.Extensions) == 0 {
		o.Extensions = []string{
			".mkv", ".mp4", ".avi", ".mov", ".m4v",
			".srt", ".sub", ".idx", ".ass",
		}
	}
}
