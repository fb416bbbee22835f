package monitor

import (
	"sync"
	"time"

	"github.com/s0up4200/linkarr/intake"
)

// entry is one registry slot. The entry mutex serializes every mutation
// of its record, so a poll-cycle update and a concurrent webhook merge for
// the same hash can never interleave. Distinct entries are independent and
// are processed in parallel.
type entry struct {
	mu  sync.Mutex
	rec Record

	// prevSizes holds the size observed for each file on the previous
	// poll; a file is only linked once its size is unchanged across two
	// consecutive polls.
	prevSizes map[string]int64

	// stall counts consecutive polls without progress.
	stall int
}

func newEntry(ev *intake.Event) *entry {
	now := time.Now()
	return &entry{
		rec: Record{
			Hash:           ev.Hash,
			Source:         ev.Source,
			MediaID:        ev.MediaID,
			Title:          ev.Title,
			DestinationDir: ev.DestinationDir,
			DownloadClient: ev.DownloadClient,
			Status:         StatusPending,
			LinkedFiles:    make(map[FileIdentity]struct{}),
			FileErrors:     make(map[string]string),
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		prevSizes: make(map[string]int64),
	}
}

// merge folds a duplicate webhook into an existing record. Only empty
// fields are filled; a populated destination is never overwritten by a
// blank one. A fresh grab revives a failed or expired record without
// discarding its linked-file history.
func (e *entry) merge(ev *intake.Event) {
	if e.rec.Title == "" {
		e.rec.Title = ev.Title
	}
	if e.rec.DestinationDir == "" {
		e.rec.DestinationDir = ev.DestinationDir
	}
	if e.rec.DownloadClient == "" {
		e.rec.DownloadClient = ev.DownloadClient
	}
	if e.rec.MediaID == 0 {
		e.rec.MediaID = ev.MediaID
	}

	if ev.Type == intake.TypeGrab &&
		(e.rec.Status == StatusFailed || e.rec.Status == StatusExpired) {
		e.rec.Status = StatusPending
		e.rec.Reason = ""
		e.rec.Attempts = 0
		e.stall = 0
	}

	e.rec.UpdatedAt = time.Now()
}

// snapshotLocked copies the record. Callers must hold e.mu.
func (e *entry) snapshotLocked() Record {
	snap := e.rec
	snap.LinkedFiles = make(map[FileIdentity]struct{}, len(e.rec.LinkedFiles))
	for id := range e.rec.LinkedFiles {
		snap.LinkedFiles[id] = struct{}{}
	}
	snap.FileErrors = make(map[string]string, len(e.rec.FileErrors))
	for k, v := range e.rec.FileErrors {
		snap.FileErrors[k] = v
	}
	return snap
}

func (e *entry) snapshot() Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}
