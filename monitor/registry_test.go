package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up4200/linkarr/intake"
)

func TestEntryMergeFillsOnlyEmptyFields(t *testing.T) {
	first := grabEvent("abc123")
	first.Title = ""
	first.MediaID = 0
	e := newEntry(first)

	second := grabEvent("abc123")
	second.DestinationDir = "/somewhere/else"
	e.mu.Lock()
	e.merge(second)
	e.mu.Unlock()

	assert.Equal(t, "Movie (2020)", e.rec.Title, "empty title filled")
	assert.Equal(t, int64(42), e.rec.MediaID, "zero media id filled")
	assert.Equal(t, "/media/Movie (2020)", e.rec.DestinationDir,
		"populated destination not overwritten")
}

func TestEntryMergeRevivesOnlyOnGrab(t *testing.T) {
	e := newEntry(grabEvent("abc123"))
	e.rec.Status = StatusFailed
	e.rec.Reason = ReasonStalled
	e.rec.Attempts = 7

	ev := grabEvent("abc123")
	ev.Type = intake.TypeImport
	e.mu.Lock()
	e.merge(ev)
	e.mu.Unlock()
	assert.Equal(t, StatusFailed, e.rec.Status, "non-grab events do not revive")

	ev.Type = intake.TypeGrab
	e.mu.Lock()
	e.merge(ev)
	e.mu.Unlock()
	assert.Equal(t, StatusPending, e.rec.Status)
	assert.Zero(t, e.rec.Attempts)
	assert.Empty(t, e.rec.Reason)
}

func TestSnapshotIsolation(t *testing.T) {
	e := newEntry(grabEvent("abc123"))
	id := FileIdentity{Path: "/downloads/a.mkv", Size: 100}
	e.rec.LinkedFiles[id] = struct{}{}
	e.rec.FileErrors["/downloads/b.mkv"] = "permission denied"

	snap := e.snapshot()
	require.Len(t, snap.LinkedFiles, 1)

	// Mutating the snapshot must not leak into the registry.
	snap.LinkedFiles[FileIdentity{Path: "/x", Size: 1}] = struct{}{}
	delete(snap.FileErrors, "/downloads/b.mkv")

	assert.Len(t, e.rec.LinkedFiles, 1)
	assert.Contains(t, e.rec.FileErrors, "/downloads/b.mkv")
}

func TestStatusTerminal(t *testing.T) {
	for s, terminal := range map[Status]bool{
		StatusPending:     false,
		StatusDownloading: false,
		StatusLinking:     false,
		StatusComplete:    true,
		StatusFailed:      true,
		StatusExpired:     true,
	} {
		assert.Equal(t, terminal, s.Terminal(), "status %s", s)
	}
}
