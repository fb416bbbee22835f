// Package monitor tracks grabbed downloads in qBittorrent and links their
// files into the media library as they finish.
//
// The monitor owns a registry of in-flight downloads keyed by torrent
// hash. Webhook events register or revive entries; a recurring poll cycle
// queries the torrent client for each non-terminal entry, links files that
// have finished downloading, and retires entries on completion or after a
// bounded number of checks. Linking is idempotent per file identity, so
// duplicate webhooks, overlapping polls and process retries never produce
// a second link for the same file.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/s0up4200/linkarr/hardlink"
	"github.com/s0up4200/linkarr/intake"
	"github.com/s0up4200/linkarr/qbittorrent"
)

// Gateway abstracts the torrent client.
type Gateway interface {
	State(ctx context.Context, hash string) (*qbittorrent.TorrentState, error)
}

// Linker abstracts filesystem linking.
type Linker interface {
	Link(source, dest string) (hardlink.Result, error)
}

// LinkerFunc adapts a function to the Linker interface.
type LinkerFunc func(source, dest string) (hardlink.Result, error)

// Link calls f.
func (f LinkerFunc) Link(source, dest string) (hardlink.Result, error) {
	return f(source, dest)
}

// Notifier is told when a download has been fully linked.
type Notifier interface {
	DownloadComplete(ctx context.Context, rec Record)
}

// Store persists record snapshots. Persistence is best effort; a store
// failure never affects tracking.
type Store interface {
	SaveRecord(rec Record) error
}

// ErrNotRunning is returned by Stop when the monitor was never started.
var ErrNotRunning = errors.New("monitor not running")

// Monitor owns the download registry and drives the poll cycle.
type Monitor struct {
	gateway  Gateway
	linker   Linker
	notifier Notifier
	store    Store
	opts     Options
	logger   zerolog.Logger

	mu      sync.RWMutex
	records map[string]*entry
	history []Record

	subtitles map[string]bool
	allowed   map[string]bool

	sched   *gocron.Scheduler
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates a monitor. A nil linker uses the hardlink engine directly.
func New(gateway Gateway, linker Linker, opts Options, logger zerolog.Logger) *Monitor {
	opts.applyDefaults()

	if linker == nil {
		linker = LinkerFunc(hardlink.Link)
	}

	allowed := make(map[string]bool, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		allowed[strings.ToLower(ext)] = true
	}

	return &Monitor{
		gateway: gateway,
		linker:  linker,
		opts:    opts,
		logger:  logger,
		records: make(map[string]*entry),
		allowed: allowed,
		subtitles: map[string]bool{
			".srt": true, ".sub": true, ".idx": true, ".ass": true,
		},
	}
}

// SetNotifier wires the completion notifier.
func (m *Monitor) SetNotifier(n Notifier) {
	m.notifier = n
}

// SetStore wires the durable snapshot store.
func (m *Monitor) SetStore(s Store) {
	m.store = s
}

// Register inserts a new record for a grab event or merges a duplicate
// webhook into the existing one. A registered hash is checked immediately
// rather than waiting for the next poll tick.
func (m *Monitor) Register(ev *intake.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if ev.Type != intake.TypeGrab {
		return fmt.Errorf("%w: only grab events register downloads", intake.ErrInvalidEvent)
	}

	// The lookup and merge stay under the registry lock so the eviction
	// sweep cannot drop the entry in between; a grab merged into an
	// already-evicted entry would never be polled again.
	m.mu.Lock()
	e, exists := m.records[ev.Hash]
	if !exists {
		e = newEntry(ev)
		m.records[ev.Hash] = e
	} else {
		e.mu.Lock()
		e.merge(ev)
		e.mu.Unlock()
	}
	m.mu.Unlock()

	if exists {
		m.logger.Info().
			Str("hash", ev.Hash).
			Str("title", ev.Title).
			Msg("Merged duplicate grab into existing record")
	} else {
		m.logger.Info().
			Str("hash", ev.Hash).
			Str("title", ev.Title).
			Str("destination", ev.DestinationDir).
			Msg("Registered download for monitoring")
	}

	m.persist(e.snapshot())
	m.checkSoon(e)
	return nil
}

// Deactivate retires the record for hash because the upstream tool
// imported the download itself. It returns false when the hash is not
// tracked.
func (m *Monitor) Deactivate(hash string) bool {
	m.mu.RLock()
	e, ok := m.records[strings.ToLower(hash)]
	m.mu.RUnlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec.Status.Terminal() {
		return true
	}
	e.rec.Status = StatusComplete
	e.rec.Reason = ReasonImported
	e.rec.UpdatedAt = time.Now()
	m.logger.Info().
		Str("hash", e.rec.Hash).
		Str("title", e.rec.Title).
		Msg("Upstream import finished, stopping monitor for download")
	m.persist(e.snapshotLocked())
	return true
}

// Forget drops the record for hash entirely. Used when the upstream tool
// deletes the media; nothing on disk is touched. It returns false when
// the hash is not tracked.
func (m *Monitor) Forget(hash string) bool {
	hash = strings.ToLower(hash)

	m.mu.Lock()
	e, ok := m.records[hash]
	if ok {
		delete(m.records, hash)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	title := e.rec.Title
	e.mu.Unlock()
	m.logger.Info().
		Str("hash", hash).
		Str("title", title).
		Msg("Media deleted upstream, dropping download record")
	return true
}

// Start launches the recurring poll cycle.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.New("monitor already started")
	}

	m.runCtx, m.cancel = context.WithCancel(context.Background())
	m.sched = gocron.NewScheduler(time.UTC)
	m.sched.SingletonModeAll()

	_, err := m.sched.Every(m.opts.Interval).Do(func() {
		m.mu.RLock()
		if !m.started {
			m.mu.RUnlock()
			return
		}
		ctx := m.runCtx
		m.wg.Add(1)
		m.mu.RUnlock()

		defer m.wg.Done()
		m.PollCycle(ctx)
	})
	if err != nil {
		m.cancel()
		return fmt.Errorf("failed to schedule poll cycle: %w", err)
	}

	m.sched.StartAsync()
	m.started = true
	m.logger.Info().
		Dur("interval", m.opts.Interval).
		Int("max_checks", m.opts.MaxChecks).
		Msg("Download monitor started")
	return nil
}

// Stop halts scheduling and waits for in-flight checks to drain.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.started = false
	sched := m.sched
	m.mu.Unlock()

	sched.Stop()
	m.wg.Wait()
	m.cancel()
	m.logger.Info().Msg("Download monitor stopped")
	return nil
}

// PollCycle runs one pass over all non-terminal records, querying the
// gateway and linking ready files with bounded parallelism. Terminal
// records past the retention grace are evicted to the history buffer.
func (m *Monitor) PollCycle(ctx context.Context) {
	entries := m.activeEntries()

	if len(entries) > 0 {
		g := new(errgroup.Group)
		g.SetLimit(m.opts.Concurrency)
		for _, e := range entries {
			e := e
			g.Go(func() error {
				m.checkEntry(ctx, e)
				return nil
			})
		}
		g.Wait()
	}

	m.evict()
}

// checkSoon schedules an immediate check for a freshly registered hash
// when the monitor is running.
func (m *Monitor) checkSoon(e *entry) {
	// The wg.Add must happen while started is still observed true, or a
	// concurrent Stop could begin waiting on an empty group.
	m.mu.RLock()
	if !m.started {
		m.mu.RUnlock()
		return
	}
	ctx := m.runCtx
	m.wg.Add(1)
	m.mu.RUnlock()

	go func() {
		defer m.wg.Done()
		m.checkEntry(ctx, e)
	}()
}

// checkEntry performs one gateway query and readiness pass for a single
// record. The gateway call runs outside the entry lock so a slow client
// never blocks webhook merges for other hashes.
func (m *Monitor) checkEntry(ctx context.Context, e *entry) {
	e.mu.Lock()
	if e.rec.Status.Terminal() {
		e.mu.Unlock()
		return
	}
	hash := e.rec.Hash
	e.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, m.opts.CallTimeout)
	state, err := m.gateway.State(callCtx, hash)
	cancel()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec.Status.Terminal() {
		return
	}

	now := time.Now()
	defer func() {
		e.rec.UpdatedAt = now
		m.persist(e.snapshotLocked())
	}()

	if err != nil {
		m.handleStateError(e, err)
		return
	}

	e.rec.Attempts++

	if state.Progress > e.rec.LastProgress {
		e.rec.LastProgress = state.Progress
		e.stall = 0
	} else if !state.Complete {
		e.stall++
	}

	m.advance(e, StatusDownloading)

	expected, linked, ignored := m.processFiles(e, state)
	e.rec.IgnoredFiles = ignored

	if expected > 0 && linked == expected && state.Complete {
		m.advance(e, StatusComplete)
		m.logger.Info().
			Str("hash", e.rec.Hash).
			Str("title", e.rec.Title).
			Int("files", linked).
			Msg("Download fully linked")
		m.notifyComplete(ctx, e.snapshotLocked())
		return
	}

	if e.rec.Attempts >= m.opts.MaxChecks {
		if e.rec.Status == StatusDownloading && e.stall >= m.opts.StallCycles {
			m.fail(e, ReasonStalled)
		} else {
			m.expire(e)
		}
	}
}

// handleStateError applies the error policy: an unreachable client is
// transient and does not consume the attempt budget, while a missing
// torrent does.
func (m *Monitor) handleStateError(e *entry, err error) {
	if errors.Is(err, qbittorrent.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		m.logger.Warn().
			Err(err).
			Str("hash", e.rec.Hash).
			Msg("Torrent client unavailable, retrying next cycle")
		return
	}

	e.rec.Attempts++

	if errors.Is(err, qbittorrent.ErrTorrentNotFound) {
		// A pending torrent may simply not have appeared in the client
		// yet; one that was already observed and then vanished is gone.
		m.logger.Debug().
			Str("hash", e.rec.Hash).
			Int("attempts", e.rec.Attempts).
			Msg("Torrent not found in client")
		if e.rec.Status != StatusPending || e.rec.Attempts >= m.opts.MaxChecks {
			m.fail(e, ReasonTorrentNotFound)
		}
		return
	}

	m.logger.Error().
		Err(err).
		Str("hash", e.rec.Hash).
		Msg("Failed to query torrent state")
	if e.rec.Attempts >= m.opts.MaxChecks {
		m.fail(e, err.Error())
	}
}

// processFiles links every file that is ready and not yet linked. Callers
// must hold e.mu. Returns expected, linked and ignored file counts.
func (m *Monitor) processFiles(e *entry, state *qbittorrent.TorrentState) (int, int, int) {
	var expected, linked, ignored int

	for _, f := range state.Files {
		if !m.wantFile(f.Path, f.Size) {
			ignored++
			continue
		}
		expected++

		id := FileIdentity{Path: f.Path, Size: f.Size}
		if _, done := e.rec.LinkedFiles[id]; done {
			linked++
			continue
		}

		// A file is only linked once the client reports it finished and
		// its size is unchanged since the previous poll. This guards
		// against linking a file mid-write; it is a heuristic, not a
		// guarantee.
		prev, seen := e.prevSizes[f.Path]
		e.prevSizes[f.Path] = f.Size
		if !f.Done() || !seen || prev != f.Size {
			continue
		}

		m.advance(e, StatusLinking)

		dest := destPath(e.rec.DestinationDir, state.SavePath, f.Path)
		res, err := m.linker.Link(f.Path, dest)
		if err != nil {
			// Per-file failure: recorded and retried next cycle without
			// failing sibling files.
			e.rec.FileErrors[f.Path] = err.Error()
			m.logger.Error().
				Err(err).
				Str("hash", e.rec.Hash).
				Str("file", f.Path).
				Msg("Failed to link file")
			continue
		}

		delete(e.rec.FileErrors, f.Path)
		e.rec.LinkedFiles[id] = struct{}{}
		linked++

		evt := m.logger.Info()
		if res == hardlink.ResultCopied {
			// A copy duplicates bytes on disk, unlike a hardlink.
			evt = m.logger.Warn().Bool("copy_fallback", true)
		}
		evt.
			Str("hash", e.rec.Hash).
			Str("file", f.Path).
			Str("dest", dest).
			Str("result", res.String()).
			Msg("Linked file into library")
	}

	return expected, linked, ignored
}

// advance moves the record's status forward, never backward.
func (m *Monitor) advance(e *entry, s Status) {
	if statusRank[s] > statusRank[e.rec.Status] {
		m.logger.Debug().
			Str("hash", e.rec.Hash).
			Str("from", string(e.rec.Status)).
			Str("to", string(s)).
			Msg("Status transition")
		e.rec.Status = s
	}
}

func (m *Monitor) fail(e *entry, reason string) {
	e.rec.Status = StatusFailed
	e.rec.Reason = reason
	m.logger.Warn().
		Str("hash", e.rec.Hash).
		Str("title", e.rec.Title).
		Str("reason", reason).
		Int("attempts", e.rec.Attempts).
		Msg("Download failed")
}

func (m *Monitor) expire(e *entry) {
	e.rec.Status = StatusExpired
	e.rec.Reason = ReasonMaxChecks
	m.logger.Warn().
		Str("hash", e.rec.Hash).
		Str("title", e.rec.Title).
		Int("attempts", e.rec.Attempts).
		Msg("Download expired after max checks")
}

func (m *Monitor) notifyComplete(ctx context.Context, snap Record) {
	if m.notifier == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.notifier.DownloadComplete(ctx, snap)
	}()
}

func (m *Monitor) persist(snap Record) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveRecord(snap); err != nil {
		m.logger.Error().
			Err(err).
			Str("hash", snap.Hash).
			Msg("Failed to persist record snapshot")
	}
}

// wantFile reports whether a torrent file belongs in the library. Media
// files below the minimum size are ignored (samples, junk); subtitle
// files are exempt from the size floor.
func (m *Monitor) wantFile(path string, size int64) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if !m.allowed[ext] {
		return false
	}
	if m.subtitles[ext] {
		return true
	}
	return size >= m.opts.MinFileSize
}

// destPath computes the library destination, preserving the file's
// position inside the torrent.
func destPath(destDir, savePath, filePath string) string {
	rel, err := filepath.Rel(savePath, filePath)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(filePath)
	}
	return filepath.Join(destDir, rel)
}

// activeEntries snapshots the non-terminal entries for one poll pass.
func (m *Monitor) activeEntries() []*entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []*entry
	for _, e := range m.records {
		e.mu.Lock()
		terminal := e.rec.Status.Terminal()
		e.mu.Unlock()
		if !terminal {
			entries = append(entries, e)
		}
	}
	return entries
}

// evict moves terminal records past the retention grace into the bounded
// history buffer.
func (m *Monitor) evict() {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for hash, e := range m.records {
		e.mu.Lock()
		retire := e.rec.Status.Terminal() && now.Sub(e.rec.UpdatedAt) >= m.opts.HistoryGrace
		var snap Record
		if retire {
			snap = e.snapshotLocked()
		}
		e.mu.Unlock()

		if !retire {
			continue
		}
		delete(m.records, hash)
		m.history = append(m.history, snap)
		if len(m.history) > m.opts.HistorySize {
			m.history = m.history[len(m.history)-m.opts.HistorySize:]
		}
	}
}

// Record returns a snapshot of the record for hash, falling back to the
// history buffer for recently evicted downloads.
func (m *Monitor) Record(hash string) (Record, bool) {
	hash = strings.ToLower(hash)

	m.mu.RLock()
	e, ok := m.records[hash]
	if ok {
		m.mu.RUnlock()
		return e.snapshot(), true
	}

	defer m.mu.RUnlock()
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].Hash == hash {
			return m.history[i], true
		}
	}
	return Record{}, false
}

// Active returns snapshots of all non-terminal records ordered by
// registration time.
func (m *Monitor) Active() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for _, e := range m.records {
		snap := e.snapshot()
		if !snap.Status.Terminal() {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// History returns the retained terminal records, oldest first.
func (m *Monitor) History() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, len(m.history))
	copy(out, m.history)
	return out
}
