package monitor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up4200/linkarr/hardlink"
	"github.com/s0up4200/linkarr/intake"
	"github.com/s0up4200/linkarr/qbittorrent"
)

// fakeGateway serves canned torrent states keyed by hash.
type fakeGateway struct {
	mu    sync.Mutex
	fn    func(hash string) (*qbittorrent.TorrentState, error)
	calls int
}

func (g *fakeGateway) State(ctx context.Context, hash string) (*qbittorrent.TorrentState, error) {
	g.mu.Lock()
	g.calls++
	fn := g.fn
	g.mu.Unlock()
	if fn == nil {
		return nil, qbittorrent.ErrTorrentNotFound
	}
	return fn(hash)
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// fakeLinker records link calls and can fail selected paths.
type fakeLinker struct {
	mu     sync.Mutex
	calls  map[string]int
	result hardlink.Result
	fail   map[string]error
}

func newFakeLinker() *fakeLinker {
	return &fakeLinker{calls: make(map[string]int), result: hardlink.ResultCreated}
}

func (l *fakeLinker) Link(source, dest string) (hardlink.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, ok := l.fail[source]; ok {
		return 0, err
	}
	l.calls[source]++
	return l.result, nil
}

func (l *fakeLinker) callsFor(source string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[source]
}

func (l *fakeLinker) totalCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, n := range l.calls {
		total += n
	}
	return total
}

func testOptions() Options {
	return Options{
		Interval:     time.Minute,
		MaxChecks:    50,
		StallCycles:  5,
		Concurrency:  4,
		CallTimeout:  time.Second,
		HistoryGrace: time.Hour,
		HistorySize:  10,
		MinFileSize:  1024,
	}
}

func newTestMonitor(gw Gateway, linker Linker, opts Options) *Monitor {
	return New(gw, linker, opts, zerolog.Nop())
}

func grabEvent(hash string) *intake.Event {
	return &intake.Event{
		ID:             "test-event",
		Type:           intake.TypeGrab,
		Source:         intake.SourceRadarr,
		Hash:           hash,
		MediaID:        42,
		Title:          "Movie (2020)",
		DestinationDir: "/media/Movie (2020)",
		DownloadClient: "qBittorrent",
		ReceivedAt:     time.Now(),
	}
}

// singleFileState reports one movie file at the given progress.
func singleFileState(progress float64, complete bool) *qbittorrent.TorrentState {
	return &qbittorrent.TorrentState{
		Hash:     "abc123",
		Name:     "Movie.2020.1080p",
		SavePath: "/downloads",
		State:    "downloading",
		Progress: progress,
		Complete: complete,
		Files: []qbittorrent.TorrentFile{
			{Path: "/downloads/Movie.2020.1080p/movie.mkv", Size: 4096, Progress: progress},
		},
	}
}

func TestRegisterRejectsInvalidEvents(t *testing.T) {
	m := newTestMonitor(&fakeGateway{}, newFakeLinker(), testOptions())

	err := m.Register(&intake.Event{Type: intake.TypeGrab, Source: intake.SourceRadarr})
	assert.ErrorIs(t, err, intake.ErrInvalidEvent, "grab without hash")

	err = m.Register(&intake.Event{
		Type: intake.TypeImport, Source: intake.SourceRadarr, Hash: "aa",
	})
	assert.ErrorIs(t, err, intake.ErrInvalidEvent, "import events do not register")

	assert.Empty(t, m.Active())
}

func TestMergeSafety(t *testing.T) {
	m := newTestMonitor(&fakeGateway{}, newFakeLinker(), testOptions())

	first := grabEvent("abc123")
	first.DestinationDir = ""
	first.Title = ""
	require.NoError(t, m.Register(first))

	second := grabEvent("abc123")
	require.NoError(t, m.Register(second))

	active := m.Active()
	require.Len(t, active, 1, "duplicate webhook must merge, not duplicate")
	assert.Equal(t, "/media/Movie (2020)", active[0].DestinationDir)
	assert.Equal(t, "Movie (2020)", active[0].Title)

	// A populated destination is never overwritten by a blank one.
	third := grabEvent("abc123")
	third.DestinationDir = ""
	require.NoError(t, m.Register(third))

	rec, ok := m.Record("abc123")
	require.True(t, ok)
	assert.Equal(t, "/media/Movie (2020)", rec.DestinationDir)
}

func TestGrabToCompleteScenario(t *testing.T) {
	gw := &fakeGateway{}
	linker := newFakeLinker()
	m := newTestMonitor(gw, linker, testOptions())
	ctx := context.Background()

	require.NoError(t, m.Register(grabEvent("abc123")))

	// First poll: file reports done but size has no history yet.
	gw.fn = func(string) (*qbittorrent.TorrentState, error) {
		return singleFileState(1.0, true), nil
	}
	m.PollCycle(ctx)

	rec, ok := m.Record("abc123")
	require.True(t, ok)
	assert.Equal(t, StatusDownloading, rec.Status)
	assert.Equal(t, 0, linker.totalCalls(), "no link before the stability window")

	// Second poll: size stable across two consecutive polls, link happens.
	m.PollCycle(ctx)

	rec, ok = m.Record("abc123")
	require.True(t, ok)
	assert.Equal(t, StatusComplete, rec.Status)
	assert.Equal(t, 1, linker.callsFor("/downloads/Movie.2020.1080p/movie.mkv"))
	assert.Equal(t, 1, rec.LinkedCount())

	// Further polls never link again.
	m.PollCycle(ctx)
	assert.Equal(t, 1, linker.totalCalls())
}

func TestInProgressFilesAreNotLinked(t *testing.T) {
	gw := &fakeGateway{}
	linker := newFakeLinker()
	m := newTestMonitor(gw, linker, testOptions())
	ctx := context.Background()

	require.NoError(t, m.Register(grabEvent("abc123")))

	gw.fn = func(string) (*qbittorrent.TorrentState, error) {
		return singleFileState(0.6, false), nil
	}
	m.PollCycle(ctx)
	m.PollCycle(ctx)

	rec, _ := m.Record("abc123")
	assert.Equal(t, StatusDownloading, rec.Status)
	assert.Equal(t, 0, linker.totalCalls(), "incomplete files must not be linked")
}

func TestTorrentNotFoundConsumesAttemptBudget(t *testing.T) {
	opts := testOptions()
	opts.MaxChecks = 5

	gw := &fakeGateway{} // nil fn returns ErrTorrentNotFound
	m := newTestMonitor(gw, newFakeLinker(), opts)
	ctx := context.Background()

	require.NoError(t, m.Register(grabEvent("abc123")))

	for i := 0; i < 10; i++ {
		m.PollCycle(ctx)
	}

	rec, ok := m.Record("abc123")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, ReasonTorrentNotFound, rec.Reason)
	assert.Equal(t, 5, rec.Attempts, "failure on the 5th poll, not the 10th")
}

func TestVanishedTorrentFailsImmediately(t *testing.T) {
	gw := &fakeGateway{}
	m := newTestMonitor(gw, newFakeLinker(), testOptions())
	ctx := context.Background()

	require.NoError(t, m.Register(grabEvent("abc123")))

	gw.fn = func(string) (*qbittorrent.TorrentState, error) {
		return singleFileState(0.5, false), nil
	}
	m.PollCycle(ctx)

	rec, _ := m.Record("abc123")
	require.Equal(t, StatusDownloading, rec.Status)

	gw.fn = nil // torrent disappears from the client
	m.PollCycle(ctx)

	rec, _ = m.Record("abc123")
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, ReasonTorrentNotFound, rec.Reason)
}

func TestUnavailableGatewayDoesNotConsumeAttempts(t *testing.T) {
	opts := testOptions()
	opts.MaxChecks = 3

	gw := &fakeGateway{fn: func(string) (*qbittorrent.TorrentState, error) {
		return nil, fmt.Errorf("%w: connection refused", qbittorrent.ErrUnavailable)
	}}
	m := newTestMonitor(gw, newFakeLinker(), opts)
	ctx := context.Background()

	require.NoError(t, m.Register(grabEvent("abc123")))

	for i := 0; i < 10; i++ {
		m.PollCycle(ctx)
	}

	rec, ok := m.Record("abc123")
	require.True(t, ok)
	assert.Equal(t, StatusPending, rec.Status, "client downtime must not fail the record")
	assert.Equal(t, 0, rec.Attempts)
	assert.Greater(t, gw.callCount(), 3, "gateway retried every cycle")
}

func TestStalledDownloadFails(t *testing.T) {
	opts := testOptions()
	opts.MaxChecks = 4
	opts.StallCycles = 2

	gw := &fakeGateway{fn: func(string) (*qbittorrent.TorrentState, error) {
		return singleFileState(0.5, false), nil
	}}
	m := newTestMonitor(gw, newFakeLinker(), opts)
	ctx := context.Background()

	require.NoError(t, m.Register(grabEvent("abc123")))

	for i := 0; i < 4; i++ {
		m.PollCycle(ctx)
	}

	rec, ok := m.Record("abc123")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, ReasonStalled, rec.Reason)
}

func TestExpiresWithoutStall(t *testing.T) {
	opts := testOptions()
	opts.MaxChecks = 3
	opts.StallCycles = 100

	progress := 0.0
	gw := &fakeGateway{fn: func(string) (*qbittorrent.TorrentState, error) {
		progress += 0.1 // slow but steady, never stalls
		return singleFileState(progress, false), nil
	}}
	m := newTestMonitor(gw, newFakeLinker(), opts)
	ctx := context.Background()

	require.NoError(t, m.Register(grabEvent("abc123")))

	for i := 0; i < 3; i++ {
		m.PollCycle(ctx)
	}

	rec, _ := m.Record("abc123")
	assert.Equal(t, StatusExpired, rec.Status)
	assert.Equal(t, ReasonMaxChecks, rec.Reason)
}

func TestFreshGrabRevivesFailedRecord(t *testing.T) {
	opts := testOptions()
	opts.MaxChecks = 1

	gw := &fakeGateway{}
	m := newTestMonitor(gw, newFakeLinker(), opts)
	ctx := context.Background()

	require.NoError(t, m.Register(grabEvent("abc123")))
	m.PollCycle(ctx)

	rec, _ := m.Record("abc123")
	require.Equal(t, StatusFailed, rec.Status)

	// No auto-retry: polling a failed record changes nothing.
	m.PollCycle(ctx)
	rec, _ = m.Record("abc123")
	require.Equal(t, StatusFailed, rec.Status)

	// A fresh grab event revives it.
	require.NoError(t, m.Register(grabEvent("abc123")))
	rec, _ = m.Record("abc123")
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, 0, rec.Attempts)
	assert.Empty(t, rec.Reason)
}

// A fresh grab racing the eviction sweep must never merge into an entry
// the sweep just dropped; once Register returns, the download is active
// and will be polled again.
func TestFreshGrabRacingEvictionIsNotLost(t *testing.T) {
	opts := testOptions()
	opts.MaxChecks = 1
	opts.HistoryGrace = time.Nanosecond

	for i := 0; i < 5000; i++ {
		gw := &fakeGateway{}
		m := newTestMonitor(gw, newFakeLinker(), opts)
		ctx := context.Background()

		require.NoError(t, m.Register(grabEvent("abc123")))

		// Fail the record without evicting it yet: checkEntry sees the
		// missing torrent, and the sweep in the same cycle races the
		// re-registration below.
		gw.mu.Lock()
		gw.fn = nil // ErrTorrentNotFound
		gw.mu.Unlock()
		m.checkEntry(ctx, m.activeEntries()[0])

		rec, _ := m.Record("abc123")
		require.Equal(t, StatusFailed, rec.Status)

		// The revived record must not be polled back to failed.
		gw.mu.Lock()
		gw.fn = func(string) (*qbittorrent.TorrentState, error) {
			return nil, qbittorrent.ErrUnavailable
		}
		gw.mu.Unlock()

		regErr := make(chan error, 1)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.PollCycle(ctx)
		}()
		go func() {
			defer wg.Done()
			regErr <- m.Register(grabEvent("abc123"))
		}()
		wg.Wait()
		require.NoError(t, <-regErr)
		m.PollCycle(ctx)

		rec, ok := m.Record("abc123")
		require.True(t, ok, "iteration %d: record vanished", i)
		require.Equal(t, StatusPending, rec.Status, "iteration %d: fresh grab lost", i)
		require.Len(t, m.Active(), 1, "iteration %d: record not active", i)
	}
}

func TestLinkErrorRetriedWithoutFailingSiblings(t *testing.T) {
	state := &qbittorrent.TorrentState{
		Hash:     "abc123",
		SavePath: "/downloads",
		Progress: 1.0,
		Complete: true,
		Files: []qbittorrent.TorrentFile{
			{Path: "/downloads/show/e1.mkv", Size: 4096, Progress: 1.0},
			{Path: "/downloads/show/e2.mkv", Size: 4096, Progress: 1.0},
		},
	}
	gw := &fakeGateway{fn: func(string) (*qbittorrent.TorrentState, error) {
		return state, nil
	}}

	linker := newFakeLinker()
	linker.fail = map[string]error{
		"/downloads/show/e1.mkv": fmt.Errorf("permission denied"),
	}
	m := newTestMonitor(gw, linker, testOptions())
	ctx := context.Background()

	require.NoError(t, m.Register(grabEvent("abc123")))
	m.PollCycle(ctx) // stability priming
	m.PollCycle(ctx) // e2 links, e1 fails

	rec, _ := m.Record("abc123")
	assert.Equal(t, StatusLinking, rec.Status)
	assert.Equal(t, 1, linker.callsFor("/downloads/show/e2.mkv"))
	assert.Contains(t, rec.FileErrors, "/downloads/show/e1.mkv")

	// Error clears, next cycle retries only the failed file.
	linker.mu.Lock()
	linker.fail = nil
	linker.mu.Unlock()
	m.PollCycle(ctx)

	rec, _ = m.Record("abc123")
	assert.Equal(t, StatusComplete, rec.Status)
	assert.Equal(t, 1, linker.callsFor("/downloads/show/e1.mkv"))
	assert.Equal(t, 1, linker.callsFor("/downloads/show/e2.mkv"))
	assert.Empty(t, rec.FileErrors)
}

func TestCopyFallbackStillCompletes(t *testing.T) {
	gw := &fakeGateway{fn: func(string) (*qbittorrent.TorrentState, error) {
		return singleFileState(1.0, true), nil
	}}
	linker := newFakeLinker()
	linker.result = hardlink.ResultCopied
	m := newTestMonitor(gw, linker, testOptions())
	ctx := context.Background()

	require.NoError(t, m.Register(grabEvent("abc123")))
	m.PollCycle(ctx)
	m.PollCycle(ctx)

	rec, _ := m.Record("abc123")
	assert.Equal(t, StatusComplete, rec.Status)
}

func TestNoDuplicateLinksUnderConcurrentPolls(t *testing.T) {
	gw := &fakeGateway{fn: func(string) (*qbittorrent.TorrentState, error) {
		return singleFileState(1.0, true), nil
	}}
	linker := newFakeLinker()
	m := newTestMonitor(gw, linker, testOptions())
	ctx := context.Background()

	require.NoError(t, m.Register(grabEvent("abc123")))
	m.PollCycle(ctx) // stability priming

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.PollCycle(ctx)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, linker.totalCalls(), "file identity linked at most once")
}

func TestMonotonicStatus(t *testing.T) {
	gw := &fakeGateway{}
	m := newTestMonitor(gw, newFakeLinker(), testOptions())
	ctx := context.Background()

	require.NoError(t, m.Register(grabEvent("abc123")))

	var observed []Status
	record := func() {
		rec, ok := m.Record("abc123")
		require.True(t, ok)
		observed = append(observed, rec.Status)
	}

	record()
	gw.fn = func(string) (*qbittorrent.TorrentState, error) {
		return singleFileState(0.5, false), nil
	}
	m.PollCycle(ctx)
	record()
	gw.fn = func(string) (*qbittorrent.TorrentState, error) {
		return singleFileState(1.0, true), nil
	}
	m.PollCycle(ctx)
	record()
	m.PollCycle(ctx)
	record()

	for i := 1; i < len(observed); i++ {
		assert.GreaterOrEqual(t, statusRank[observed[i]], statusRank[observed[i-1]],
			"status went backward: %v", observed)
	}
	assert.Equal(t, StatusComplete, observed[len(observed)-1])
}

func TestDeactivateOnUpstreamImport(t *testing.T) {
	m := newTestMonitor(&fakeGateway{}, newFakeLinker(), testOptions())

	require.NoError(t, m.Register(grabEvent("abc123")))
	assert.True(t, m.Deactivate("ABC123"), "hash lookup is case-insensitive")

	rec, _ := m.Record("abc123")
	assert.Equal(t, StatusComplete, rec.Status)
	assert.Equal(t, ReasonImported, rec.Reason)

	assert.False(t, m.Deactivate("unknown"))
}

func TestForgetDropsRecord(t *testing.T) {
	m := newTestMonitor(&fakeGateway{}, newFakeLinker(), testOptions())

	require.NoError(t, m.Register(grabEvent("abc123")))
	assert.True(t, m.Forget("ABC123"), "hash lookup is case-insensitive")

	_, ok := m.Record("abc123")
	assert.False(t, ok, "forgotten record is gone, not terminal")

	assert.False(t, m.Forget("abc123"), "second forget is a no-op")
}

func TestEvictionToBoundedHistory(t *testing.T) {
	opts := testOptions()
	opts.MaxChecks = 1
	opts.HistoryGrace = time.Nanosecond // evict terminal records on the next sweep
	opts.HistorySize = 2

	gw := &fakeGateway{}
	m := newTestMonitor(gw, newFakeLinker(), opts)
	ctx := context.Background()

	hashes := []string{"aaa111", "bbb222", "ccc333"}
	for _, h := range hashes {
		require.NoError(t, m.Register(grabEvent(h)))
	}

	m.PollCycle(ctx) // all fail (not found, ceiling 1)
	m.PollCycle(ctx) // eviction sweep

	assert.Empty(t, m.Active())
	history := m.History()
	assert.Len(t, history, 2, "history is bounded")

	// Evicted records remain queryable through the history buffer.
	for _, rec := range history {
		got, ok := m.Record(rec.Hash)
		require.True(t, ok)
		assert.Equal(t, StatusFailed, got.Status)
	}
}

func TestIgnoredFilesDoNotBlockCompletion(t *testing.T) {
	state := &qbittorrent.TorrentState{
		Hash:     "abc123",
		SavePath: "/downloads",
		Progress: 1.0,
		Complete: true,
		Files: []qbittorrent.TorrentFile{
			{Path: "/downloads/movie/movie.mkv", Size: 4096, Progress: 1.0},
			{Path: "/downloads/movie/movie.srt", Size: 10, Progress: 1.0},
			{Path: "/downloads/movie/cover.jpg", Size: 4096, Progress: 1.0},
			{Path: "/downloads/movie/sample.mkv", Size: 10, Progress: 1.0},
		},
	}
	gw := &fakeGateway{fn: func(string) (*qbittorrent.TorrentState, error) {
		return state, nil
	}}
	linker := newFakeLinker()
	m := newTestMonitor(gw, linker, testOptions())
	ctx := context.Background()

	require.NoError(t, m.Register(grabEvent("abc123")))
	m.PollCycle(ctx)
	m.PollCycle(ctx)

	rec, _ := m.Record("abc123")
	assert.Equal(t, StatusComplete, rec.Status)
	assert.Equal(t, 2, rec.IgnoredFiles, "jpg and undersized mkv are ignored")
	assert.Equal(t, 1, linker.callsFor("/downloads/movie/movie.mkv"))
	assert.Equal(t, 1, linker.callsFor("/downloads/movie/movie.srt"),
		"subtitles are exempt from the size floor")
	assert.Equal(t, 0, linker.callsFor("/downloads/movie/cover.jpg"))
}

func TestStartStopLifecycle(t *testing.T) {
	gw := &fakeGateway{fn: func(string) (*qbittorrent.TorrentState, error) {
		return singleFileState(0.5, false), nil
	}}
	opts := testOptions()
	opts.Interval = 10 * time.Millisecond

	m := newTestMonitor(gw, newFakeLinker(), opts)
	require.NoError(t, m.Start())
	assert.Error(t, m.Start(), "double start is rejected")

	require.NoError(t, m.Register(grabEvent("abc123")))

	// The registration triggers an immediate check.
	require.Eventually(t, func() bool {
		rec, ok := m.Record("abc123")
		return ok && rec.Status == StatusDownloading
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Stop())
	assert.ErrorIs(t, m.Stop(), ErrNotRunning)
}

// Registrations racing a shutdown either get their immediate check
// drained by Stop or skip it; neither path may trip the wait group.
func TestStopRacingRegistrations(t *testing.T) {
	gw := &fakeGateway{fn: func(string) (*qbittorrent.TorrentState, error) {
		return singleFileState(0.5, false), nil
	}}
	opts := testOptions()
	opts.Interval = time.Millisecond

	for i := 0; i < 100; i++ {
		m := newTestMonitor(gw, newFakeLinker(), opts)
		require.NoError(t, m.Start())

		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				_ = m.Register(grabEvent(fmt.Sprintf("hash%d", j)))
			}(j)
		}

		require.NoError(t, m.Stop())
		wg.Wait()
	}
}

func TestDestPath(t *testing.T) {
	tests := []struct {
		name     string
		destDir  string
		savePath string
		filePath string
		want     string
	}{
		{
			name:     "nested file keeps structure",
			destDir:  "/media/Movie (2020)",
			savePath: "/downloads",
			filePath: "/downloads/Movie.2020/Subs/en.srt",
			want:     "/media/Movie (2020)/Movie.2020/Subs/en.srt",
		},
		{
			name:     "file directly in save path",
			destDir:  "/media/Movie (2020)",
			savePath: "/downloads",
			filePath: "/downloads/movie.mkv",
			want:     "/media/Movie (2020)/movie.mkv",
		},
		{
			name:     "file outside save path falls back to base name",
			destDir:  "/media/Movie (2020)",
			savePath: "/downloads",
			filePath: "/elsewhere/movie.mkv",
			want:     "/media/Movie (2020)/movie.mkv",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := destPath(tt.destDir, tt.savePath, tt.filePath)
			assert.Equal(t, tt.want, got)
		})
	}
}
