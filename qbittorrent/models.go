package qbittorrent

// TorrentState is the normalized snapshot of one torrent.
type TorrentState struct {
	Hash     string
	Name     string
	SavePath string
	State    string
	Size     int64
	Progress float64
	Complete bool
	Files    []TorrentFile
}

// TorrentFile describes one file inside a torrent. Path is absolute,
// joined from the torrent's save path and the client-reported name.
type TorrentFile struct {
	Path     string
	Size     int64
	Progress float64
}

// Done reports whether the client considers this file fully downloaded.
func (f TorrentFile) Done() bool {
	return f.Progress >= 1.0
}

// completedStates are the client states a torrent can only reach after
// its download has finished.
var completedStates = map[string]bool{
	"uploading":  true,
	"pausedUP":   true,
	"stoppedUP":  true,
	"queuedUP":   true,
	"stalledUP":  true,
	"forcedUP":   true,
	"checkingUP": true,
}

// isComplete mirrors how qBittorrent reports completion: full progress
// combined with a post-download state.
func isComplete(progress float64, state string) bool {
	return progress >= 1.0 && completedStates[state]
}
