package intake

// RadarrWebhook mirrors the fields of a Radarr webhook notification that
// this service cares about. Unknown fields are ignored during decoding.
type RadarrWebhook struct {
	EventType      string        `json:"eventType"`
	InstanceName   string        `json:"instanceName"`
	DownloadID     string        `json:"downloadId"`
	DownloadClient string        `json:"downloadClient"`
	IsUpgrade      bool          `json:"isUpgrade"`
	Movie          *RadarrMovie  `json:"movie"`
	RemoteMovie    *RemoteMovie  `json:"remoteMovie"`
	Release        *ReleaseInfo  `json:"release"`
}

// RadarrMovie is the movie block of a Radarr webhook.
type RadarrMovie struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Year       int    `json:"year"`
	FolderPath string `json:"folderPath"`
	TmdbID     int64  `json:"tmdbId"`
	ImdbID     string `json:"imdbId"`
}

// RemoteMovie carries title information for releases not yet on disk.
type RemoteMovie struct {
	Title  string `json:"title"`
	Year   int    `json:"year"`
	TmdbID int64  `json:"tmdbId"`
}

// ReleaseInfo is shared between Radarr and Sonarr payloads.
type ReleaseInfo struct {
	Quality      string `json:"quality"`
	ReleaseTitle string `json:"releaseTitle"`
	ReleaseGroup string `json:"releaseGroup"`
	Indexer      string `json:"indexer"`
	Size         int64  `json:"size"`
}

// Normalize converts a Radarr payload into the internal event shape.
func (w *RadarrWebhook) Normalize() *Event {
	ev := newEvent(classify(w.EventType), SourceRadarr)
	ev.Hash = normalizeHash(w.DownloadID)
	ev.DownloadClient = w.DownloadClient

	if w.Movie != nil {
		ev.MediaID = w.Movie.ID
		ev.Title = w.Movie.Title
		ev.DestinationDir = w.Movie.FolderPath
	}
	if ev.Title == "" && w.RemoteMovie != nil {
		ev.Title = w.RemoteMovie.Title
	}
	if w.Release != nil {
		ev.ReleaseTitle = w.Release.ReleaseTitle
		ev.Indexer = w.Release.Indexer
		ev.Quality = w.Release.Quality
		ev.Size = w.Release.Size
	}

	return ev
}
