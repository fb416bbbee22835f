package intake

import "fmt"

// SonarrWebhook mirrors the fields of a Sonarr webhook notification that
// this service cares about.
type SonarrWebhook struct {
	EventType      string          `json:"eventType"`
	InstanceName   string          `json:"instanceName"`
	DownloadID     string          `json:"downloadId"`
	DownloadClient string          `json:"downloadClient"`
	IsUpgrade      bool            `json:"isUpgrade"`
	Series         *SonarrSeries   `json:"series"`
	Episodes       []SonarrEpisode `json:"episodes"`
	Release        *ReleaseInfo    `json:"release"`
}

// SonarrSeries is the series block of a Sonarr webhook.
type SonarrSeries struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Path   string `json:"path"`
	TvdbID int64  `json:"tvdbId"`
}

// SonarrEpisode identifies one episode covered by the release.
type SonarrEpisode struct {
	ID            int64  `json:"id"`
	SeasonNumber  int    `json:"seasonNumber"`
	EpisodeNumber int    `json:"episodeNumber"`
	Title         string `json:"title"`
}

// Normalize converts a Sonarr payload into the internal event shape.
func (w *SonarrWebhook) Normalize() *Event {
	ev := newEvent(classify(w.EventType), SourceSonarr)
	ev.Hash = normalizeHash(w.DownloadID)
	ev.DownloadClient = w.DownloadClient

	if w.Series != nil {
		ev.MediaID = w.Series.ID
		ev.Title = w.Series.Title
		ev.DestinationDir = w.Series.Path
	}
	if len(w.Episodes) > 0 {
		ep := w.Episodes[0]
		ev.Title = fmt.Sprintf("%s S%02dE%02d", ev.Title, ep.SeasonNumber, ep.EpisodeNumber)
	}
	if w.Release != nil {
		ev.ReleaseTitle = w.Release.ReleaseTitle
		ev.Indexer = w.Release.Indexer
		ev.Quality = w.Release.Quality
		ev.Size = w.Release.Size
	}

	return ev
}
