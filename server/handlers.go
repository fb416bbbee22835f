package server

import (
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/s0up4200/linkarr/intake"
	"github.com/s0up4200/linkarr/monitor"
	"github.com/s0up4200/linkarr/qbittorrent"
)

const maxWebhookBody = 1 << 20 // 1MB

// recordView is the JSON shape of a tracked download.
type recordView struct {
	Hash           string            `json:"hash"`
	Source         string            `json:"source"`
	Title          string            `json:"title"`
	DestinationDir string            `json:"destination_dir"`
	Status         string            `json:"status"`
	Reason         string            `json:"reason,omitempty"`
	Attempts       int               `json:"attempts"`
	Progress       float64           `json:"progress"`
	LinkedFiles    []string          `json:"linked_files"`
	FileErrors     map[string]string `json:"file_errors,omitempty"`
	IgnoredFiles   int               `json:"ignored_files,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// eventView is the JSON shape of a received webhook.
type eventView struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Type       string    `json:"type"`
	Hash       string    `json:"hash,omitempty"`
	Title      string    `json:"title,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

type torrentView struct {
	Hash     string  `json:"hash"`
	Name     string  `json:"name"`
	State    string  `json:"state"`
	Progress float64 `json:"progress"`
	Size     int64   `json:"size"`
	SavePath string  `json:"save_path"`
	Complete bool    `json:"complete"`
}

func newRecordView(rec monitor.Record) recordView {
	linked := make([]string, 0, len(rec.LinkedFiles))
	for id := range rec.LinkedFiles {
		linked = append(linked, id.Path)
	}
	sort.Strings(linked)

	return recordView{
		Hash:           rec.Hash,
		Source:         string(rec.Source),
		Title:          rec.Title,
		DestinationDir: rec.DestinationDir,
		Status:         string(rec.Status),
		Reason:         rec.Reason,
		Attempts:       rec.Attempts,
		Progress:       rec.LastProgress,
		LinkedFiles:    linked,
		FileErrors:     rec.FileErrors,
		IgnoredFiles:   rec.IgnoredFiles,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

func newTorrentView(state *qbittorrent.TorrentState) *torrentView {
	if state == nil {
		return nil
	}
	return &torrentView{
		Hash:     state.Hash,
		Name:     state.Name,
		State:    state.State,
		Progress: state.Progress,
		Size:     state.Size,
		SavePath: state.SavePath,
		Complete: state.Complete,
	}
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{
		"name":    "linkarr",
		"version": s.version,
		"status":  "running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWebhook ingests Radarr and Sonarr webhook payloads. Grab events
// register the download for tracking, import events deactivate it, and
// test events are acknowledged without side effects.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	ev, err := intake.Parse(body)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Rejected webhook payload")
		RespondWithError(w, http.StatusBadRequest, "Unrecognized webhook payload")
		return
	}

	s.saveWebhook(ev, body)

	log := s.logger.With().
		Str("source", string(ev.Source)).
		Str("event_type", string(ev.Type)).
		Str("title", ev.Title).
		Logger()

	switch ev.Type {
	case intake.TypeTest:
		log.Info().Msg("Received test webhook")
		RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	case intake.TypeGrab:
		if s.rule != nil {
			matched, err := s.rule.Match(ev)
			if err != nil {
				log.Error().Err(err).Msg("Grab rule evaluation failed")
				RespondWithError(w, http.StatusInternalServerError, "Rule evaluation failed")
				return
			}
			if !matched {
				log.Info().Msg("Grab filtered by rule")
				RespondWithJSON(w, http.StatusOK, map[string]interface{}{
					"status":  "ignored",
					"reason":  "filtered",
					"tracked": false,
				})
				return
			}
		}

		if err := s.monitor.Register(ev); err != nil {
			log.Warn().Err(err).Msg("Failed to register download")
			RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}

		log.Info().Str("hash", ev.Hash).Msg("Download registered")
		RespondWithJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"hash":    ev.Hash,
			"tracked": true,
		})

	case intake.TypeDelete:
		forgotten := false
		if ev.Hash != "" {
			forgotten = s.monitor.Forget(ev.Hash)
		}
		log.Info().Str("hash", ev.Hash).Bool("forgotten", forgotten).Msg("Media deleted upstream")
		RespondWithJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"forgotten": forgotten,
		})

	case intake.TypeImport:
		deactivated := false
		if ev.Hash != "" {
			deactivated = s.monitor.Deactivate(ev.Hash)
		}
		log.Info().Str("hash", ev.Hash).Bool("deactivated", deactivated).Msg("Import reported upstream")
		RespondWithJSON(w, http.StatusOK, map[string]interface{}{
			"status":      "ok",
			"deactivated": deactivated,
		})

	default:
		log.Debug().Msg("Ignoring webhook event type")
		RespondWithJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "ignored",
			"tracked": false,
		})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	records := s.monitor.Active()
	views := make([]recordView, 0, len(records))
	for _, rec := range records {
		views = append(views, newRecordView(rec))
	}

	RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(views),
		"downloads": views,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	records := s.monitor.History()
	views := make([]recordView, 0, len(records))
	for _, rec := range records {
		views = append(views, newRecordView(rec))
	}

	RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(views),
		"downloads": views,
	})
}

// handleTorrent returns the tracked record for a hash together with the
// torrent client's live view, when available.
func (s *Server) handleTorrent(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")

	// Registered download IDs are not always torrent hashes (usenet
	// clients report GUIDs), so the registry is consulted first and only
	// hash-shaped IDs are looked up in the torrent client.
	rec, tracked := s.monitor.Record(hash)

	var live *qbittorrent.TorrentState
	if qbittorrent.ValidHash(hash) {
		live = s.liveState(r.Context(), hash)
	} else if !tracked {
		RespondWithError(w, http.StatusBadRequest, "Invalid torrent hash")
		return
	}

	if !tracked && live == nil {
		RespondWithError(w, http.StatusNotFound, "Torrent not tracked")
		return
	}

	resp := map[string]interface{}{
		"tracked": tracked,
		"torrent": newTorrentView(live),
	}
	if tracked {
		resp["download"] = newRecordView(rec)
	}

	RespondWithJSON(w, http.StatusOK, resp)
}

// handleWebhooks lists recently received webhooks, newest first.
func (s *Server) handleWebhooks(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	views := make([]eventView, len(s.recent))
	for i, v := range s.recent {
		views[len(s.recent)-1-i] = v
	}
	s.mu.Unlock()

	RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(views),
		"webhooks": views,
	})
}

// saveWebhook records a received event in the in-memory ring and, when a
// store is attached, in sqlite.
func (s *Server) saveWebhook(ev *intake.Event, payload []byte) {
	view := eventView{
		ID:         ev.ID,
		Source:     string(ev.Source),
		Type:       string(ev.Type),
		Hash:       ev.Hash,
		Title:      ev.Title,
		ReceivedAt: ev.ReceivedAt,
	}

	s.mu.Lock()
	s.recent = append(s.recent, view)
	if len(s.recent) > recentWebhookLimit {
		s.recent = s.recent[len(s.recent)-recentWebhookLimit:]
	}
	s.mu.Unlock()

	if s.store == nil {
		return
	}
	if err := s.store.SaveWebhook(ev, payload); err != nil {
		s.logger.Warn().Err(err).Str("event_id", ev.ID).Msg("Failed to persist webhook")
	}
}
