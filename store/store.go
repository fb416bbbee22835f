// Package store persists registry snapshots and webhook history in a
// local SQLite database. Persistence is an optional convenience: the
// monitor is correct without it, and a restart simply re-discovers
// in-flight downloads from the next webhook.
package store

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/s0up4200/linkarr/intake"
	"github.com/s0up4200/linkarr/monitor"
)

// DownloadRow is the persisted shape of one download record.
type DownloadRow struct {
	Hash           string `gorm:"primaryKey"`
	Source         string
	Title          string
	DestinationDir string
	Status         string
	Reason         string
	Attempts       int
	Progress       float64
	LinkedFiles    int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WebhookRow is one received webhook payload.
type WebhookRow struct {
	EventID    string `gorm:"primaryKey"`
	Source     string
	EventType  string
	Hash       string `gorm:"index"`
	Title      string
	Payload    string
	ReceivedAt time.Time
}

// Store wraps the SQLite database.
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

// Open opens (or creates) the database at path and migrates the schema.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", path, err)
	}
	if err := db.AutoMigrate(&DownloadRow{}, &WebhookRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate store schema: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// SaveRecord upserts the snapshot of one download. It implements
// monitor.Store.
func (s *Store) SaveRecord(rec monitor.Record) error {
	row := DownloadRow{
		Hash:           rec.Hash,
		Source:         string(rec.Source),
		Title:          rec.Title,
		DestinationDir: rec.DestinationDir,
		Status:         string(rec.Status),
		Reason:         rec.Reason,
		Attempts:       rec.Attempts,
		Progress:       rec.LastProgress,
		LinkedFiles:    rec.LinkedCount(),
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}

	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

// SaveWebhook records a received webhook payload.
func (s *Store) SaveWebhook(ev *intake.Event, payload []byte) error {
	row := WebhookRow{
		EventID:    ev.ID,
		Source:     string(ev.Source),
		EventType:  string(ev.Type),
		Hash:       ev.Hash,
		Title:      ev.Title,
		Payload:    string(payload),
		ReceivedAt: ev.ReceivedAt,
	}
	return s.db.Create(&row).Error
}

// RecentDownloads returns up to limit download rows, most recent first.
func (s *Store) RecentDownloads(limit int) ([]DownloadRow, error) {
	var rows []DownloadRow
	err := s.db.Order("updated_at desc").Limit(limit).Find(&rows).Error
	return rows, err
}

// RecentWebhooks returns up to limit webhook rows, most recent first.
func (s *Store) RecentWebhooks(limit int) ([]WebhookRow, error) {
	var rows []WebhookRow
	err := s.db.Order("received_at desc").Limit(limit).Find(&rows).Error
	return rows, err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
