// Package storage is the SQLite-backed fingerprint store. It implements
// the persistence contract the service consumes: fingerprints keyed by
// track, with owner metadata, plus the duplicate-match lifecycle records.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/waveprint/waveprint/internal/similarity"
	"github.com/waveprint/waveprint/pkg/models"
)

const DefaultDBFile = "waveprint.sqlite3"

// Track is the owner record a fingerprint belongs to.
type Track struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	Title     string `gorm:"index:idx_track_meta,priority:1"`
	Artist    string `gorm:"index:idx_track_meta,priority:2"`
	CreatedAt time.Time
}

// AudioFingerprint holds one track's serialized landmark sequence.
type AudioFingerprint struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	TrackID    string `gorm:"type:varchar(36);uniqueIndex:idx_fp_track"`
	Landmarks  []byte `gorm:"type:blob"`
	Duration   float64
	SampleRate int
	CreatedAt  time.Time
}

// DuplicateMatch is a detected duplicate pair and its review state.
type DuplicateMatch struct {
	ID                string `gorm:"primaryKey;type:varchar(36)"`
	OriginalTrackID   string `gorm:"type:varchar(36);index:idx_match_original"`
	CandidateTrackID  string `gorm:"type:varchar(36);index:idx_match_candidate"`
	Similarity        float64
	MatchingLandmarks int
	Status            string `gorm:"index:idx_match_status"`
	ReviewedBy        *string
	ReviewedAt        *time.Time
	Note              string
	CreatedAt         time.Time `gorm:"index:idx_match_created"`
}

// Store wraps the gorm handle and the pooled sql.DB underneath it.
type Store struct {
	DB *gorm.DB
	db *sql.DB
}

// NewStore opens (creating if needed) the database at path.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=on"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Track{}, &AudioFingerprint{}, &DuplicateMatch{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &Store{DB: db, db: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RegisterTrack creates the owner record and returns its id.
func (s *Store) RegisterTrack(title, artist string) (string, error) {
	track := Track{ID: uuid.NewString(), Title: title, Artist: artist}
	if err := s.DB.Create(&track).Error; err != nil {
		return "", &models.StorageError{Op: "register track", Err: err}
	}
	return track.ID, nil
}

// GetTrack fetches owner metadata by id.
func (s *Store) GetTrack(trackID string) (*models.Track, error) {
	var track Track
	if err := s.DB.First(&track, "id = ?", trackID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, &models.StorageError{Op: "get track", Err: err}
	}
	return &models.Track{ID: track.ID, Title: track.Title, Artist: track.Artist}, nil
}

// SaveFingerprint persists a track's fingerprint. A fingerprint with zero
// landmarks signals a failed extraction and is refused.
func (s *Store) SaveFingerprint(trackID string, fp *models.Fingerprint) error {
	if fp.Empty() {
		return &models.StorageError{Op: "save fingerprint", Err: errors.New("refusing to store empty fingerprint")}
	}
	raw, err := models.EncodeLandmarks(fp.Landmarks)
	if err != nil {
		return &models.StorageError{Op: "save fingerprint", Err: err}
	}
	row := AudioFingerprint{
		TrackID:    trackID,
		Landmarks:  raw,
		Duration:   fp.Duration,
		SampleRate: fp.SampleRate,
	}
	if err := s.DB.Create(&row).Error; err != nil {
		return &models.StorageError{Op: "save fingerprint", Err: err}
	}
	return nil
}

// GetAllFingerprints returns every stored fingerprint with its owner
// metadata, serialized form intact. Rows whose track record is missing
// still come back, just without metadata.
func (s *Store) GetAllFingerprints() ([]similarity.StoredFingerprint, error) {
	var rows []AudioFingerprint
	if err := s.DB.Find(&rows).Error; err != nil {
		return nil, &models.StorageError{Op: "list fingerprints", Err: err}
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var tracks []Track
	if err := s.DB.Find(&tracks).Error; err != nil {
		return nil, &models.StorageError{Op: "list tracks", Err: err}
	}
	meta := make(map[string]Track, len(tracks))
	for _, t := range tracks {
		meta[t.ID] = t
	}

	out := make([]similarity.StoredFingerprint, 0, len(rows))
	for _, r := range rows {
		t := meta[r.TrackID]
		out = append(out, similarity.StoredFingerprint{
			TrackID: r.TrackID,
			Title:   t.Title,
			Artist:  t.Artist,
			Raw:     r.Landmarks,
		})
	}
	return out, nil
}

// CreateMatch inserts a duplicate-match record. Missing id and timestamp
// are filled in.
func (s *Store) CreateMatch(m *models.DuplicateMatch) error {
	row := fromDomain(m)
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	if err := s.DB.Create(&row).Error; err != nil {
		return &models.StorageError{Op: "create match", Err: err}
	}
	m.ID = row.ID
	m.CreatedAt = row.CreatedAt
	return nil
}

// FindMatchesForTrack lists matches involving the track on either side.
func (s *Store) FindMatchesForTrack(trackID string) ([]models.DuplicateMatch, error) {
	var rows []DuplicateMatch
	err := s.DB.
		Where("original_track_id = ? OR candidate_track_id = ?", trackID, trackID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, &models.StorageError{Op: "find matches", Err: err}
	}
	return toDomainAll(rows), nil
}

// FindPendingMatches lists unreviewed matches, newest first.
func (s *Store) FindPendingMatches() ([]models.DuplicateMatch, error) {
	var rows []DuplicateMatch
	err := s.DB.
		Where("status = ?", string(models.StatusPending)).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, &models.StorageError{Op: "find pending matches", Err: err}
	}
	return toDomainAll(rows), nil
}

// UpdateMatchStatus records a review decision. Re-reviewing an already
// terminal match overwrites it; last write wins.
func (s *Store) UpdateMatchStatus(matchID string, status models.MatchStatus, reviewerID, note string) (*models.DuplicateMatch, error) {
	var row DuplicateMatch
	if err := s.DB.First(&row, "id = ?", matchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, &models.StorageError{Op: "get match", Err: err}
	}

	now := time.Now()
	row.Status = string(status)
	row.ReviewedBy = &reviewerID
	row.ReviewedAt = &now
	row.Note = note
	if err := s.DB.Save(&row).Error; err != nil {
		return nil, &models.StorageError{Op: "update match", Err: err}
	}
	m := toDomain(row)
	return &m, nil
}

func fromDomain(m *models.DuplicateMatch) DuplicateMatch {
	return DuplicateMatch{
		ID:                m.ID,
		OriginalTrackID:   m.OriginalTrackID,
		CandidateTrackID:  m.CandidateTrackID,
		Similarity:        m.Similarity,
		MatchingLandmarks: m.MatchingLandmarks,
		Status:            string(m.Status),
		ReviewedBy:        m.ReviewedBy,
		ReviewedAt:        m.ReviewedAt,
		Note:              m.Note,
		CreatedAt:         m.CreatedAt,
	}
}

func toDomain(row DuplicateMatch) models.DuplicateMatch {
	return models.DuplicateMatch{
		ID:                row.ID,
		OriginalTrackID:   row.OriginalTrackID,
		CandidateTrackID:  row.CandidateTrackID,
		Similarity:        row.Similarity,
		MatchingLandmarks: row.MatchingLandmarks,
		Status:            models.MatchStatus(row.Status),
		ReviewedBy:        row.ReviewedBy,
		ReviewedAt:        row.ReviewedAt,
		Note:              row.Note,
		CreatedAt:         row.CreatedAt,
	}
}

func toDomainAll(rows []DuplicateMatch) []models.DuplicateMatch {
	out := make([]models.DuplicateMatch, 0, len(rows))
	for _, r := range rows {
		out = append(out, toDomain(r))
	}
	return out
}
