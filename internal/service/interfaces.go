package service

import (
	"github.com/waveprint/waveprint/internal/similarity"
	"github.com/waveprint/waveprint/pkg/models"
)

// Storage is the persistence contract the service consumes. The concrete
// implementation lives in internal/storage; tests substitute their own.
type Storage interface {
	RegisterTrack(title, artist string) (string, error)
	GetTrack(trackID string) (*models.Track, error)
	SaveFingerprint(trackID string, fp *models.Fingerprint) error
	GetAllFingerprints() ([]similarity.StoredFingerprint, error)
	CreateMatch(m *models.DuplicateMatch) error
	FindMatchesForTrack(trackID string) ([]models.DuplicateMatch, error)
	FindPendingMatches() ([]models.DuplicateMatch, error)
	UpdateMatchStatus(matchID string, status models.MatchStatus, reviewerID, note string) (*models.DuplicateMatch, error)
	Close() error
}

// Logger is the logging surface the service needs.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}
