// Package service wires the decode/extract pipeline, the similarity scan
// and the duplicate-match lifecycle into the operations the upload path
// calls.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/waveprint/waveprint/internal/audio"
	"github.com/waveprint/waveprint/internal/fingerprint"
	"github.com/waveprint/waveprint/internal/similarity"
	"github.com/waveprint/waveprint/internal/storage"
	"github.com/waveprint/waveprint/pkg/logger"
	"github.com/waveprint/waveprint/pkg/models"
)

// DuplicateReport is the outcome of a duplicate check. It always exists:
// the check is advisory and degrades to an empty match list when the scan
// cannot run.
type DuplicateReport struct {
	Matches   []models.MatchCandidate `json:"matches"`
	Threshold float64                 `json:"threshold"`
}

// UploadResult is the outcome of a full upload pipeline run.
type UploadResult struct {
	TrackID     string
	Fingerprint *models.Fingerprint
	Report      *DuplicateReport
}

// FingerprintService is the core entry point. Each upload's fingerprinting
// is independent of every other upload: the service holds no mutable state
// between calls, so concurrent uploads may run fully in parallel.
type FingerprintService struct {
	storage Storage
	engine  *similarity.Engine
	log     Logger
	cfg     *Config
}

func New(opts ...Option) (*FingerprintService, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	stor := cfg.Storage
	if stor == nil {
		var err error
		stor, err = storage.NewStore(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("creating storage: %w", err)
		}
	}

	return &FingerprintService{
		storage: stor,
		engine:  similarity.NewEngine(cfg.Workers, cfg.Logger),
		log:     cfg.Logger,
		cfg:     cfg,
	}, nil
}

// GenerateFingerprint decodes raw audio bytes and extracts the landmark
// fingerprint. It fails with *models.DecodeError for unreadable input and
// *models.ExtractionError for audio that yields no landmarks.
func (s *FingerprintService) GenerateFingerprint(ctx context.Context, audioBytes []byte) (*models.Fingerprint, error) {
	stream, err := audio.Decode(ctx, audioBytes, audio.Config{
		TargetSampleRate: s.cfg.SampleRate,
		FFmpegPath:       s.cfg.FFmpegPath,
	})
	if err != nil {
		return nil, err
	}

	fp, err := fingerprint.Extract(ctx, stream, fingerprint.Config{
		SampleRate: s.cfg.SampleRate,
		BandEdges:  s.cfg.BandEdges,
	})
	if err != nil {
		return nil, err
	}

	s.log.Debugf("generated fingerprint: %d landmarks, %.2fs", len(fp.Landmarks), fp.Duration)
	return fp, nil
}

// StoreFingerprint persists the fingerprint for a track. Storage failures
// propagate: an unstored fingerprint does not exist for future comparisons
// and the caller must know.
func (s *FingerprintService) StoreFingerprint(trackID string, fp *models.Fingerprint) error {
	if fp.Empty() {
		return &models.StorageError{Op: "save fingerprint", Err: errors.New("refusing to store empty fingerprint")}
	}
	if err := s.storage.SaveFingerprint(trackID, fp); err != nil {
		return err
	}
	s.log.Infof("fingerprint stored for track %s (%d landmarks)", trackID, len(fp.Landmarks))
	return nil
}

// CheckForDuplicates compares the fingerprint against the whole stored
// corpus. It never fails: internal errors degrade to an empty match list
// so duplicate detection stays advisory and cannot block an upload.
// A negative threshold selects the configured default.
func (s *FingerprintService) CheckForDuplicates(ctx context.Context, fp *models.Fingerprint, threshold float64) *DuplicateReport {
	if threshold < 0 {
		threshold = s.cfg.Threshold
	}
	report := &DuplicateReport{Threshold: threshold}

	corpus, err := s.storage.GetAllFingerprints()
	if err != nil {
		s.log.Warnf("duplicate check skipped, corpus unavailable: %v", err)
		return report
	}

	report.Matches = s.engine.CompareAll(ctx, fp, corpus, threshold)
	s.log.Infof("duplicate check: %d of %d stored fingerprints at or above %.2f%%",
		len(report.Matches), len(corpus), threshold)
	return report
}

// CreateDuplicateMatches records one PENDING match per candidate. The
// write path is advisory like the check itself: a failed record is logged
// and skipped, the rest are still created.
func (s *FingerprintService) CreateDuplicateMatches(candidateTrackID string, matches []models.MatchCandidate) error {
	for _, cand := range matches {
		m := models.DuplicateMatch{
			OriginalTrackID:   cand.TrackID,
			CandidateTrackID:  candidateTrackID,
			Similarity:        cand.Similarity,
			MatchingLandmarks: cand.MatchingLandmarks,
			Status:            models.StatusPending,
		}
		if err := s.storage.CreateMatch(&m); err != nil {
			s.log.Warnf("failed to record duplicate match %s vs %s: %v",
				cand.TrackID, candidateTrackID, err)
			continue
		}
	}
	if len(matches) > 0 {
		s.log.Infof("recorded %d duplicate match(es) for track %s", len(matches), candidateTrackID)
	}
	return nil
}

// ProcessUpload runs the whole pipeline for one upload: fingerprint the
// bytes, register the track, compare against the corpus, store the
// fingerprint, record matches. Decode, extraction and storage failures
// propagate; the duplicate check and match recording are decoupled
// outcomes that cannot fail the upload.
//
// The comparison runs before the store so the candidate never matches
// itself.
func (s *FingerprintService) ProcessUpload(ctx context.Context, title, artist string, audioBytes []byte) (*UploadResult, error) {
	fp, err := s.GenerateFingerprint(ctx, audioBytes)
	if err != nil {
		return nil, err
	}

	trackID, err := s.storage.RegisterTrack(title, artist)
	if err != nil {
		return nil, err
	}

	report := s.CheckForDuplicates(ctx, fp, -1)

	if err := s.StoreFingerprint(trackID, fp); err != nil {
		return nil, err
	}

	if err := s.CreateDuplicateMatches(trackID, report.Matches); err != nil {
		s.log.Warnf("recording duplicate matches for track %s: %v", trackID, err)
	}

	return &UploadResult{TrackID: trackID, Fingerprint: fp, Report: report}, nil
}

// Review applies a reviewer decision to a match. Only terminal statuses
// are accepted; re-reviewing overwrites, last write wins. An unknown match
// id yields models.ErrNotFound.
func (s *FingerprintService) Review(matchID string, status models.MatchStatus, reviewerID, note string) (*models.DuplicateMatch, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("status %q is not a valid review decision", status)
	}
	m, err := s.storage.UpdateMatchStatus(matchID, status, reviewerID, note)
	if err != nil {
		return nil, err
	}
	s.log.Infof("match %s reviewed as %s by %s", matchID, status, reviewerID)
	return m, nil
}

// MatchesForTrack lists all matches involving a track on either side.
func (s *FingerprintService) MatchesForTrack(trackID string) ([]models.DuplicateMatch, error) {
	return s.storage.FindMatchesForTrack(trackID)
}

// PendingMatches lists unreviewed matches, newest first.
func (s *FingerprintService) PendingMatches() ([]models.DuplicateMatch, error) {
	return s.storage.FindPendingMatches()
}

// Track fetches owner metadata for a track id.
func (s *FingerprintService) Track(trackID string) (*models.Track, error) {
	return s.storage.GetTrack(trackID)
}

// Close releases the underlying storage.
func (s *FingerprintService) Close() error {
	return s.storage.Close()
}
