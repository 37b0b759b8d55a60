package models

import "time"

// Landmark is a single time-frequency feature extracted from an audio
// spectrogram. A landmark records a pair of spectral peaks that are close in
// time and sit in two distinct frequency bands; it depends on relative peak
// structure, which makes it robust to transcoding and re-encoding.
// Landmarks are immutable once produced.
type Landmark struct {
	Time          int `json:"time"`           // frame index of the anchor peak
	FrequencyZone int `json:"frequency_zone"` // band-pair identity of the peak pair
	SpectralPeak  int `json:"spectral_peak"`  // packed frame delta and target bin
}

// Fingerprint is the full landmark set representing one audio track.
// Landmark order reflects temporal position but carries no semantic weight:
// comparison treats a fingerprint as a set.
type Fingerprint struct {
	Landmarks  []Landmark `json:"landmarks"`
	Duration   float64    `json:"duration"` // seconds, measured from the decoded sample count
	SampleRate int        `json:"sample_rate"`
}

// Empty reports whether the fingerprint holds no landmarks. An empty
// fingerprint signals a failed extraction and must never be persisted.
func (f *Fingerprint) Empty() bool {
	return f == nil || len(f.Landmarks) == 0
}

// Track carries the owner metadata stored alongside each fingerprint.
type Track struct {
	ID     string
	Title  string
	Artist string
}

// MatchStatus is the review state of a duplicate match.
type MatchStatus string

const (
	StatusPending            MatchStatus = "PENDING"
	StatusConfirmedDuplicate MatchStatus = "CONFIRMED_DUPLICATE"
	StatusFalsePositive      MatchStatus = "FALSE_POSITIVE"
	StatusRemix              MatchStatus = "REMIX"
)

// Terminal reports whether the status is a valid reviewer decision.
// PENDING is the automatic initial state and cannot be set by review.
func (s MatchStatus) Terminal() bool {
	switch s {
	case StatusConfirmedDuplicate, StatusFalsePositive, StatusRemix:
		return true
	}
	return false
}

// ParseMatchStatus validates a raw status string.
func ParseMatchStatus(raw string) (MatchStatus, bool) {
	switch MatchStatus(raw) {
	case StatusPending, StatusConfirmedDuplicate, StatusFalsePositive, StatusRemix:
		return MatchStatus(raw), true
	}
	return "", false
}

// MatchCandidate is one entry of a ranked duplicate-check result.
type MatchCandidate struct {
	TrackID           string  `json:"track_id"`
	Title             string  `json:"title"`
	Artist            string  `json:"artist"`
	Similarity        float64 `json:"similarity"` // 0-100, two decimal places
	MatchingLandmarks int     `json:"matching_landmarks"`
}

// DuplicateMatch is a recorded duplicate detection awaiting (or past) review.
// The pair is symmetric in meaning but stored asymmetrically: the original is
// the earlier upload, the candidate the later one.
type DuplicateMatch struct {
	ID                string
	OriginalTrackID   string
	CandidateTrackID  string
	Similarity        float64
	MatchingLandmarks int
	Status            MatchStatus
	ReviewedBy        *string
	ReviewedAt        *time.Time
	Note              string
	CreatedAt         time.Time
}
