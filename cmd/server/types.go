package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/waveprint/waveprint/internal/service"
	"github.com/waveprint/waveprint/pkg/logger"
	"github.com/waveprint/waveprint/pkg/models"
)

// ServerConfig holds the HTTP-facing settings.
type ServerConfig struct {
	Port           int
	DBPath         string
	SampleRate     int
	Threshold      float64
	AllowedOrigins []string
	MaxUploadBytes int64
}

// Server ties the fingerprint service to its HTTP surface.
type Server struct {
	svc    *service.FingerprintService
	config *ServerConfig
	log    *logger.Logger
}

func NewServer(svc *service.FingerprintService, config *ServerConfig) *Server {
	return &Server{
		svc:    svc,
		config: config,
		log:    logger.Default(),
	}
}

// uploadResponse is the JSON body returned after a processed upload.
type uploadResponse struct {
	TrackID    string                  `json:"track_id"`
	Landmarks  int                     `json:"landmarks"`
	Duration   float64                 `json:"duration"`
	SampleRate int                     `json:"sample_rate"`
	Matches    []models.MatchCandidate `json:"matches"`
	Threshold  float64                 `json:"threshold"`
}

// matchResponse is the JSON form of a duplicate match record.
type matchResponse struct {
	ID                string     `json:"id"`
	OriginalTrackID   string     `json:"original_track_id"`
	CandidateTrackID  string     `json:"candidate_track_id"`
	Similarity        float64    `json:"similarity"`
	MatchingLandmarks int        `json:"matching_landmarks"`
	Status            string     `json:"status"`
	ReviewedBy        *string    `json:"reviewed_by,omitempty"`
	ReviewedAt        *time.Time `json:"reviewed_at,omitempty"`
	Note              string     `json:"note,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func toMatchResponse(m models.DuplicateMatch) matchResponse {
	return matchResponse{
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

func toMatchResponses(matches []models.DuplicateMatch) []matchResponse {
	out := make([]matchResponse, 0, len(matches))
	for _, m := range matches {
		out = append(out, toMatchResponse(m))
	}
	return out
}

// reviewRequest is the JSON body of a review action.
type reviewRequest struct {
	Status     string `json:"status"`
	ReviewerID string `json:"reviewer_id"`
	Note       string `json:"note"`
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
