package main

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/waveprint/waveprint/internal/similarity"
	"github.com/waveprint/waveprint/pkg/models"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload fingerprints the uploaded audio, scans for duplicates and
// records pending matches. A decode or extraction failure rejects the
// upload with a clear reason; a failed duplicate scan does not.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	audioBytes, title, artist, ok := s.readUploadForm(w, r)
	if !ok {
		return
	}

	result, err := s.svc.ProcessUpload(r.Context(), title, artist, audioBytes)
	if err != nil {
		var decodeErr *models.DecodeError
		var extractErr *models.ExtractionError
		switch {
		case errors.As(err, &decodeErr):
			writeError(w, http.StatusUnprocessableEntity, decodeErr.Error())
		case errors.As(err, &extractErr):
			writeError(w, http.StatusUnprocessableEntity, extractErr.Error())
		default:
			s.log.Errorf("upload processing failed: %v", err)
			writeError(w, http.StatusInternalServerError, "upload processing failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{
		TrackID:    result.TrackID,
		Landmarks:  len(result.Fingerprint.Landmarks),
		Duration:   result.Fingerprint.Duration,
		SampleRate: result.Fingerprint.SampleRate,
		Matches:    result.Report.Matches,
		Threshold:  result.Report.Threshold,
	})
}

// handleTrackMatches serves GET /api/tracks/{id}/matches.
func (s *Server) handleTrackMatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/tracks/")
	trackID, tail, found := strings.Cut(rest, "/")
	if !found || tail != "matches" || trackID == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	matches, err := s.svc.MatchesForTrack(trackID)
	if err != nil {
		s.log.Errorf("listing matches for track %s: %v", trackID, err)
		writeError(w, http.StatusInternalServerError, "failed to list matches")
		return
	}
	writeJSON(w, http.StatusOK, toMatchResponses(matches))
}

func (s *Server) handlePendingMatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	matches, err := s.svc.PendingMatches()
	if err != nil {
		s.log.Errorf("listing pending matches: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list pending matches")
		return
	}
	writeJSON(w, http.StatusOK, toMatchResponses(matches))
}

// handleReview serves POST /api/matches/{id}/review.
func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/matches/")
	matchID, tail, found := strings.Cut(rest, "/")
	if !found || tail != "review" || matchID == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	var req reviewRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	status, ok := models.ParseMatchStatus(req.Status)
	if !ok || !status.Terminal() {
		writeError(w, http.StatusBadRequest, "status must be CONFIRMED_DUPLICATE, FALSE_POSITIVE or REMIX")
		return
	}
	if req.ReviewerID == "" {
		writeError(w, http.StatusBadRequest, "reviewer_id is required")
		return
	}

	match, err := s.svc.Review(matchID, status, req.ReviewerID, req.Note)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(w, http.StatusNotFound, "match not found")
			return
		}
		s.log.Errorf("reviewing match %s: %v", matchID, err)
		writeError(w, http.StatusInternalServerError, "failed to update match")
		return
	}
	writeJSON(w, http.StatusOK, toMatchResponse(*match))
}

// handleCompare fingerprints two uploaded files and returns their
// pairwise similarity without touching the corpus.
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	var fps [2]*models.Fingerprint
	for i, field := range []string{"a", "b"} {
		raw, ok := s.readFileField(w, r, field)
		if !ok {
			return
		}
		fp, err := s.svc.GenerateFingerprint(r.Context(), raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		fps[i] = fp
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"similarity":  similarity.CompareOne(fps[0], fps[1]),
		"landmarks_a": len(fps[0].Landmarks),
		"landmarks_b": len(fps[1].Landmarks),
	})
}

func (s *Server) readUploadForm(w http.ResponseWriter, r *http.Request) (audio []byte, title, artist string, ok bool) {
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return nil, "", "", false
	}
	raw, fileOK := s.readFileField(w, r, "audio")
	if !fileOK {
		return nil, "", "", false
	}
	return raw, r.FormValue("title"), r.FormValue("artist"), true
}

func (s *Server) readFileField(w http.ResponseWriter, r *http.Request, field string) ([]byte, bool) {
	file, _, err := r.FormFile(field)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field: "+field)
		return nil, false
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, s.config.MaxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading uploaded file")
		return nil, false
	}
	if int64(len(raw)) > s.config.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "uploaded file too large")
		return nil, false
	}
	return raw, true
}
